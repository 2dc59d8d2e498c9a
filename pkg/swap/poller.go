package swap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"xswap/pkg/notify"
	"xswap/pkg/types"
)

// DefaultPollInterval is the status polling cadence
const DefaultPollInterval = 5 * time.Second

var progressByStatus = map[types.OrderStatus]int{
	types.OrderCreated:         25,
	types.OrderPending:         25,
	types.OrderSrcDeployed:     40,
	types.OrderDstDeployed:     80,
	types.OrderPartiallyFilled: 90,
	types.OrderFilled:          100,
}

// Progress maps status to a percentage that never falls below prev while
// the order is live. Expired and cancelled orders reset to 0.
func Progress(status types.OrderStatus, prev int) int {
	if status == types.OrderExpired || status == types.OrderCancelled {
		return 0
	}
	p := progressByStatus[status]
	if p < prev {
		return prev
	}
	return p
}

// PollTarget identifies the order to watch and where it stands
type PollTarget struct {
	OrderHash string
	SrcChain  int
	DstChain  int
	Status    types.OrderStatus
	Progress  int
}

// PollUpdate is the outcome of one successful tick
type PollUpdate struct {
	Report   types.StatusReport
	Progress int
	Terminal bool
}

// Poller runs status polling sessions
type Poller struct {
	api      StatusAPI
	interval time.Duration
	notifier notify.Notifier
	logger   *slog.Logger

	active atomic.Int32
}

func NewPoller(api StatusAPI, interval time.Duration, notifier notify.Notifier, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		api:      api,
		interval: interval,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "poller")),
	}
}

// Active returns the number of sessions whose timer is still running
func (p *Poller) Active() int {
	return int(p.active.Load())
}

// PollHandle controls one polling session
type PollHandle struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Stop prevents any further tick. It is safe to call more than once and
// from within the update callback. A request already in flight is not
// aborted but its result is dropped.
func (h *PollHandle) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Done is closed once the session goroutine has exited
func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

func (h *PollHandle) stopped() bool {
	select {
	case <-h.stop:
		return true
	default:
	}
	return false
}

// Start polls target immediately and then every interval until a terminal
// status, Stop, or ctx ending. onUpdate runs on the session goroutine.
func (p *Poller) Start(ctx context.Context, target PollTarget, onUpdate func(PollUpdate)) (*PollHandle, error) {
	if !ValidOrderHash(target.OrderHash) {
		return nil, ErrInvalidOrderHash
	}
	if target.Status == "" {
		target.Status = types.OrderCreated
	}

	h := &PollHandle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	p.active.Add(1)
	go p.run(ctx, h, target, onUpdate)

	return h, nil
}

func (p *Poller) run(ctx context.Context, h *PollHandle, target PollTarget, onUpdate func(PollUpdate)) {
	defer close(h.done)
	defer p.active.Add(-1)

	logger := p.logger.With(slog.String("order_hash", target.OrderHash))
	logger.DebugContext(ctx, "polling started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	status, progress := target.Status, target.Progress
	for {
		if status.IsTerminal() {
			return
		}

		update, err := p.tick(ctx, target)
		if h.stopped() {
			logger.DebugContext(ctx, "polling stopped")
			return
		}
		if err != nil {
			logger.WarnContext(ctx, "status poll failed", slog.Any("error", err))
		} else {
			update.Progress = Progress(update.Report.Status, progress)
			update.Terminal = update.Report.Status.IsTerminal()
			status, progress = update.Report.Status, update.Progress

			if onUpdate != nil {
				onUpdate(update)
			}
			if update.Terminal {
				h.Stop()
				p.notifyTerminal(status, target.OrderHash)
				logger.InfoContext(ctx, "order reached terminal status", slog.String("status", string(status)))
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			logger.DebugContext(ctx, "polling stopped")
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context, target PollTarget) (PollUpdate, error) {
	resp, err := p.api.GetOrderStatus(ctx, target.OrderHash, target.SrcChain, target.DstChain)
	if err != nil {
		return PollUpdate{}, fmt.Errorf("%w: %w", ErrStatusPollTransient, err)
	}

	status, err := types.ParseOrderStatus(resp.Status)
	if err != nil {
		return PollUpdate{}, fmt.Errorf("%w: %w", ErrStatusPollTransient, err)
	}

	return PollUpdate{
		Report: types.StatusReport{
			OrderHash: target.OrderHash,
			Status:    status,
			Fills:     resp.Fills,
			SrcTxHash: resp.SrcTxHash,
			DstTxHash: resp.DstTxHash,
		},
	}, nil
}

func (p *Poller) notifyTerminal(status types.OrderStatus, orderHash string) {
	switch status {
	case types.OrderFilled:
		p.notifier.Notify(notify.Notification{Level: notify.Success, Message: "Swap completed: order " + shortHash(orderHash) + " filled"})
	case types.OrderExpired:
		p.notifier.Notify(notify.Notification{Level: notify.Warning, Message: "Order " + shortHash(orderHash) + " expired. Please try again."})
	case types.OrderCancelled:
		p.notifier.Notify(notify.Notification{Level: notify.Info, Message: "Order " + shortHash(orderHash) + " was cancelled"})
	}
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:8] + "…" + h[len(h)-6:]
}
