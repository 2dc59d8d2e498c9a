package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"xswap/pkg/notify"
	"xswap/pkg/order"
	"xswap/pkg/types"
	"xswap/pkg/wallet"
)

// DefaultQuoteDebounce is the quiet period after an input change before a
// quote is requested
const DefaultQuoteDebounce = 500 * time.Millisecond

// Progress reported while an order is being placed
const (
	progressBuilding   = 25
	progressSigning    = 50
	progressSubmitting = 70
	progressSubmitted  = 85
)

// Route is the token pair and chains being swapped
type Route struct {
	SrcChain int
	DstChain int
	SrcToken string
	DstToken string
}

// Config wires an Orchestrator
type Config struct {
	API          API
	Wallet       wallet.Wallet
	Orders       *order.Manager
	Notifier     notify.Notifier
	Logger       *slog.Logger
	Debounce     time.Duration
	PollInterval time.Duration
}

// SubmitOutcome describes how a Submit call ended without error. Approved
// means an approval was confirmed and the user has to submit again.
type SubmitOutcome struct {
	Approved   bool
	ApprovalTx string
	Order      *types.OrderRecord
}

// Orchestrator owns the swap phase and sequences quote, allowance,
// approval, build, sign, submit and status polling. At most one polling
// session is live at a time.
type Orchestrator struct {
	quotes    *QuoteClient
	allowance *AllowanceGate
	approvals *ApprovalFlow
	builder   *OrderBuilder
	signer    *OrderSigner
	submitter *OrderSubmitter
	poller    *Poller
	wallet    wallet.Wallet
	orders    *order.Manager
	notifier  notify.Notifier
	logger    *slog.Logger
	debounce  *Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	route     Route
	amountRaw string
	phase     Phase
	progress  int
	quote     *types.Quote
	seq       uint64 // bumped by every input change and every new attempt
	quoting   int    // quote requests in flight
	current   *types.OrderRecord
	poll      *PollHandle
	pollSeq   uint64 // id of the session allowed to write state
	closed    bool

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

// New creates an idle orchestrator
func New(cfg Config) (*Orchestrator, error) {
	if cfg.API == nil {
		return nil, fmt.Errorf("api is required")
	}
	if cfg.Wallet == nil {
		return nil, fmt.Errorf("wallet is required")
	}
	if cfg.Orders == nil {
		return nil, fmt.Errorf("order manager is required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultQuoteDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		quotes:    NewQuoteClient(cfg.API, cfg.Logger),
		allowance: NewAllowanceGate(cfg.API),
		approvals: NewApprovalFlow(cfg.API, cfg.Wallet, cfg.Logger),
		builder:   NewOrderBuilder(cfg.API),
		signer:    NewOrderSigner(cfg.Wallet),
		submitter: NewOrderSubmitter(cfg.API, cfg.Logger),
		poller:    NewPoller(cfg.API, cfg.PollInterval, cfg.Notifier, cfg.Logger),
		wallet:    cfg.Wallet,
		orders:    cfg.Orders,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger.With(slog.String("component", "orchestrator")),
		debounce:  NewDebouncer(cfg.Debounce),
		ctx:       ctx,
		cancel:    cancel,
		observers: make(map[int]Observer),
	}, nil
}

// Subscribe registers obs and returns a function that removes it
func (o *Orchestrator) Subscribe(obs Observer) func() {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()

	id := o.nextObs
	o.nextObs++
	o.observers[id] = obs

	return func() {
		o.obsMu.Lock()
		defer o.obsMu.Unlock()
		delete(o.observers, id)
	}
}

func (o *Orchestrator) emit(ev Event) {
	o.obsMu.Lock()
	observers := make([]Observer, 0, len(o.observers))
	for _, obs := range o.observers {
		observers = append(observers, obs)
	}
	o.obsMu.Unlock()

	for _, obs := range observers {
		obs(ev)
	}
}

func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) Progress() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// Quote returns the cached quote for the current inputs, or nil
func (o *Orchestrator) Quote() *types.Quote {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.quote
}

// CurrentOrder returns a copy of the tracked order, or nil
func (o *Orchestrator) CurrentOrder() *types.OrderRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current.Clone()
}

func (o *Orchestrator) Route() Route {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.route
}

// SetAmount changes the raw amount and schedules a debounced quote
func (o *Orchestrator) SetAmount(amountRaw string) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.amountRaw = strings.TrimSpace(amountRaw)
	o.invalidateLocked()
	o.mu.Unlock()

	o.emit(Event{Kind: EventQuoteUpdated, Phase: o.Phase()})
	o.scheduleQuote()
}

// SetRoute changes chains and tokens and schedules a debounced quote
func (o *Orchestrator) SetRoute(r Route) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.route = r
	o.invalidateLocked()
	o.mu.Unlock()

	o.emit(Event{Kind: EventQuoteUpdated, Phase: o.Phase()})
	o.scheduleQuote()
}

// SwitchTokens swaps source and destination. Any in-flight quote is
// invalidated; a polling session keeps running.
func (o *Orchestrator) SwitchTokens() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	r := o.route
	o.route = Route{SrcChain: r.DstChain, DstChain: r.SrcChain, SrcToken: r.DstToken, DstToken: r.SrcToken}
	o.invalidateLocked()
	o.mu.Unlock()

	o.emit(Event{Kind: EventQuoteUpdated, Phase: o.Phase()})
	o.scheduleQuote()
}

func (o *Orchestrator) invalidateLocked() {
	o.seq++
	o.quote = nil
}

func (o *Orchestrator) scheduleQuote() {
	o.mu.Lock()
	empty := o.amountRaw == ""
	o.mu.Unlock()

	if empty {
		o.debounce.Cancel()
		return
	}
	o.debounce.Trigger(func() {
		_, _ = o.RefreshQuote(o.ctx)
	})
}

func (o *Orchestrator) paramsLocked() Params {
	return Params{
		SrcChain:  o.route.SrcChain,
		DstChain:  o.route.DstChain,
		SrcToken:  o.route.SrcToken,
		DstToken:  o.route.DstToken,
		AmountRaw: o.amountRaw,
		Wallet:    o.wallet.Address(),
	}
}

// RefreshQuote fetches a quote for the current inputs. A response for
// inputs that changed meanwhile is dropped with ErrStaleRequest.
func (o *Orchestrator) RefreshQuote(ctx context.Context) (*types.Quote, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if o.phase.submitting() {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	p := o.paramsLocked()
	if err := checkRoute(p); err != nil {
		o.mu.Unlock()
		o.report(err)
		return nil, err
	}

	seq := o.seq
	o.quoting++
	entered := o.phase != PhaseQuoting && o.phase != PhasePolling
	if entered {
		o.phase = PhaseQuoting
	}
	o.mu.Unlock()

	if entered {
		o.emit(Event{Kind: EventPhaseChanged, Phase: PhaseQuoting})
	}
	o.notifier.Notify(notify.Notification{Level: notify.Loading, Message: "Fetching quote..."})

	q, err := o.quotes.GetQuote(ctx, p)

	o.mu.Lock()
	o.quoting--
	last := o.quoting == 0
	stale := seq != o.seq || o.closed
	left := last && o.phase == PhaseQuoting
	if left {
		o.phase = PhaseIdle
	}
	if err == nil && !stale {
		o.quote = q
	}
	phase := o.phase
	o.mu.Unlock()

	switch {
	case stale:
		if left {
			o.notifier.Clear()
		}
		o.logger.DebugContext(ctx, "dropping stale quote response")
		err = ErrStaleRequest
	case err != nil:
		o.report(err)
	default:
		o.notifier.Clear()
	}

	if left {
		o.emit(Event{Kind: EventPhaseChanged, Phase: phase, Err: err})
	}
	if err != nil {
		return nil, err
	}

	o.emit(Event{Kind: EventQuoteUpdated, Phase: phase, Quote: q})
	return q, nil
}

// Submit starts a new attempt: it cancels any polling session, checks the
// allowance, and either runs the approval branch or re-quotes, builds,
// signs and submits the order, then starts polling it.
func (o *Orchestrator) Submit(ctx context.Context) (*SubmitOutcome, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if o.phase.submitting() {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	p := o.paramsLocked()
	if err := checkRoute(p); err != nil {
		o.mu.Unlock()
		o.report(err)
		return nil, err
	}

	o.seq++
	seq := o.seq
	old := o.detachPollLocked()
	o.current = nil
	o.phase = PhaseCheckingAllowance
	o.progress = 0
	o.mu.Unlock()

	o.debounce.Cancel()
	if old != nil {
		old.Stop()
		<-old.Done()
	}
	o.emit(Event{Kind: EventPhaseChanged, Phase: PhaseCheckingAllowance})

	o.notifier.Notify(notify.Notification{Level: notify.Loading, Message: "Checking allowance..."})
	ok, err := o.allowance.HasSufficientAllowance(ctx, p.SrcToken, p.Wallet, p.SrcChain, p.AmountRaw)
	if staleErr := o.checkSeq(seq); staleErr != nil {
		return nil, o.abortStale(staleErr)
	}
	if err != nil {
		return nil, o.abort(PhaseIdle, err, false)
	}
	if !ok {
		return o.approve(ctx, seq, p)
	}
	return o.place(ctx, seq, p)
}

func (o *Orchestrator) approve(ctx context.Context, seq uint64, p Params) (*SubmitOutcome, error) {
	o.transition(PhaseAwaitingApproval, 0)
	o.notifier.Notify(notify.Notification{Level: notify.Loading, Message: "Requesting approval transaction..."})

	tx, err := o.approvals.RequestApprovalTransaction(ctx, p.SrcToken, p.SrcChain)
	if staleErr := o.checkSeq(seq); staleErr != nil {
		return nil, o.abortStale(staleErr)
	}
	if err != nil {
		return nil, o.abort(PhaseIdle, err, false)
	}

	o.notifier.Notify(notify.Notification{Level: notify.Loading, Message: "Confirm the approval in your wallet..."})
	txHash, err := o.approvals.Send(ctx, tx)
	if err != nil {
		return nil, o.abort(PhaseIdle, err, false)
	}

	// once sent, the approval is followed to its receipt even if inputs change
	o.transition(PhaseConfirmingApproval, 0)
	o.notifier.Notify(notify.Notification{Level: notify.Loading, Message: "Waiting for approval confirmation..."})

	if _, err := o.approvals.Confirm(ctx, txHash); err != nil {
		return nil, o.abort(PhaseFailed, err, true)
	}

	o.transition(PhaseIdle, 0)
	o.notifier.Notify(notify.Notification{Level: notify.Success, Message: "Approval confirmed. Submit again to place the order."})

	return &SubmitOutcome{Approved: true, ApprovalTx: txHash}, nil
}

func (o *Orchestrator) place(ctx context.Context, seq uint64, p Params) (*SubmitOutcome, error) {
	o.transition(PhaseBuilding, progressBuilding)
	o.notifier.Notify(notify.Notification{Level: notify.Loading, Message: "Refreshing quote..."})

	q, err := o.quotes.GetQuote(ctx, p)
	if staleErr := o.checkSeq(seq); staleErr != nil {
		return nil, o.abortStale(staleErr)
	}
	if err != nil {
		return nil, o.abort(PhaseIdle, err, true)
	}
	o.mu.Lock()
	o.quote = q
	o.mu.Unlock()
	o.emit(Event{Kind: EventQuoteUpdated, Phase: PhaseBuilding, Progress: progressBuilding, Quote: q})

	o.notifier.Notify(notify.Notification{Level: notify.Loading, Message: "Building order..."})
	built, err := o.builder.BuildOrder(ctx, q, p)
	if staleErr := o.checkSeq(seq); staleErr != nil {
		return nil, o.abortStale(staleErr)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidBuildResponse) {
			return nil, o.abort(PhaseFailed, err, true)
		}
		return nil, o.abort(PhaseIdle, err, true)
	}

	o.transition(PhaseSigning, progressSigning)
	o.notifier.Notify(notify.Notification{Level: notify.Loading, Message: "Sign the order in your wallet..."})

	signed, err := o.signer.SignOrder(ctx, built)
	if staleErr := o.checkSeq(seq); staleErr != nil {
		return nil, o.abortStale(staleErr)
	}
	if err != nil {
		return nil, o.abort(PhaseIdle, err, false)
	}

	o.transition(PhaseSubmitting, progressSubmitting)
	o.notifier.Notify(notify.Notification{Level: notify.Loading, Message: "Submitting order..."})

	res, err := o.submitter.SubmitOrder(ctx, signed)
	if err != nil {
		if errors.Is(err, ErrExtensionTampered) {
			return nil, o.abort(PhaseFailed, err, true)
		}
		return nil, o.abort(PhaseIdle, err, true)
	}

	rec := &types.OrderRecord{
		OrderHash: res.OrderHash,
		QuoteID:   q.QuoteID,
		Status:    res.Status,
		SrcChain:  p.SrcChain,
		DstChain:  p.DstChain,
		Maker:     p.Wallet,
		SrcToken:  p.SrcToken,
		DstToken:  p.DstToken,
		SrcAmount: q.SrcAmount,
		DstAmount: q.DstAmount,
		Progress:  Progress(res.Status, progressSubmitted),
	}
	stored, err := o.orders.Open(rec)
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to store order, tracking in memory",
			slog.String("order_hash", res.OrderHash), slog.Any("error", err))
		stored = rec
		stored.ID = res.OrderHash
		stored.CreatedAt = time.Now()
		stored.UpdatedAt = stored.CreatedAt
	}

	o.notifier.Notify(notify.Notification{Level: notify.Info, Message: "Order submitted: " + res.OrderHash})
	if err := o.track(stored); err != nil {
		return &SubmitOutcome{Order: stored.Clone()}, err
	}

	return &SubmitOutcome{Order: stored.Clone()}, nil
}

// track makes rec the current order and starts its polling session after
// any previous session has fully stopped
func (o *Orchestrator) track(rec *types.OrderRecord) error {
	o.mu.Lock()
	for o.poll != nil {
		old := o.detachPollLocked()
		o.mu.Unlock()
		old.Stop()
		<-old.Done()
		o.mu.Lock()
	}

	o.quote = nil
	o.current = rec.Clone()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}

	o.pollSeq++
	id := o.pollSeq
	progress := max(rec.Progress, progressSubmitted)
	handle, err := o.poller.Start(o.ctx, PollTarget{
		OrderHash: rec.OrderHash,
		SrcChain:  rec.SrcChain,
		DstChain:  rec.DstChain,
		Status:    rec.Status,
		Progress:  progress,
	}, func(u PollUpdate) {
		o.onPoll(id, u)
	})
	if err != nil {
		o.mu.Unlock()
		return o.abort(PhaseFailed, err, true)
	}
	o.poll = handle
	o.phase = PhasePolling
	o.progress = progress
	current := o.current.Clone()
	o.mu.Unlock()

	o.emit(Event{Kind: EventQuoteUpdated, Phase: PhasePolling, Progress: progress})
	o.emit(Event{Kind: EventOrderCreated, Phase: PhasePolling, Progress: progress, Order: current})
	o.emit(Event{Kind: EventPhaseChanged, Phase: PhasePolling, Progress: progress})
	return nil
}

// onPoll runs on the session goroutine. It must never wait for a session
// to finish.
func (o *Orchestrator) onPoll(id uint64, u PollUpdate) {
	o.mu.Lock()
	if id != o.pollSeq || o.closed || o.current == nil {
		o.mu.Unlock()
		return
	}

	// live orders never lose progress
	if !u.Terminal && u.Progress < o.progress {
		u.Progress = o.progress
	}

	key := o.current.Key()
	rec, changed, err := o.orders.ApplyReport(key, u.Report, u.Progress)
	if err != nil {
		o.logger.Warn("failed to persist order status", slog.String("order", key), slog.Any("error", err))
		rec = o.current.Clone()
		changed = order.Merge(rec, u.Report, u.Progress, time.Now())
	}

	o.current = rec.Clone()
	o.progress = rec.Progress

	phaseChanged := false
	if u.Terminal {
		// the session stops itself
		o.poll = nil
		phaseChanged = true
		if u.Report.Status == types.OrderFilled {
			o.phase = PhaseSucceeded
		} else {
			o.phase = PhaseIdle
			o.current = nil
		}
	}
	phase, progress := o.phase, o.progress
	o.mu.Unlock()

	if changed {
		o.emit(Event{Kind: EventOrderUpdated, Phase: phase, Progress: progress, Order: rec})
	}
	if phaseChanged {
		o.emit(Event{Kind: EventPhaseChanged, Phase: phase, Progress: progress})
	}
}

// Dismiss stops tracking the order stored under key and deletes its record
func (o *Orchestrator) Dismiss(key string) error {
	o.mu.Lock()
	var old *PollHandle
	phaseChanged := false
	if o.current != nil && (o.current.Key() == key || o.current.ID == key) {
		key = o.current.Key()
		old = o.detachPollLocked()
		o.current = nil
		if o.phase == PhasePolling || o.phase == PhaseSucceeded {
			o.phase = PhaseIdle
			o.progress = 0
			phaseChanged = true
		}
	}
	o.mu.Unlock()

	if old != nil {
		old.Stop()
		<-old.Done()
	}
	if phaseChanged {
		o.emit(Event{Kind: EventPhaseChanged, Phase: PhaseIdle})
	}

	return o.orders.Dismiss(key)
}

// Close stops the polling session and any pending quote. It must not be
// called from an Observer.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	old := o.detachPollLocked()
	o.mu.Unlock()

	o.debounce.Stop()
	if old != nil {
		old.Stop()
	}
	o.cancel()
	if old != nil {
		<-old.Done()
	}
	o.notifier.Clear()
}

// detachPollLocked forgets the active session so its callbacks are ignored
func (o *Orchestrator) detachPollLocked() *PollHandle {
	old := o.poll
	o.poll = nil
	o.pollSeq++
	return old
}

func (o *Orchestrator) checkSeq(seq uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if o.seq != seq {
		return ErrStaleRequest
	}
	return nil
}

func (o *Orchestrator) transition(p Phase, progress int) {
	o.mu.Lock()
	o.phase = p
	o.progress = progress
	o.mu.Unlock()

	o.emit(Event{Kind: EventPhaseChanged, Phase: p, Progress: progress})
}

// abort ends the attempt in phase next and reports err once
func (o *Orchestrator) abort(next Phase, err error, clearQuote bool) error {
	o.mu.Lock()
	o.phase = next
	o.progress = 0
	if clearQuote {
		o.quote = nil
	}
	o.mu.Unlock()

	o.report(err)
	if clearQuote {
		o.emit(Event{Kind: EventQuoteUpdated, Phase: next})
	}
	o.emit(Event{Kind: EventPhaseChanged, Phase: next, Err: err})
	return err
}

// abortStale drops an attempt whose inputs changed and quotes the new ones
func (o *Orchestrator) abortStale(err error) error {
	err = o.abort(PhaseIdle, err, false)
	if !errors.Is(err, ErrClosed) {
		o.scheduleQuote()
	}
	return err
}

// report logs err and shows exactly one notification for it
func (o *Orchestrator) report(err error) {
	if errors.Is(err, ErrClosed) {
		return
	}

	level := notify.Error
	switch {
	case Rejected(err), errors.Is(err, ErrSameChain), errors.Is(err, ErrStaleRequest):
		level = notify.Warning
		o.logger.Info("swap step declined", slog.Any("error", err))
	case Recoverable(err):
		o.logger.Error("swap step failed", slog.Any("error", err))
	default:
		o.logger.Error("swap attempt aborted", slog.Any("error", err))
	}

	o.notifier.Notify(notify.Notification{Level: level, Message: UserMessage(err)})
}
