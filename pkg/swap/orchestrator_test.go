package swap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xswap/pkg/client"
	"xswap/pkg/notify"
	"xswap/pkg/types"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var routeAB = Route{SrcChain: 1, DstChain: 137, SrcToken: tokenA, DstToken: tokenB}

func TestHappyPathWithApproval(t *testing.T) {
	api := &fakeAPI{
		allowanceFn: func(n int) (string, error) {
			if n == 0 {
				return "0", nil
			}
			return oneUnit, nil
		},
		statusFn: statusScript("created", "src-deployed", "dst-deployed", "filled"),
	}
	w := newFakeWallet()
	h := newHarness(t, api, w, time.Millisecond)
	ctx := context.Background()

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)
	require.Eventually(t, func() bool {
		q := h.orch.Quote()
		return q != nil && q.QuoteID == "q1"
	}, waitFor, tick)
	require.Equal(t, "2000000", h.orch.Quote().DstAmount)
	require.Equal(t, PhaseIdle, h.orch.Phase())

	// first submit stops after the approval
	out, err := h.orch.Submit(ctx)
	require.NoError(t, err)
	require.True(t, out.Approved)
	require.Nil(t, out.Order)
	require.Equal(t, PhaseIdle, h.orch.Phase())
	require.Len(t, w.sent, 1)
	require.Equal(t, "0", w.sent[0].Value)
	require.Zero(t, api.count("build"))
	require.Zero(t, api.count("submit"))

	// second submit re-quotes, builds, signs and submits
	out, err = h.orch.Submit(ctx)
	require.NoError(t, err)
	require.False(t, out.Approved)
	require.Equal(t, hash123, out.Order.OrderHash)
	require.Equal(t, 2, api.count("quote"))
	require.Nil(t, h.orch.Quote())

	require.Len(t, api.submits, 1)
	require.Equal(t, extension, api.submits[0].Extension)
	require.Equal(t, sigDef, api.submits[0].Signature)
	require.Equal(t, "q1", api.submits[0].QuoteID)
	require.JSONEq(t, `{"quoteId":"q1","dstTokenAmount":"2000000","srcTokenAmount":"1000000000000000000"}`, string(api.builds[0].Quote))

	require.Eventually(t, func() bool {
		return h.orch.Phase() == PhaseSucceeded && h.orch.poller.Active() == 0
	}, waitFor, tick)

	rec, err := h.orders.Get(hash123)
	require.NoError(t, err)
	require.Equal(t, types.OrderFilled, rec.Status)
	require.Equal(t, 100, rec.Progress)
	require.Equal(t, 100, h.orch.Progress())
	require.Equal(t, types.OrderFilled, h.orch.CurrentOrder().Status)

	require.Equal(t, 4, api.count("status"))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 4, api.count("status"))

	cur, ok := h.notes.Current()
	require.True(t, ok)
	require.Equal(t, notify.Success, cur.Level)
	require.Contains(t, cur.Message, "filled")
	require.Zero(t, h.notes.Count(notify.Error))

	require.Equal(t, 1, h.recorder.count(EventOrderCreated))
	require.Equal(t, 3, h.recorder.count(EventOrderUpdated))
	require.Subset(t, h.recorder.phases(), []Phase{
		PhaseQuoting, PhaseCheckingAllowance, PhaseAwaitingApproval, PhaseConfirmingApproval,
		PhaseBuilding, PhaseSigning, PhaseSubmitting, PhasePolling, PhaseSucceeded,
	})
}

func TestProgressNeverDecreasesWhilePolling(t *testing.T) {
	api := &fakeAPI{statusFn: statusScript("created", "src-deployed", "dst-deployed", "filled")}
	h := newHarness(t, api, newFakeWallet(), time.Hour)

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)

	_, err := h.orch.Submit(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, h.orch.Progress(), progressSubmitted)

	require.Eventually(t, func() bool {
		return h.orch.Phase() == PhaseSucceeded && h.orch.poller.Active() == 0
	}, waitFor, tick)

	var seen []int
	for _, ev := range h.recorder.snapshot() {
		if ev.Phase == PhasePolling || ev.Phase == PhaseSucceeded {
			seen = append(seen, ev.Progress)
		}
	}
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		require.GreaterOrEqual(t, seen[i], seen[i-1], "progress sequence %v", seen)
	}
	require.Equal(t, 100, seen[len(seen)-1])

	rec, err := h.orders.Get(hash123)
	require.NoError(t, err)
	require.Equal(t, 100, rec.Progress)
}

func TestExpiredOrder(t *testing.T) {
	api := &fakeAPI{statusFn: statusScript("pending", "pending", "pending", "expired")}
	h := newHarness(t, api, newFakeWallet(), time.Hour)

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)

	_, err := h.orch.Submit(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.orch.Phase() == PhaseIdle && h.orch.poller.Active() == 0
	}, waitFor, tick)

	rec, err := h.orders.Get(hash123)
	require.NoError(t, err)
	require.Equal(t, types.OrderExpired, rec.Status)
	require.Equal(t, 0, rec.Progress)
	require.Nil(t, h.orch.CurrentOrder())

	require.Equal(t, 4, api.count("status"))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 4, api.count("status"))

	require.Equal(t, 1, h.notes.Count(notify.Warning))
	require.Zero(t, h.notes.Count(notify.Error))
}

func TestRejectedSignatureReturnsToIdle(t *testing.T) {
	api := &fakeAPI{}
	w := newFakeWallet()
	w.rejectSign = true
	h := newHarness(t, api, w, time.Hour)

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)

	_, err := h.orch.Submit(context.Background())
	require.ErrorIs(t, err, ErrSignatureRejected)
	require.True(t, Recoverable(err))
	require.Equal(t, PhaseIdle, h.orch.Phase())
	require.Equal(t, 1, api.count("build"))
	require.Zero(t, api.count("submit"))
	require.Zero(t, h.orch.poller.Active())

	require.Equal(t, 1, h.notes.Count(notify.Warning))
	require.Zero(t, h.notes.Count(notify.Error))
}

func TestChainGuardMakesNoCalls(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, newFakeWallet(), time.Hour)

	h.orch.SetRoute(Route{SrcChain: 1, DstChain: 1, SrcToken: tokenA, DstToken: tokenB})
	h.orch.SetAmount(oneUnit)

	_, err := h.orch.RefreshQuote(context.Background())
	require.ErrorIs(t, err, ErrSameChain)

	_, err = h.orch.Submit(context.Background())
	require.ErrorIs(t, err, ErrSameChain)

	p := Params{SrcChain: 10, DstChain: 10, SrcToken: tokenA, DstToken: tokenB, AmountRaw: oneUnit, Wallet: makerAddr}
	_, err = NewQuoteClient(api, nil).GetQuote(context.Background(), p)
	require.ErrorIs(t, err, ErrSameChain)

	_, err = NewOrderBuilder(api).BuildOrder(context.Background(), &types.Quote{QuoteID: "q1", SrcChain: 10, DstChain: 10, SrcToken: tokenA, DstToken: tokenB}, p)
	require.ErrorIs(t, err, ErrSameChain)

	signed := &types.SignedOrder{BuiltOrder: types.BuiltOrder{SrcChain: 10, DstChain: 10, Extension: extension}}
	signed.Seal()
	_, err = NewOrderSubmitter(api, nil).SubmitOrder(context.Background(), signed)
	require.ErrorIs(t, err, ErrSameChain)

	require.Zero(t, api.totalCalls())
	require.Equal(t, PhaseIdle, h.orch.Phase())
}

func TestStaleQuoteIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		quoteFn: func(n int, req client.QuoteRequest) (*client.QuoteResponse, error) {
			if n == 0 {
				<-release
				return quoteResponse("qX", "2000000"), nil
			}
			return quoteResponse("qY-"+req.DstTokenAddress, "3000000"), nil
		},
	}
	h := newHarness(t, api, newFakeWallet(), time.Hour)

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)

	type result struct {
		q   *types.Quote
		err error
	}
	done := make(chan result, 1)
	go func() {
		q, err := h.orch.RefreshQuote(context.Background())
		done <- result{q, err}
	}()

	require.Eventually(t, func() bool { return api.count("quote") == 1 }, waitFor, tick)
	require.Equal(t, PhaseQuoting, h.orch.Phase())

	routeY := Route{SrcChain: 1, DstChain: 137, SrcToken: tokenA, DstToken: tokenC}
	h.orch.SetRoute(routeY)
	close(release)

	res := <-done
	require.ErrorIs(t, res.err, ErrStaleRequest)
	require.Nil(t, res.q)
	require.Nil(t, h.orch.Quote())
	require.Equal(t, routeY, h.orch.Route())
	require.Equal(t, PhaseIdle, h.orch.Phase())
	require.Zero(t, h.notes.Count(notify.Error))

	q, err := h.orch.RefreshQuote(context.Background())
	require.NoError(t, err)
	require.Equal(t, "qY-"+tokenC, q.QuoteID)
	require.Equal(t, tokenC, h.orch.Quote().DstToken)
}

func TestStaleQuoteKeepsSubmitNotification(t *testing.T) {
	releaseQuote := make(chan struct{})
	releaseAllowance := make(chan struct{})
	api := &fakeAPI{
		quoteFn: func(n int, req client.QuoteRequest) (*client.QuoteResponse, error) {
			if n == 0 {
				<-releaseQuote
			}
			return quoteResponse("q1", "2000000"), nil
		},
		allowanceFn: func(int) (string, error) {
			<-releaseAllowance
			return "", errors.New("rpc unavailable")
		},
	}
	h := newHarness(t, api, newFakeWallet(), time.Hour)

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)

	quoted := make(chan error, 1)
	go func() {
		_, err := h.orch.RefreshQuote(context.Background())
		quoted <- err
	}()
	require.Eventually(t, func() bool { return api.count("quote") == 1 }, waitFor, tick)

	submitted := make(chan error, 1)
	go func() {
		_, err := h.orch.Submit(context.Background())
		submitted <- err
	}()
	require.Eventually(t, func() bool { return api.count("allowance") == 1 }, waitFor, tick)

	close(releaseQuote)
	require.ErrorIs(t, <-quoted, ErrStaleRequest)

	cur, ok := h.notes.Current()
	require.True(t, ok)
	require.Equal(t, notify.Loading, cur.Level)
	require.Equal(t, "Checking allowance...", cur.Message)
	require.Equal(t, PhaseCheckingAllowance, h.orch.Phase())

	close(releaseAllowance)
	require.Error(t, <-submitted)
	require.Equal(t, PhaseIdle, h.orch.Phase())
}

func TestSwitchTokensInvalidatesQuoteButKeepsPolling(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, newFakeWallet(), time.Hour)

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)
	_, err := h.orch.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhasePolling, h.orch.Phase())

	_, err = h.orch.RefreshQuote(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h.orch.Quote())

	h.orch.SwitchTokens()
	require.Nil(t, h.orch.Quote())
	require.Equal(t, Route{SrcChain: 137, DstChain: 1, SrcToken: tokenB, DstToken: tokenA}, h.orch.Route())
	require.Equal(t, PhasePolling, h.orch.Phase())
	require.Equal(t, 1, h.orch.poller.Active())
}

func TestNewAttemptCancelsPreviousPoller(t *testing.T) {
	api := &fakeAPI{
		submitFn: func(n int, _ client.SubmitRequest) (*client.SubmitResponse, error) {
			return &client.SubmitResponse{OrderHash: hashN(n + 1), Status: "created"}, nil
		},
	}
	h := newHarness(t, api, newFakeWallet(), time.Hour)
	ctx := context.Background()

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)

	_, err := h.orch.Submit(ctx)
	require.NoError(t, err)
	first := hashN(1)
	require.Eventually(t, func() bool { return api.statusCallsFor(first) >= 2 }, waitFor, tick)

	out, err := h.orch.Submit(ctx)
	require.NoError(t, err)
	second := hashN(2)
	require.Equal(t, second, out.Order.OrderHash)

	stale := api.statusCallsFor(first)
	require.Eventually(t, func() bool { return api.statusCallsFor(second) >= 3 }, waitFor, tick)
	require.Equal(t, stale, api.statusCallsFor(first))
	require.Equal(t, 1, h.orch.poller.Active())
	require.Equal(t, second, h.orch.CurrentOrder().OrderHash)

	// the first order stays in history
	_, err = h.orders.Get(first)
	require.NoError(t, err)
}

func TestInvalidBuildResponseFails(t *testing.T) {
	api := &fakeAPI{
		buildFn: func(client.BuildRequest) (*client.BuildResponse, error) {
			return buildResponse(""), nil
		},
	}
	w := newFakeWallet()
	h := newHarness(t, api, w, time.Hour)

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)

	_, err := h.orch.Submit(context.Background())
	require.ErrorIs(t, err, ErrInvalidBuildResponse)
	require.False(t, Recoverable(err))
	require.Equal(t, PhaseFailed, h.orch.Phase())
	require.Nil(t, h.orch.Quote())
	require.Zero(t, w.signCount())
	require.Equal(t, 1, h.notes.Count(notify.Error))
}

func TestSubmissionFailureReturnsToIdle(t *testing.T) {
	api := &fakeAPI{
		submitFn: func(int, client.SubmitRequest) (*client.SubmitResponse, error) {
			return nil, &client.APIError{StatusCode: 400, Message: "invalid signature"}
		},
	}
	h := newHarness(t, api, newFakeWallet(), time.Hour)

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)

	_, err := h.orch.Submit(context.Background())
	require.ErrorIs(t, err, ErrSubmissionFailed)
	require.Equal(t, PhaseIdle, h.orch.Phase())
	require.Nil(t, h.orch.Quote())
	require.Zero(t, h.orch.poller.Active())

	require.Equal(t, 1, h.notes.Count(notify.Error))
	cur, _ := h.notes.Current()
	require.Contains(t, cur.Message, "invalid signature")
}

func TestApprovalReceiptFailure(t *testing.T) {
	api := &fakeAPI{allowanceFn: func(int) (string, error) { return "0", nil }}
	w := newFakeWallet()
	w.receiptOK = false
	h := newHarness(t, api, w, time.Hour)

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)

	_, err := h.orch.Submit(context.Background())
	require.ErrorIs(t, err, ErrApprovalTxFailed)
	require.Equal(t, PhaseFailed, h.orch.Phase())
	require.Zero(t, api.count("build"))
	require.Equal(t, 1, h.notes.Count(notify.Error))

	// a failed attempt can be retried
	w.receiptOK = true
	out, err := h.orch.Submit(context.Background())
	require.NoError(t, err)
	require.True(t, out.Approved)
}

func TestAllowanceCheckFailure(t *testing.T) {
	api := &fakeAPI{allowanceFn: func(int) (string, error) { return "", errors.New("connection reset") }}
	h := newHarness(t, api, newFakeWallet(), time.Hour)

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)

	_, err := h.orch.Submit(context.Background())
	require.ErrorIs(t, err, ErrAllowanceCheckFailed)
	require.Equal(t, PhaseIdle, h.orch.Phase())
	require.Equal(t, 1, h.notes.Count(notify.Error))
}

func TestInputChangeDuringSubmitAborts(t *testing.T) {
	var h *harness
	api := &fakeAPI{
		allowanceFn: func(int) (string, error) {
			// the user edits the amount while the allowance is checked
			h.orch.SetAmount("5")
			return oneUnit, nil
		},
	}
	h = newHarness(t, api, newFakeWallet(), time.Hour)

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)

	_, err := h.orch.Submit(context.Background())
	require.ErrorIs(t, err, ErrStaleRequest)
	require.Equal(t, PhaseIdle, h.orch.Phase())
	require.Zero(t, api.count("build"))
}

func TestQuoteErrorsNotifyOnce(t *testing.T) {
	api := &fakeAPI{
		quoteFn: func(int, client.QuoteRequest) (*client.QuoteResponse, error) {
			return nil, &client.APIError{StatusCode: 400, Message: "Token pair not supported"}
		},
	}
	h := newHarness(t, api, newFakeWallet(), time.Hour)

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)

	_, err := h.orch.RefreshQuote(context.Background())
	require.ErrorIs(t, err, ErrRouteUnavailable)
	require.Equal(t, PhaseIdle, h.orch.Phase())
	require.Equal(t, 1, h.notes.Count(notify.Error))

	cur, ok := h.notes.Current()
	require.True(t, ok)
	require.Equal(t, UserMessage(err), cur.Message)
}

func TestDismissStopsPollingAndDeletes(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, newFakeWallet(), time.Hour)

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)
	_, err := h.orch.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, h.orch.poller.Active())

	require.NoError(t, h.orch.Dismiss(hash123))
	require.Zero(t, h.orch.poller.Active())
	require.Equal(t, PhaseIdle, h.orch.Phase())
	require.Nil(t, h.orch.CurrentOrder())

	_, err = h.orders.Get(hash123)
	require.Error(t, err)
}

func TestCloseStopsPoller(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, newFakeWallet(), time.Hour)

	h.orch.SetRoute(routeAB)
	h.orch.SetAmount(oneUnit)
	_, err := h.orch.Submit(context.Background())
	require.NoError(t, err)

	h.orch.Close()
	require.Zero(t, h.orch.poller.Active())

	calls := api.count("status")
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, calls, api.count("status"))

	_, err = h.orch.Submit(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestDebouncedQuoteUsesLastInput(t *testing.T) {
	api := &fakeAPI{
		quoteFn: func(_ int, req client.QuoteRequest) (*client.QuoteResponse, error) {
			return quoteResponse("q-"+req.Amount, "1"), nil
		},
	}
	h := newHarness(t, api, newFakeWallet(), 20*time.Millisecond)

	h.orch.SetRoute(routeAB)
	for _, amount := range []string{"1", "12", "123"} {
		h.orch.SetAmount(amount)
	}

	require.Eventually(t, func() bool {
		q := h.orch.Quote()
		return q != nil && q.QuoteID == "q-123"
	}, waitFor, tick)
	require.Equal(t, 1, api.count("quote"))
}
