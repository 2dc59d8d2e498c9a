package swap

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"xswap/pkg/client"
	"xswap/pkg/logging"
	"xswap/pkg/notify"
	"xswap/pkg/order"
	"xswap/pkg/types"
	"xswap/pkg/wallet"
)

const (
	tokenA    = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	tokenB    = "0x2791bca1f2de4661ed88a30c99a7a9449aa84174"
	tokenC    = "0xdac17f958d2ee523a2206206994597c13d831ec7"
	makerAddr = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	router    = "0x111111125421ca6dc452d289314280a0f8842a65"
	oneUnit   = "1000000000000000000"
	extension = "0xabc0000000000000000000000000000000000000000000000000000000000001"
)

var (
	hash123 = "0x123" + strings.Repeat("0", 61)
	sigDef  = "0xdef" + strings.Repeat("0", 127)
)

func hashN(n int) string {
	s := "0x" + strings.Repeat("0", 63)
	return s + string(rune('0'+n%10))
}

// fakeAPI records every upstream call and answers from scripted hooks
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	quoteFn     func(n int, req client.QuoteRequest) (*client.QuoteResponse, error)
	allowanceFn func(n int) (string, error)
	approveFn   func() (*client.ApproveTransaction, error)
	buildFn     func(req client.BuildRequest) (*client.BuildResponse, error)
	submitFn    func(n int, req client.SubmitRequest) (*client.SubmitResponse, error)
	statusFn    func(n int, hash string) (*client.StatusResponse, error)

	submits     []client.SubmitRequest
	builds      []client.BuildRequest
	statusCalls []string
}

func (f *fakeAPI) record(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	f.calls = append(f.calls, name)
	return n
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeAPI) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) statusCallsFor(hash string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, h := range f.statusCalls {
		if h == hash {
			n++
		}
	}
	return n
}

func (f *fakeAPI) GetQuote(ctx context.Context, req client.QuoteRequest) (*client.QuoteResponse, error) {
	n := f.record("quote")
	if f.quoteFn != nil {
		return f.quoteFn(n, req)
	}
	return quoteResponse("q1", "2000000"), nil
}

func (f *fakeAPI) GetAllowance(ctx context.Context, token, wallet string, chainID int) (string, error) {
	n := f.record("allowance")
	if f.allowanceFn != nil {
		return f.allowanceFn(n)
	}
	return oneUnit, nil
}

func (f *fakeAPI) GetApproveTransaction(ctx context.Context, token string, chainID int) (*client.ApproveTransaction, error) {
	f.record("approve")
	if f.approveFn != nil {
		return f.approveFn()
	}
	return &client.ApproveTransaction{To: router, Data: "0x095ea7b3"}, nil
}

func (f *fakeAPI) BuildOrder(ctx context.Context, req client.BuildRequest) (*client.BuildResponse, error) {
	f.record("build")
	f.mu.Lock()
	f.builds = append(f.builds, req)
	f.mu.Unlock()
	if f.buildFn != nil {
		return f.buildFn(req)
	}
	return buildResponse(extension), nil
}

func (f *fakeAPI) SubmitOrder(ctx context.Context, req client.SubmitRequest) (*client.SubmitResponse, error) {
	n := f.record("submit")
	f.mu.Lock()
	f.submits = append(f.submits, req)
	f.mu.Unlock()
	if f.submitFn != nil {
		return f.submitFn(n, req)
	}
	return &client.SubmitResponse{OrderHash: hash123, Status: "created"}, nil
}

func (f *fakeAPI) GetOrderStatus(ctx context.Context, hash string, src, dst int) (*client.StatusResponse, error) {
	f.record("status")
	f.mu.Lock()
	f.statusCalls = append(f.statusCalls, hash)
	n := 0
	for _, h := range f.statusCalls {
		if h == hash {
			n++
		}
	}
	f.mu.Unlock()
	if f.statusFn != nil {
		return f.statusFn(n-1, hash)
	}
	return &client.StatusResponse{Status: "pending"}, nil
}

func quoteResponse(id, dstAmount string) *client.QuoteResponse {
	raw, _ := json.Marshal(map[string]any{"quoteId": id, "dstTokenAmount": dstAmount, "srcTokenAmount": oneUnit})
	return &client.QuoteResponse{
		QuoteID:        id,
		SrcTokenAmount: oneUnit,
		DstTokenAmount: dstAmount,
		Raw:            raw,
	}
}

func buildResponse(ext string) *client.BuildResponse {
	return &client.BuildResponse{
		TypedData: &types.OrderTypedData{
			Domain: types.OrderDomain{
				Name:              "1inch Aggregation Router",
				Version:           "6",
				ChainID:           137, // deliberately not the source chain
				VerifyingContract: strings.ToUpper(router[:2]) + router[2:],
			},
			PrimaryType: "Order",
			Message: types.OrderMessage{
				Salt:         "9445680545936410419330284706951757224702878670220689583677680607556412140293",
				MakerAsset:   "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
				TakerAsset:   tokenB,
				Maker:        makerAddr,
				Receiver:     "0x0000000000000000000000000000000000000000",
				MakingAmount: oneUnit,
				TakingAmount: "2000000",
				MakerTraits:  "62419173104490761595518734106643312524177918888344010093236686688879363751936",
			},
		},
		Extension: ext,
	}
}

// exhausted returns the last status forever once the script runs out
func statusScript(statuses ...string) func(int, string) (*client.StatusResponse, error) {
	return func(n int, _ string) (*client.StatusResponse, error) {
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		return &client.StatusResponse{Status: statuses[n]}, nil
	}
}

// fakeWallet records every request and answers from its fields
type fakeWallet struct {
	mu sync.Mutex

	rejectSign bool
	signErr    error
	sendErr    error
	receiptOK  bool

	signed []apitypes.TypedData
	sent   []types.TxPayload
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{receiptOK: true}
}

func (w *fakeWallet) Address() string { return makerAddr }

func (w *fakeWallet) SignTypedData(ctx context.Context, data apitypes.TypedData) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signed = append(w.signed, data)
	if w.rejectSign {
		return "", errors.New("MetaMask Tx Signature: User rejected the request.")
	}
	if w.signErr != nil {
		return "", w.signErr
	}
	return sigDef, nil
}

func (w *fakeWallet) SendTransaction(ctx context.Context, tx types.TxPayload) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sendErr != nil {
		return "", w.sendErr
	}
	w.sent = append(w.sent, tx)
	return "0xapprove", nil
}

func (w *fakeWallet) WaitForReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return &types.Receipt{TxHash: txHash, Success: w.receiptOK, BlockNumber: 1}, nil
}

func (w *fakeWallet) signCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.signed)
}

var _ wallet.Wallet = (*fakeWallet)(nil)

type harness struct {
	api      *fakeAPI
	wallet   *fakeWallet
	notes    *notify.Recorder
	orders   *order.Manager
	orch     *Orchestrator
	recorder *eventRecorder
}

func newHarness(t *testing.T, api *fakeAPI, w *fakeWallet, debounce time.Duration) *harness {
	t.Helper()

	store, err := order.NewFileStore(filepath.Join(t.TempDir(), "orders.json"))
	require.NoError(t, err)

	h := &harness{
		api:      api,
		wallet:   w,
		notes:    &notify.Recorder{},
		orders:   order.NewManager(store),
		recorder: &eventRecorder{},
	}

	h.orch, err = New(Config{
		API:          api,
		Wallet:       w,
		Orders:       h.orders,
		Notifier:     h.notes,
		Logger:       logging.Discard(),
		Debounce:     debounce,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	h.orch.Subscribe(h.recorder.observe)
	t.Cleanup(h.orch.Close)

	return h
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Phase
	for _, ev := range r.events {
		if ev.Kind == EventPhaseChanged {
			out = append(out, ev.Phase)
		}
	}
	return out
}

func (r *eventRecorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
