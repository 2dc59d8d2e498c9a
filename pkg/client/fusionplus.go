package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"xswap/pkg/types"
)

// maxResponseBytes caps how much of a response body is read
const maxResponseBytes = 4 << 20

// Options configures a FusionPlusClient
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RateLimit  float64 // requests per second
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// FusionPlusClient talks to the upstream cross-chain liquidity API
type FusionPlusClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewFusionPlusClient creates a new API client
func NewFusionPlusClient(opts Options) *FusionPlusClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &FusionPlusClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.With(slog.String("component", "fusionplus")),
	}
}

// QuoteRequest asks for a cross-chain price
type QuoteRequest struct {
	SrcChain        int    `json:"srcChain"`
	DstChain        int    `json:"dstChain"`
	SrcTokenAddress string `json:"srcTokenAddress"`
	DstTokenAddress string `json:"dstTokenAddress"`
	Amount          string `json:"amount"`
	WalletAddress   string `json:"walletAddress"`
	EnableEstimate  bool   `json:"enableEstimate"`
}

// QuoteResponse is the decoded quote body plus the bytes it came from
type QuoteResponse struct {
	QuoteID        string                        `json:"quoteId"`
	SrcTokenAmount string                        `json:"srcTokenAmount"`
	DstTokenAmount string                        `json:"dstTokenAmount"`
	Presets        map[string]types.PresetDetail `json:"presets"`
	Raw            json.RawMessage               `json:"-"`
}

// BuildRequest asks the upstream to turn a quote into a signable order
type BuildRequest struct {
	Quote           json.RawMessage `json:"quote"`
	SrcChain        int             `json:"srcChain"`
	DstChain        int             `json:"dstChain"`
	SrcTokenAddress string          `json:"srcTokenAddress"`
	DstTokenAddress string          `json:"dstTokenAddress"`
	Amount          string          `json:"amount"`
	WalletAddress   string          `json:"walletAddress"`
}

// BuildResponse carries the typed data and extension. TypedData is a
// pointer so a missing section can be told apart from an empty one.
type BuildResponse struct {
	TypedData *types.OrderTypedData `json:"typedData"`
	Extension string                `json:"extension"`
	OrderHash string                `json:"orderHash"`
}

// SubmitRequest hands a signed order to the relayer
type SubmitRequest struct {
	Order     types.OrderMessage `json:"order"`
	Signature string             `json:"signature"`
	Extension string             `json:"extension"`
	QuoteID   string             `json:"quoteId"`
	SrcChain  int                `json:"srcChain"`
	DstChain  int                `json:"dstChain"`
}

// SubmitResponse is the relayer acknowledgement
type SubmitResponse struct {
	OrderHash string `json:"orderHash"`
	Status    string `json:"status"`
}

// StatusResponse is one status report for an order
type StatusResponse struct {
	OrderHash string       `json:"orderHash"`
	Status    string       `json:"status"`
	Fills     []types.Fill `json:"fills"`
	SrcTxHash string       `json:"srcTxHash"`
	DstTxHash string       `json:"dstTxHash"`
}

// ApproveTransaction is the approval payload returned upstream
type ApproveTransaction struct {
	To    string     `json:"to"`
	Data  string     `json:"data"`
	Value flexString `json:"value"`
}

type allowanceResponse struct {
	Allowance flexString `json:"allowance"`
}

// GetQuote requests a quote for a cross-chain swap
func (c *FusionPlusClient) GetQuote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/quote", nil, req, &raw); err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	resp := &QuoteResponse{}
	if err := json.Unmarshal(raw, resp); err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	resp.Raw = raw

	return resp, nil
}

// GetAllowance returns the spender allowance as a decimal string
func (c *FusionPlusClient) GetAllowance(ctx context.Context, tokenAddress, walletAddress string, chainID int) (string, error) {
	query := url.Values{}
	query.Set("tokenAddress", tokenAddress)
	query.Set("walletAddress", walletAddress)
	query.Set("chainId", strconv.Itoa(chainID))

	var resp allowanceResponse
	if err := c.do(ctx, http.MethodGet, "/allowance", query, nil, &resp); err != nil {
		return "", fmt.Errorf("failed to get allowance: %w", err)
	}

	return string(resp.Allowance), nil
}

// GetApproveTransaction returns the transaction that approves the settlement contract
func (c *FusionPlusClient) GetApproveTransaction(ctx context.Context, tokenAddress string, chainID int) (*ApproveTransaction, error) {
	query := url.Values{}
	query.Set("tokenAddress", tokenAddress)
	query.Set("chainId", strconv.Itoa(chainID))

	var resp ApproveTransaction
	if err := c.do(ctx, http.MethodGet, "/approve-transaction", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get approve transaction: %w", err)
	}

	return &resp, nil
}

// BuildOrder turns a quote into typed data and an extension
func (c *FusionPlusClient) BuildOrder(ctx context.Context, req BuildRequest) (*BuildResponse, error) {
	var resp BuildResponse
	if err := c.do(ctx, http.MethodPost, "/build", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to build order: %w", err)
	}

	return &resp, nil
}

// SubmitOrder posts a signed order to the relayer
func (c *FusionPlusClient) SubmitOrder(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/submit", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to submit order: %w", err)
	}

	return &resp, nil
}

// GetOrderStatus checks the execution status of an order
func (c *FusionPlusClient) GetOrderStatus(ctx context.Context, orderHash string, srcChain, dstChain int) (*StatusResponse, error) {
	query := url.Values{}
	query.Set("orderHash", orderHash)
	query.Set("srcChain", strconv.Itoa(srcChain))
	query.Set("dstChain", strconv.Itoa(dstChain))

	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	return &resp, nil
}

// SubmitSecret reveals the hashlock secret of an order once both escrows are deployed
func (c *FusionPlusClient) SubmitSecret(ctx context.Context, orderHash, secret string) error {
	body := map[string]string{
		"orderHash": orderHash,
		"secret":    secret,
	}

	// empty bodies are a valid acknowledgement
	if err := c.do(ctx, http.MethodPost, "/secret", nil, body, nil); err != nil {
		return fmt.Errorf("failed to submit secret: %w", err)
	}

	return nil
}

func (c *FusionPlusClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.DebugContext(ctx, "upstream call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	// Check for successful status codes (200-299)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, respBody[:min(len(respBody), maxResponseBytes)])
	}
	if len(respBody) > maxResponseBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, maxResponseBytes)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// flexString accepts both JSON strings and numbers
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
