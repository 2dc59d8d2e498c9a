package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xswap/pkg/logging"
	"xswap/pkg/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *FusionPlusClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFusionPlusClient(Options{
		BaseURL: srv.URL + "/",
		APIKey:  "test-key",
		Logger:  logging.Discard(),
	})
}

func TestGetQuoteKeepsRawBody(t *testing.T) {
	body := `{"quoteId":"q1","srcTokenAmount":"1000000000000000000","dstTokenAmount":"2000000","presets":{"fast":{"auctionDuration":180,"auctionStartAmount":"2010000","auctionEndAmount":"1990000"}},"extra":{"keep":true}}`

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/quote", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req QuoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, 1, req.SrcChain)
		require.Equal(t, 137, req.DstChain)
		require.Equal(t, "1000000000000000000", req.Amount)
		require.True(t, req.EnableEstimate)

		_, _ = io.WriteString(w, body)
	})

	resp, err := c.GetQuote(context.Background(), QuoteRequest{
		SrcChain:        1,
		DstChain:        137,
		SrcTokenAddress: "0xa",
		DstTokenAddress: "0xb",
		Amount:          "1000000000000000000",
		WalletAddress:   "0xw",
		EnableEstimate:  true,
	})
	require.NoError(t, err)
	require.Equal(t, "q1", resp.QuoteID)
	require.Equal(t, "2000000", resp.DstTokenAmount)
	require.Equal(t, int64(180), resp.Presets["fast"].AuctionDuration)
	require.JSONEq(t, body, string(resp.Raw))
}

func TestGetAllowanceQueryAndNumericValue(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/allowance", r.URL.Path)
		require.Equal(t, "0xtoken", r.URL.Query().Get("tokenAddress"))
		require.Equal(t, "0xwallet", r.URL.Query().Get("walletAddress"))
		require.Equal(t, "1", r.URL.Query().Get("chainId"))
		_, _ = io.WriteString(w, `{"allowance":115792089237316195423570985008687907853269984665640564039457584007913129639935}`)
	})

	allowance, err := c.GetAllowance(context.Background(), "0xtoken", "0xwallet", 1)
	require.NoError(t, err)
	require.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", allowance)
}

func TestGetApproveTransactionMissingValue(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/approve-transaction", r.URL.Path)
		require.Equal(t, "137", r.URL.Query().Get("chainId"))
		_, _ = io.WriteString(w, `{"to":"0xrouter","data":"0x095ea7b3"}`)
	})

	tx, err := c.GetApproveTransaction(context.Background(), "0xtoken", 137)
	require.NoError(t, err)
	require.Equal(t, "0xrouter", tx.To)
	require.Equal(t, "0x095ea7b3", tx.Data)
	require.Empty(t, string(tx.Value))
}

func TestBuildOrderDecodesTypedData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.JSONEq(t, `{"quoteId":"q1","x":1}`, string(req["quote"]))

		_, _ = io.WriteString(w, `{
			"typedData":{
				"domain":{"name":"1inch Aggregation Router","version":"6","chainId":1,"verifyingContract":"0x111111125421ca6dc452d289314280a0f8842a65"},
				"primaryType":"Order",
				"message":{"salt":"1","makerAsset":"0xa","takerAsset":"0xb","maker":"0xm","receiver":"0x0","makingAmount":"10","takingAmount":"20","makerTraits":"0"}
			},
			"extension":"0xabc",
			"orderHash":"0xfeed"
		}`)
	})

	resp, err := c.BuildOrder(context.Background(), BuildRequest{Quote: json.RawMessage(`{"quoteId":"q1","x":1}`)})
	require.NoError(t, err)
	require.NotNil(t, resp.TypedData)
	require.Equal(t, "6", resp.TypedData.Domain.Version)
	require.Equal(t, "20", resp.TypedData.Message.TakingAmount)
	require.Equal(t, "0xabc", resp.Extension)
}

func TestSubmitOrderAndStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		var req SubmitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "0xabc", req.Extension)
		require.Equal(t, "q1", req.QuoteID)
		_, _ = io.WriteString(w, `{"orderHash":"0x123","status":"created"}`)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "0x123", r.URL.Query().Get("orderHash"))
		require.Equal(t, "137", r.URL.Query().Get("dstChain"))
		_, _ = io.WriteString(w, `{"status":"filled","fills":[{"txHash":"0xf","filledMakingAmount":"10","filledTakingAmount":"20"}]}`)
	})
	c := newTestClient(t, mux.ServeHTTP)

	sub, err := c.SubmitOrder(context.Background(), SubmitRequest{
		Order:     types.OrderMessage{Salt: "1"},
		Signature: "0xsig",
		Extension: "0xabc",
		QuoteID:   "q1",
		SrcChain:  1,
		DstChain:  137,
	})
	require.NoError(t, err)
	require.Equal(t, "0x123", sub.OrderHash)

	status, err := c.GetOrderStatus(context.Background(), "0x123", 1, 137)
	require.NoError(t, err)
	require.Equal(t, "filled", status.Status)
	require.Len(t, status.Fills, 1)
}

func TestSubmitSecretAcceptsEmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/secret", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
	})

	require.NoError(t, c.SubmitSecret(context.Background(), "0x1", "0x2"))
}

func TestAPIErrorMessageExtraction(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error field", http.StatusBadRequest, `{"error":"token pair not supported"}`, "token pair not supported"},
		{"description field", http.StatusBadRequest, `{"statusCode":400,"description":"amount is below minimum"}`, "amount is below minimum"},
		{"status default", http.StatusNotFound, ``, "Quote not found or expired"},
		{"raw body", http.StatusBadGateway, `upstream down`, "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.GetQuote(context.Background(), QuoteRequest{})
			require.Error(t, err)

			apiErr, ok := AsAPIError(err)
			require.True(t, ok)
			require.Equal(t, tt.status, apiErr.StatusCode)
			require.Equal(t, tt.want, apiErr.Message)
			require.Equal(t, tt.status < 500, apiErr.IsClientError())
		})
	}
}

func TestOversizedResponsesAreCapped(t *testing.T) {
	pad := strings.Repeat("x", maxResponseBytes)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"allowance":"1","pad":"`+pad+`"}`)
	})
	_, err := c.GetAllowance(context.Background(), "0xtoken", "0xwallet", 1)
	require.ErrorIs(t, err, ErrResponseTooLarge)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, pad+pad)
	})
	_, err = c.GetAllowance(context.Background(), "0xtoken", "0xwallet", 1)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	require.Len(t, apiErr.Details, maxResponseBytes)
}
