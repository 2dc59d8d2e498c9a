package swap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/holiman/uint256"

	"xswap/pkg/client"
	"xswap/pkg/types"
)

var (
	routeUnavailableHints = []string{"not supported", "not available", "unsupported", "no route", "insufficient liquidity"}
	amountTooSmallHints   = []string{"minimum", "too small", "too low"}
)

// QuoteClient fetches quotes and normalizes them into types.Quote
type QuoteClient struct {
	api    QuoteAPI
	logger *slog.Logger
}

func NewQuoteClient(api QuoteAPI, logger *slog.Logger) *QuoteClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteClient{api: api, logger: logger.With(slog.String("component", "quote"))}
}

// GetQuote prices p. Guards run before any network call.
func (c *QuoteClient) GetQuote(ctx context.Context, p Params) (*types.Quote, error) {
	if err := checkRoute(p); err != nil {
		return nil, err
	}

	resp, err := c.api.GetQuote(ctx, client.QuoteRequest{
		SrcChain:        p.SrcChain,
		DstChain:        p.DstChain,
		SrcTokenAddress: p.SrcToken,
		DstTokenAddress: p.DstToken,
		Amount:          p.AmountRaw,
		WalletAddress:   p.Wallet,
		EnableEstimate:  true,
	})
	if err != nil {
		return nil, classifyQuoteError(err)
	}

	if resp.QuoteID == "" {
		return nil, fmt.Errorf("%w: response has no quoteId", ErrQuoteFailed)
	}
	if _, err := parseAmount(resp.DstTokenAmount); err != nil {
		return nil, fmt.Errorf("%w: dstTokenAmount: %w", ErrQuoteFailed, err)
	}

	srcAmount := resp.SrcTokenAmount
	if srcAmount == "" {
		srcAmount = p.AmountRaw
	}

	c.logger.DebugContext(ctx, "quote received",
		slog.String("quote_id", resp.QuoteID),
		slog.String("dst_amount", resp.DstTokenAmount),
	)

	return &types.Quote{
		QuoteID:   resp.QuoteID,
		SrcAmount: srcAmount,
		DstAmount: resp.DstTokenAmount,
		SrcChain:  p.SrcChain,
		DstChain:  p.DstChain,
		SrcToken:  p.SrcToken,
		DstToken:  p.DstToken,
		Presets:   resp.Presets,
		Raw:       resp.Raw,
	}, nil
}

// Matches reports whether q was issued for the route and amount of p
func Matches(q *types.Quote, p Params) bool {
	return q != nil &&
		q.SrcChain == p.SrcChain &&
		q.DstChain == p.DstChain &&
		strings.EqualFold(q.SrcToken, p.SrcToken) &&
		strings.EqualFold(q.DstToken, p.DstToken)
}

func classifyQuoteError(err error) error {
	if apiErr, ok := client.AsAPIError(err); ok && apiErr.IsClientError() {
		msg := strings.ToLower(apiErr.Message + " " + apiErr.Details)
		for _, hint := range routeUnavailableHints {
			if strings.Contains(msg, hint) {
				return fmt.Errorf("%w: %w", ErrRouteUnavailable, err)
			}
		}
		for _, hint := range amountTooSmallHints {
			if strings.Contains(msg, hint) {
				return fmt.Errorf("%w: %w", ErrAmountTooSmall, err)
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrQuoteFailed, err)
}

func checkRoute(p Params) error {
	if p.SrcChain == p.DstChain {
		return ErrSameChain
	}
	if _, err := parseAmount(p.AmountRaw); err != nil {
		return err
	}
	return nil
}

// parseAmount accepts positive base-10 integers that fit in 256 bits
func parseAmount(s string) (*uint256.Int, error) {
	n, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if n.IsZero() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return n, nil
}
