package swap

import (
	"context"
	"fmt"
	"log/slog"

	"xswap/pkg/client"
	"xswap/pkg/types"
)

// OrderSubmitter posts signed orders to the relayer
type OrderSubmitter struct {
	api    SubmitAPI
	logger *slog.Logger
}

func NewOrderSubmitter(api SubmitAPI, logger *slog.Logger) *OrderSubmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderSubmitter{api: api, logger: logger.With(slog.String("component", "submit"))}
}

// SubmitOrder sends order with the extension exactly as it was built
func (s *OrderSubmitter) SubmitOrder(ctx context.Context, order *types.SignedOrder) (*types.SubmitResult, error) {
	if order == nil {
		return nil, fmt.Errorf("%w: no order", ErrSubmissionFailed)
	}
	if order.SrcChain == order.DstChain {
		return nil, ErrSameChain
	}
	if !order.ExtensionIntact() {
		return nil, ErrExtensionTampered
	}

	resp, err := s.api.SubmitOrder(ctx, client.SubmitRequest{
		Order:     order.TypedData.Message,
		Signature: order.Signature,
		Extension: order.Extension,
		QuoteID:   order.QuoteID,
		SrcChain:  order.SrcChain,
		DstChain:  order.DstChain,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	if !ValidOrderHash(resp.OrderHash) {
		return nil, fmt.Errorf("%w: relayer returned order hash %q", ErrSubmissionFailed, resp.OrderHash)
	}

	status := types.OrderCreated
	if resp.Status != "" {
		parsed, err := types.ParseOrderStatus(resp.Status)
		if err != nil {
			s.logger.WarnContext(ctx, "ignoring submit status", slog.String("status", resp.Status))
		} else {
			status = parsed
		}
	}

	s.logger.InfoContext(ctx, "order submitted",
		slog.String("order_hash", resp.OrderHash),
		slog.String("quote_id", order.QuoteID),
	)

	return &types.SubmitResult{OrderHash: resp.OrderHash, Status: status}, nil
}
