package swap

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"xswap/pkg/client"
	"xswap/pkg/types"
)

var extensionPattern = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)

// OrderBuilder asks the upstream to turn a quote into a signable order
type OrderBuilder struct {
	api BuildAPI
}

func NewOrderBuilder(api BuildAPI) *OrderBuilder {
	return &OrderBuilder{api: api}
}

// BuildOrder builds an order for quote along p. The result is sealed so a
// later change to its extension is detected before submission.
func (b *OrderBuilder) BuildOrder(ctx context.Context, quote *types.Quote, p Params) (*types.BuiltOrder, error) {
	if err := checkRoute(p); err != nil {
		return nil, err
	}
	if quote == nil || quote.QuoteID == "" {
		return nil, ErrNoQuote
	}
	if !Matches(quote, p) {
		return nil, fmt.Errorf("%w: quote %s was issued for another route", ErrNoQuote, quote.QuoteID)
	}

	raw := quote.Raw
	if len(raw) == 0 {
		encoded, err := json.Marshal(quote)
		if err != nil {
			return nil, fmt.Errorf("failed to encode quote: %w", err)
		}
		raw = encoded
	}

	resp, err := b.api.BuildOrder(ctx, client.BuildRequest{
		Quote:           raw,
		SrcChain:        p.SrcChain,
		DstChain:        p.DstChain,
		SrcTokenAddress: p.SrcToken,
		DstTokenAddress: p.DstToken,
		Amount:          p.AmountRaw,
		WalletAddress:   p.Wallet,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}

	order, err := validateBuild(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBuildResponse, err)
	}

	order.QuoteID = quote.QuoteID
	order.SrcChain = p.SrcChain
	order.DstChain = p.DstChain
	order.Seal()

	return order, nil
}

func validateBuild(resp *client.BuildResponse) (*types.BuiltOrder, error) {
	if resp == nil || resp.TypedData == nil {
		return nil, fmt.Errorf("missing typedData")
	}
	if resp.Extension == "" || !extensionPattern.MatchString(resp.Extension) {
		return nil, fmt.Errorf("missing or malformed extension")
	}

	td := *resp.TypedData
	if td.Domain.Name == "" || td.Domain.Version == "" {
		return nil, fmt.Errorf("domain name and version are required")
	}
	if !common.IsHexAddress(td.Domain.VerifyingContract) {
		return nil, fmt.Errorf("invalid verifyingContract %q", td.Domain.VerifyingContract)
	}
	td.Domain.VerifyingContract = strings.ToLower(td.Domain.VerifyingContract)
	if td.PrimaryType == "" {
		td.PrimaryType = orderPrimaryType
	}

	msg := &td.Message
	for name, field := range map[string]*string{
		"maker":      &msg.Maker,
		"receiver":   &msg.Receiver,
		"makerAsset": &msg.MakerAsset,
		"takerAsset": &msg.TakerAsset,
	} {
		if !common.IsHexAddress(*field) {
			return nil, fmt.Errorf("invalid %s address %q", name, *field)
		}
		*field = strings.ToLower(common.HexToAddress(*field).Hex())
	}
	for name, value := range map[string]string{
		"salt":         msg.Salt,
		"makingAmount": msg.MakingAmount,
		"takingAmount": msg.TakingAmount,
		"makerTraits":  msg.MakerTraits,
	} {
		if _, err := uint256.FromDecimal(value); err != nil {
			return nil, fmt.Errorf("invalid %s %q", name, value)
		}
	}

	return &types.BuiltOrder{
		TypedData: td,
		Extension: resp.Extension,
		OrderHash: resp.OrderHash,
	}, nil
}
