package swap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"xswap/pkg/types"
	"xswap/pkg/wallet"
)

const orderPrimaryType = "Order"

var orderTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	orderPrimaryType: {
		{Name: "salt", Type: "uint256"},
		{Name: "maker", Type: "address"},
		{Name: "receiver", Type: "address"},
		{Name: "makerAsset", Type: "address"},
		{Name: "takerAsset", Type: "address"},
		{Name: "makingAmount", Type: "uint256"},
		{Name: "takingAmount", Type: "uint256"},
		{Name: "makerTraits", Type: "uint256"},
	},
}

// OrderSigner obtains the maker signature for a built order
type OrderSigner struct {
	wallet wallet.Wallet
}

func NewOrderSigner(w wallet.Wallet) *OrderSigner {
	return &OrderSigner{wallet: w}
}

// TypedData returns the EIP-712 payload for order. The domain keeps the
// builder's name, version and verifying contract; chainId is always the
// order's source chain.
func TypedData(order *types.BuiltOrder) apitypes.TypedData {
	d := order.TypedData.Domain
	m := order.TypedData.Message

	return apitypes.TypedData{
		Types:       orderTypes,
		PrimaryType: orderPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           math.NewHexOrDecimal256(int64(order.SrcChain)),
			VerifyingContract: d.VerifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"salt":         m.Salt,
			"maker":        m.Maker,
			"receiver":     m.Receiver,
			"makerAsset":   m.MakerAsset,
			"takerAsset":   m.TakerAsset,
			"makingAmount": m.MakingAmount,
			"takingAmount": m.TakingAmount,
			"makerTraits":  m.MakerTraits,
		},
	}
}

// SignOrder signs order. A user rejection is reported as ErrSignatureRejected.
func (s *OrderSigner) SignOrder(ctx context.Context, order *types.BuiltOrder) (*types.SignedOrder, error) {
	if order == nil {
		return nil, fmt.Errorf("%w: no order to sign", ErrSigningFailed)
	}

	sig, err := s.wallet.SignTypedData(ctx, TypedData(order))
	if err != nil {
		if errors.Is(err, wallet.ErrUserRejected) || strings.Contains(strings.ToLower(err.Error()), "user rejected") {
			return nil, fmt.Errorf("%w: %w", ErrSignatureRejected, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}

	raw, err := hexutil.Decode(sig)
	if err != nil || len(raw) != 65 {
		return nil, fmt.Errorf("%w: malformed signature %q", ErrSigningFailed, sig)
	}

	return &types.SignedOrder{BuiltOrder: *order, Signature: sig}, nil
}
