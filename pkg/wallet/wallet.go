// Package wallet provides the signing and transaction capability used by the
// swap flow.
package wallet

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"xswap/pkg/types"
)

// ErrUserRejected is returned when the account holder declines a request
var ErrUserRejected = errors.New("user rejected the request")

// Wallet is an account able to sign typed data and send transactions
type Wallet interface {
	Address() string
	SignTypedData(ctx context.Context, data apitypes.TypedData) (string, error)
	SendTransaction(ctx context.Context, tx types.TxPayload) (string, error)
	WaitForReceipt(ctx context.Context, txHash string) (*types.Receipt, error)
}
