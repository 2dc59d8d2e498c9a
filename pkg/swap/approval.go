package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"xswap/pkg/types"
	"xswap/pkg/wallet"
)

// ApprovalFlow obtains an approval transaction and drives it through the
// wallet. It never continues into order placement.
type ApprovalFlow struct {
	api    ApprovalAPI
	wallet wallet.Wallet
	logger *slog.Logger
}

func NewApprovalFlow(api ApprovalAPI, w wallet.Wallet, logger *slog.Logger) *ApprovalFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalFlow{api: api, wallet: w, logger: logger.With(slog.String("component", "approval"))}
}

// RequestApprovalTransaction returns the unsigned approval for token on chain
func (f *ApprovalFlow) RequestApprovalTransaction(ctx context.Context, token string, chain int) (types.TxPayload, error) {
	tx, err := f.api.GetApproveTransaction(ctx, token, chain)
	if err != nil {
		return types.TxPayload{}, fmt.Errorf("%w: %w", ErrApprovalRequestFailed, err)
	}
	if !common.IsHexAddress(tx.To) || tx.Data == "" {
		return types.TxPayload{}, fmt.Errorf("%w: malformed transaction payload", ErrApprovalRequestFailed)
	}

	value := string(tx.Value)
	if value == "" {
		value = "0"
	}

	return types.TxPayload{To: tx.To, Data: tx.Data, Value: value}, nil
}

// Send hands tx to the wallet
func (f *ApprovalFlow) Send(ctx context.Context, tx types.TxPayload) (string, error) {
	hash, err := f.wallet.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrApprovalTxFailed, err)
	}
	f.logger.InfoContext(ctx, "approval sent", slog.String("tx", hash))
	return hash, nil
}

// Confirm waits for the approval receipt. A reverted transaction is an error.
func (f *ApprovalFlow) Confirm(ctx context.Context, txHash string) (*types.Receipt, error) {
	receipt, err := f.wallet.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrApprovalTxFailed, err)
	}
	if !receipt.Success {
		return receipt, fmt.Errorf("%w: transaction %s reverted", ErrApprovalTxFailed, txHash)
	}
	return receipt, nil
}

// Rejected reports whether err came from the user declining in the wallet
func Rejected(err error) bool {
	return errors.Is(err, wallet.ErrUserRejected) || errors.Is(err, ErrSignatureRejected)
}
