package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"xswap/pkg/types"
)

// ConfirmingWallet asks the user before every signature or transaction
type ConfirmingWallet struct {
	Wallet

	mu     sync.Mutex
	reader *bufio.Reader
	out    io.Writer
}

// NewConfirmingWallet wraps w with a y/N prompt read from in
func NewConfirmingWallet(w Wallet, in io.Reader, out io.Writer) *ConfirmingWallet {
	return &ConfirmingWallet{
		Wallet: w,
		reader: bufio.NewReader(in),
		out:    out,
	}
}

func (c *ConfirmingWallet) SignTypedData(ctx context.Context, data apitypes.TypedData) (string, error) {
	prompt := fmt.Sprintf("\nSign %s order for %v → %v? (y/N): ",
		data.Domain.Name, data.Message["makingAmount"], data.Message["takingAmount"])
	if !c.confirm(prompt) {
		return "", ErrUserRejected
	}
	return c.Wallet.SignTypedData(ctx, data)
}

func (c *ConfirmingWallet) SendTransaction(ctx context.Context, tx types.TxPayload) (string, error) {
	if !c.confirm(fmt.Sprintf("\nSend transaction to %s? (y/N): ", tx.To)) {
		return "", ErrUserRejected
	}
	return c.Wallet.SendTransaction(ctx, tx)
}

func (c *ConfirmingWallet) confirm(prompt string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprint(c.out, prompt)

	response, err := c.reader.ReadString('\n')
	if err != nil && response == "" {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
