package swap

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
)

// AllowanceGate decides whether an approval is needed before building
type AllowanceGate struct {
	api AllowanceAPI
}

func NewAllowanceGate(api AllowanceAPI) *AllowanceGate {
	return &AllowanceGate{api: api}
}

// HasSufficientAllowance reports whether owner already allows the settlement
// contract on chain to move amountRaw of token. An insufficient allowance is
// false, not an error.
func (g *AllowanceGate) HasSufficientAllowance(ctx context.Context, token, owner string, chain int, amountRaw string) (bool, error) {
	if _, err := parseAmount(amountRaw); err != nil {
		return false, err
	}

	allowance, err := g.api.GetAllowance(ctx, token, owner, chain)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrAllowanceCheckFailed, err)
	}

	ok, err := SufficientAllowance(allowance, amountRaw)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrAllowanceCheckFailed, err)
	}
	return ok, nil
}

// SufficientAllowance compares two base-10 integers exactly: allowance >= amount
func SufficientAllowance(allowance, amount string) (bool, error) {
	a, err := uint256.FromDecimal(allowance)
	if err != nil {
		return false, fmt.Errorf("invalid allowance %q: %w", allowance, err)
	}
	n, err := uint256.FromDecimal(amount)
	if err != nil {
		return false, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return !a.Lt(n), nil
}
