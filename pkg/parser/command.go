package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"xswap/pkg/types"
)

// Pattern: <amount> <source_token> TO <dest_token>
var swapPattern = regexp.MustCompile(`(?i)^(\d+\.?\d*)\s+(\S+)\s+to\s+(\S+)$`)

// ParseSwapCommand parses a swap command of token addresses
// Examples:
//   - "swap 1 0xA0b8...eB48 to 0x2791...4174"
//   - "0.5 0xC02a...6Cc2 TO 0x7ceB...f619"
func ParseSwapCommand(command string) (*types.SwapRequest, error) {
	command = strings.TrimSpace(command)

	// Remove the word "swap" if present at the beginning
	if len(command) > 5 && strings.EqualFold(command[:5], "swap ") {
		command = strings.TrimSpace(command[5:])
	}

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: '<amount> <token-address> to <token-address>' (e.g., '1.5 0xA0b8... to 0x2791...')")
	}

	src, err := NormalizeAddress(matches[2])
	if err != nil {
		return nil, fmt.Errorf("source token: %w", err)
	}
	dst, err := NormalizeAddress(matches[3])
	if err != nil {
		return nil, fmt.Errorf("destination token: %w", err)
	}

	return &types.SwapRequest{
		Amount:      matches[1],
		SourceToken: src,
		DestToken:   dst,
	}, nil
}

// ValidateSwapRequest validates that a swap request has all required fields
func ValidateSwapRequest(req *types.SwapRequest) error {
	if req.Amount == "" && req.AmountRaw == "" {
		return fmt.Errorf("amount is required")
	}
	if req.SourceToken == "" {
		return fmt.Errorf("source token is required")
	}
	if req.DestToken == "" {
		return fmt.Errorf("destination token is required")
	}
	if req.SourceChain <= 0 || req.DestChain <= 0 {
		return fmt.Errorf("source and destination chain ids are required")
	}
	if req.SourceChain == req.DestChain {
		return fmt.Errorf("select different chains for a cross-chain swap")
	}
	return nil
}

// NormalizeAddress validates a hex address and returns it lowercased
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// ToBaseUnits converts a human amount ("1.5") into integer token units
// without going through floating point
func ToBaseUnits(amount string, decimals int32) (string, error) {
	if decimals < 0 {
		return "", fmt.Errorf("decimals must not be negative")
	}

	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return "", fmt.Errorf("invalid amount format: %w", err)
	}
	if !d.IsPositive() {
		return "", fmt.Errorf("amount must be greater than 0")
	}

	units := d.Shift(decimals)
	if !units.Equal(units.Truncate(0)) {
		return "", fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}

	return units.BigInt().String(), nil
}

// FromBaseUnits renders integer token units as a human amount
func FromBaseUnits(raw string, decimals int32) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid raw amount %q: %w", raw, err)
	}
	return d.Shift(-decimals).String(), nil
}
