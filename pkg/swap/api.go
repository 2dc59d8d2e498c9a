// Package swap drives a cross-chain order from quote to settlement.
package swap

import (
	"context"
	"regexp"

	"xswap/pkg/client"
)

// QuoteAPI prices a swap
type QuoteAPI interface {
	GetQuote(ctx context.Context, req client.QuoteRequest) (*client.QuoteResponse, error)
}

// AllowanceAPI reads token allowances
type AllowanceAPI interface {
	GetAllowance(ctx context.Context, tokenAddress, walletAddress string, chainID int) (string, error)
}

// ApprovalAPI returns approval transactions
type ApprovalAPI interface {
	GetApproveTransaction(ctx context.Context, tokenAddress string, chainID int) (*client.ApproveTransaction, error)
}

// BuildAPI turns quotes into signable orders
type BuildAPI interface {
	BuildOrder(ctx context.Context, req client.BuildRequest) (*client.BuildResponse, error)
}

// SubmitAPI hands signed orders to the relayer
type SubmitAPI interface {
	SubmitOrder(ctx context.Context, req client.SubmitRequest) (*client.SubmitResponse, error)
}

// StatusAPI reports order progress
type StatusAPI interface {
	GetOrderStatus(ctx context.Context, orderHash string, srcChain, dstChain int) (*client.StatusResponse, error)
}

// SecretAPI reveals hashlock secrets
type SecretAPI interface {
	SubmitSecret(ctx context.Context, orderHash, secret string) error
}

// API is the upstream surface the orchestrator needs
type API interface {
	QuoteAPI
	AllowanceAPI
	ApprovalAPI
	BuildAPI
	SubmitAPI
	StatusAPI
}

var _ API = (*client.FusionPlusClient)(nil)

// Params identifies one swap: route, raw amount and maker
type Params struct {
	SrcChain  int
	DstChain  int
	SrcToken  string
	DstToken  string
	AmountRaw string
	Wallet    string
}

var hash32Pattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidOrderHash reports whether h looks like an order hash
func ValidOrderHash(h string) bool {
	return hash32Pattern.MatchString(h)
}
