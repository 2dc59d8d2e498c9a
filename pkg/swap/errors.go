package swap

import (
	"errors"
	"strings"
)

// Failures of the swap steps. Components wrap the underlying cause as
// fmt.Errorf("%w: %w", ErrX, cause).
var (
	ErrRouteUnavailable      = errors.New("route unavailable")
	ErrAmountTooSmall        = errors.New("amount too small")
	ErrQuoteFailed           = errors.New("quote failed")
	ErrAllowanceCheckFailed  = errors.New("allowance check failed")
	ErrApprovalRequestFailed = errors.New("approval request failed")
	ErrApprovalTxFailed      = errors.New("approval transaction failed")
	ErrBuildFailed           = errors.New("order build failed")
	ErrInvalidBuildResponse  = errors.New("invalid build response")
	ErrSignatureRejected     = errors.New("signature rejected")
	ErrSigningFailed         = errors.New("signing failed")
	ErrSubmissionFailed      = errors.New("order submission failed")
	ErrStatusPollTransient   = errors.New("status poll failed")
	ErrSecretFailed          = errors.New("secret submission failed")
)

// Guard errors raised before any network call
var (
	ErrSameChain         = errors.New("select different chains")
	ErrInvalidAmount     = errors.New("amount must be a positive integer")
	ErrInvalidOrderHash  = errors.New("order hash must be 0x followed by 64 hex characters")
	ErrInvalidSecret     = errors.New("secret must be 0x followed by 64 hex characters")
	ErrNoQuote           = errors.New("no quote for the current route")
	ErrBusy              = errors.New("a swap is already in progress")
	ErrStaleRequest      = errors.New("inputs changed while the request was in flight")
	ErrExtensionTampered = errors.New("order extension changed after build")
	ErrClosed            = errors.New("orchestrator closed")
)

var fatal = []error{ErrInvalidBuildResponse, ErrExtensionTampered, ErrClosed}

// Recoverable reports whether the user can retry after err without
// starting over. Unknown errors are not recoverable.
func Recoverable(err error) bool {
	if err == nil {
		return true
	}
	for _, f := range fatal {
		if errors.Is(err, f) {
			return false
		}
	}
	for _, r := range []error{
		ErrRouteUnavailable, ErrAmountTooSmall, ErrQuoteFailed,
		ErrAllowanceCheckFailed, ErrApprovalRequestFailed, ErrApprovalTxFailed,
		ErrBuildFailed, ErrSignatureRejected, ErrSigningFailed, ErrSubmissionFailed,
		ErrStatusPollTransient, ErrSecretFailed, ErrSameChain, ErrInvalidAmount,
		ErrInvalidOrderHash, ErrInvalidSecret, ErrNoQuote, ErrBusy, ErrStaleRequest,
	} {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

// UserMessage renders err for a notification
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrRouteUnavailable):
		return "This route is not available. Try another token pair or chain."
	case errors.Is(err, ErrAmountTooSmall):
		return "Amount is below the minimum for this route."
	case errors.Is(err, ErrSameChain):
		return "Select different source and destination chains."
	case errors.Is(err, ErrSignatureRejected):
		return "Signature request was rejected."
	case errors.Is(err, ErrStaleRequest):
		return "Inputs changed before the order was placed. Review the new quote and submit again."
	case errors.Is(err, ErrInvalidBuildResponse):
		return "The order could not be built safely. Please start over."
	case errors.Is(err, ErrSubmissionFailed):
		return "Order was rejected: " + cause(err) + ". Please request a new quote."
	}
	return capitalize(err.Error())
}

// cause strips the taxonomy prefix from a wrapped error message
func cause(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
