package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrResponseTooLarge is returned for a successful answer whose body
// exceeds the read limit
var ErrResponseTooLarge = errors.New("response too large")

// APIError is a non-2xx answer from the upstream API
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// IsClientError reports a 4xx answer
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// AsAPIError unwraps err into an *APIError
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Details:    strings.TrimSpace(string(body)),
	}

	// Try to extract the actual error message from the response
	var errorResp map[string]interface{}
	if err := json.Unmarshal(body, &errorResp); err == nil {
		for _, key := range []string{"error", "message", "description"} {
			if message, ok := errorResp[key].(string); ok && message != "" {
				apiErr.Message = message
				return apiErr
			}
		}
		if errs, ok := errorResp["errors"]; ok {
			apiErr.Message = fmt.Sprintf("%v", errs)
			return apiErr
		}
	}

	apiErr.Message = defaultMessage(status)
	if apiErr.Message == "" && apiErr.Details != "" {
		apiErr.Message = apiErr.Details
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func defaultMessage(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "Invalid API key"
	case http.StatusForbidden:
		return "Order rejected by relayer"
	case http.StatusNotFound:
		return "Quote not found or expired"
	case http.StatusTooManyRequests:
		return "Rate limit exceeded"
	default:
		return ""
	}
}
