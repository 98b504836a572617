package exchange

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// APIError is a permanent rejection from the venue: bad request, insufficient
// margin, unknown order. Retrying it verbatim will not help.
type APIError struct {
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitget API error %s: %s", e.Code, e.Msg)
}

// TransientError wraps a network-level failure whose outcome is unknown: the
// request may or may not have reached the venue. Callers must not blindly
// retry order submissions on it without re-checking exchange state.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient exchange error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Bitget codes that mean the referenced order no longer exists.
var orderNotFoundCodes = map[string]bool{
	"40109": true, // order not found
	"43001": true, // order does not exist
	"43025": true, // order not found (plan/tpsl variant)
}

// IsTransient reports whether err is a network-level failure with an
// ambiguous outcome.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// IsOrderNotFound reports whether err means the order already filled, was
// cancelled, or never existed. During cancellation this is a success, not a
// failure.
func IsOrderNotFound(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		if orderNotFoundCodes[ae.Code] {
			return true
		}
		msg := strings.ToLower(ae.Msg)
		return strings.Contains(msg, "not exist") || strings.Contains(msg, "not found")
	}
	return false
}

// isRetryableStatus covers rate limits and server-side errors.
func isRetryableStatus(status int) bool {
	return status == 429 || status >= 500
}
