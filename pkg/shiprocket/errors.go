package shiprocket

import (
	"errors"
	"fmt"
)

// AuthError indicates the credential fetch against the provider failed.
// Any provider call is fatal until the next login attempt succeeds.
// RawBody carries the provider's raw error payload for operator diagnosis.
type AuthError struct {
	StatusCode int
	Message    string
	RawBody    string
	Cause      error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("shiprocket auth failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("shiprocket auth failed: %s", e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// APIError is a remote failure: the provider answered the HTTP exchange
// but rejected the operation. It is distinct from transport failures
// (DNS, timeout, connection reset), which surface as plain wrapped
// errors. RawBody preserves the response body even when it did not parse
// as structured data, so no response is ever silently dropped.
type APIError struct {
	StatusCode int
	Message    string
	RawBody    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("shiprocket api error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("shiprocket api error (HTTP %d)", e.StatusCode)
}

// IsRemote reports whether err is a provider-side rejection rather than
// a transport or local failure.
func IsRemote(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// IsAuth reports whether err is a credential failure.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
