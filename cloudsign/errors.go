package cloudsign

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured signals that CloudSign credentials are absent. Operations
	// against the remote API cannot proceed until the configuration is saved.
	ErrNotConfigured = errors.New("cloudsign: credentials not configured")
	// ErrNotDraft signals an attempt to send a document that has already left the
	// draft state. Re-sending is refused because reminders are not supported for
	// embedded and SMS-authenticated flows.
	ErrNotDraft = errors.New("cloudsign: document is not a draft")
)

// AuthError reports a rejection by the token endpoint, or a request that stayed
// unauthorized after the one forced token refresh.
type AuthError struct {
	Msg string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cloudsign: auth: %s: %v", e.Msg, e.Err)
	}
	return "cloudsign: auth: " + e.Msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// NetworkError wraps a connection-level failure (dial, TLS, timeout). It is not
// retried automatically beyond the single 401-triggered retry.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("cloudsign: network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError reports a non-2xx response from the CloudSign API. Status and the raw
// body are preserved so callers can render an actionable message.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloudsign: api: status %d: %s", e.Status, e.Body)
}

// ProtocolError signals a response whose shape violates the expected CloudSign
// contract, e.g. a participant id missing after a successful add. It usually
// indicates a remote API change and is treated as fatal.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	return "cloudsign: protocol: " + e.Msg
}
