package channel

import (
	"errors"
	"fmt"
)

// Errors
var (
	// ErrClosed is returned by every operation after Disconnect.
	ErrClosed = errors.New("channel closed")

	// ErrNoCipher is raised when an encrypted frame arrives but no
	// encryption provider was configured.
	ErrNoCipher = errors.New("encrypted data received but no encryption handler configured")

	// ErrNoRequester is returned by HTTP-path operations when no fallback
	// request client was configured.
	ErrNoRequester = errors.New("no fallback request client configured")

	// ErrTierLimit marks the fatal server signal that permanently disables
	// reconnection.
	ErrTierLimit = errors.New("tier limit exceeded, reconnection disabled")

	// ErrItemFilter is returned when an item filter is used with an event
	// that is not item-scoped.
	ErrItemFilter = errors.New("item filters apply only to setItem and removeItem events")
)

// CloseError reports an abnormal connection close that will not be retried.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed: %s (code %d)", e.Reason, e.Code)
}

// ServerError carries the text of an error frame the server pushed over the
// wire. Routed to error handlers, never returned to a caller.
type ServerError struct {
	Text string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Text
}

// DecryptError wraps a payload decryption failure with the key version it
// was attempted under.
type DecryptError struct {
	KeyVersion int
	Err        error
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("decrypt payload under key v%d: %v", e.KeyVersion, e.Err)
}

func (e *DecryptError) Unwrap() error { return e.Err }
