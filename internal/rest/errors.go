package rest

import "fmt"

// APIError represents a non-conflict HTTP error from the fallback path.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fallback api error %d: %s", e.StatusCode, e.Message)
}

// ConflictError signals the server rejected the request because the
// caller's key version is stale. The caller refreshes its encryption
// settings once and retries exactly once.
type ConflictError struct {
	Body []byte
}

func (e *ConflictError) Error() string {
	return "key version conflict"
}
