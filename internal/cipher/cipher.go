// Package cipher defines the encryption capability consumed by the channel
// layer and provides a versioned key-ring implementation of it.
//
// Payloads are sealed under a specific key version. Rotation bumps the
// current version without invalidating ciphertext written under earlier
// versions: a Provider can resolve a Handler for any historical version.
package cipher

import "context"

// Handler seals and opens a single payload under one fixed key version.
type Handler interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Provider resolves handlers per key version and tracks the version new
// payloads should be sealed under.
type Provider interface {
	// ForVersion returns the handler for a specific key version, including
	// rotated-out historical versions.
	ForVersion(version int) (Handler, error)

	// CurrentVersion is the version attached to outbound payloads.
	CurrentVersion() int

	// Refresh re-fetches encryption settings. Called once after the server
	// reports the caller's key version as stale.
	Refresh(ctx context.Context) error
}
