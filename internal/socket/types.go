package socket

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// Config holds the per-connection settings.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	BufferSize       int
}

// CloseInfo describes how a connection ended.
type CloseInfo struct {
	Code   int
	Reason string
	Local  bool  // closed by this side
	Err    error // underlying read error, if not a clean close
}
