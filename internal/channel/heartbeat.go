package channel

import (
	"sync"
	"time"

	"log/slog"
)

// heartbeat probes one connection generation for liveness. It sends a ping
// immediately on start and then every interval; each ping arms a pong
// deadline. A pong clears the deadline only, it never sends the next ping.
// A missed deadline force-closes the socket, and the resulting close event
// drives reconnection exactly like any other disconnect.
type heartbeat struct {
	interval time.Duration
	timeout  time.Duration

	ping       func() error // send a ping frame; fails when socket is down
	forceClose func()       // close the socket with the heartbeat close code
	logger     *slog.Logger

	mu        sync.Mutex
	running   bool
	pingTimer *time.Timer
	pongTimer *time.Timer
}

func newHeartbeat(interval, timeout time.Duration, ping func() error, forceClose func(), logger *slog.Logger) *heartbeat {
	return &heartbeat{
		interval:   interval,
		timeout:    timeout,
		ping:       ping,
		forceClose: forceClose,
		logger:     logger,
	}
}

// start begins probing. The first ping goes out immediately.
func (h *heartbeat) start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	h.beat()
}

// beat sends one ping, arms the pong deadline, and schedules the next beat.
func (h *heartbeat) beat() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	if err := h.ping(); err != nil {
		// Connection not open; skip this tick silently.
		h.logger.Debug("heartbeat ping skipped", "error", err)
	} else {
		h.armPongDeadline()
	}

	h.mu.Lock()
	if h.running {
		h.pingTimer = time.AfterFunc(h.interval, h.beat)
	}
	h.mu.Unlock()
}

// armPongDeadline starts (or restarts) the pong timeout.
func (h *heartbeat) armPongDeadline() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	if h.pongTimer != nil {
		h.pongTimer.Stop()
	}
	h.pongTimer = time.AfterFunc(h.timeout, func() {
		h.logger.Warn("pong timeout, force-closing connection", "timeout", h.timeout)
		h.forceClose()
	})
}

// pong records a liveness confirmation by clearing the pong deadline.
func (h *heartbeat) pong() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pongTimer != nil {
		h.pongTimer.Stop()
		h.pongTimer = nil
	}
}

// stop clears both timers unconditionally.
func (h *heartbeat) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.running = false
	if h.pingTimer != nil {
		h.pingTimer.Stop()
		h.pingTimer = nil
	}
	if h.pongTimer != nil {
		h.pongTimer.Stop()
		h.pongTimer = nil
	}
}
