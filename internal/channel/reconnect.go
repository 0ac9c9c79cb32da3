package channel

import (
	"context"
	"time"
)

// maybeReconnect starts the backoff retry loop unless one is already
// running, reconnection is disabled, or the channel is closed.
func (c *Channel) maybeReconnect() {
	c.mu.Lock()
	if c.closed || !c.autoReconnect || c.reconnecting || c.state == StateOpen {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.state = StateConnecting
	c.mu.Unlock()

	go c.reconnectLoop()
}

// reconnectLoop retries with capped exponential backoff until a dial
// succeeds or the channel is torn down. Retries are unbounded; the delay
// caps at the configured maximum. Unbounded retry favors eventual
// connectivity over fast failure.
func (c *Channel) reconnectLoop() {
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		if c.closed || !c.autoReconnect || c.state == StateOpen {
			c.mu.Unlock()
			return
		}
		attempts := c.attempts
		c.mu.Unlock()

		delay := backoffDelay(c.cfg.Reconnect.BaseDelay, c.cfg.Reconnect.MaxDelay, attempts)
		c.logger.Info("scheduling reconnect", "attempt", attempts+1, "delay", delay)

		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		c.mu.Lock()
		if c.closed || !c.autoReconnect || c.state == StateOpen {
			c.mu.Unlock()
			return
		}
		c.attempts++
		c.state = StateConnecting
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Project.Timeout)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			return
		}

		c.logger.Warn("reconnect attempt failed", "error", err)
	}
}

// backoffDelay computes min(base * 2^attempts, max).
func backoffDelay(base, max time.Duration, attempts int) time.Duration {
	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
