package channel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jpleva/channel-client/internal/socket"
	"github.com/jpleva/channel-client/internal/wire"
)

// readPump drains one socket generation, running the control-frame
// interceptor before any user handler, then hands the close reason to the
// lifecycle logic. One pump exists per generation; a pump whose generation
// has been superseded delivers nothing.
func (c *Channel) readPump(sock *socket.Client, gen uint64) {
	for data := range sock.Messages() {
		c.dispatch(sock, gen, data)
	}
	c.handleClose(gen, sock.CloseInfo())
}

// dispatch inspects one inbound text frame. Recognized control events are
// consumed here and never reach user handlers; everything else flows to
// the registry.
func (c *Channel) dispatch(sock *socket.Client, gen uint64, data []byte) {
	c.mu.Lock()
	live := gen == c.gen && !c.closed
	hb := c.hb
	c.mu.Unlock()
	if !live {
		return
	}

	f, err := wire.Parse(data)
	if err != nil {
		// Not a frame; nothing routes on it.
		c.logger.Debug("ignoring non-frame message", "bytes", len(data))
		return
	}

	switch {
	case f.IsControl():
		c.handleControl(sock, hb, f)
	case f.Event == wire.EventError:
		c.handleErrorFrame(f)
	default:
		c.dispatchData(gen, f)
	}
}

// handleControl consumes one control frame. Control frames never reach
// user handlers.
func (c *Channel) handleControl(sock *socket.Client, hb *heartbeat, f wire.Frame) {
	switch f.Event {
	case wire.EventPong:
		if hb != nil {
			hb.pong()
		}
	case wire.EventPing:
		if data, merr := (wire.Frame{Event: wire.EventPong}).Marshal(); merr == nil {
			sock.Send(data)
		}
	case wire.EventConnected, wire.EventResumeAck:
		if f.ConnectionID != "" {
			c.mu.Lock()
			c.connectionID = f.ConnectionID
			c.mu.Unlock()
			c.logger.Debug("resumption token stored", "connection_id", f.ConnectionID)
		}
	case wire.EventResume:
		// Client-to-server only; consume defensively.
	}
}

// handleErrorFrame consumes error frames that reject the resume token and
// routes every other server error to the error-handler set.
func (c *Channel) handleErrorFrame(f wire.Frame) {
	var text string
	if err := json.Unmarshal(f.Payload, &text); err != nil {
		text = string(f.Payload)
	}

	if isInvalidResumeToken(text) {
		c.mu.Lock()
		c.connectionID = ""
		c.mu.Unlock()
		c.logger.Debug("resume token rejected by server, cleared", "text", text)
		return
	}

	c.dispatchError(&ServerError{Text: text})
}

// isInvalidResumeToken matches server error text indicating the stored
// connectionId can no longer be resumed.
func isInvalidResumeToken(text string) bool {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "invalid") && !strings.Contains(lower, "unknown") {
		return false
	}
	return strings.Contains(lower, "connection") || strings.Contains(lower, "resume")
}

// dispatchData decrypts a data-bearing frame and invokes every matching
// subscription. Decryption failures go to error handlers and suppress the
// data handlers entirely.
func (c *Channel) dispatchData(gen uint64, f wire.Frame) {
	plain, err := c.gateway.openFrame(f)
	if err != nil {
		c.dispatchError(err)
		return
	}

	evt, err := eventFromFrame(plain)
	if err != nil {
		c.dispatchError(fmt.Errorf("decode %s payload: %w", f.Event, err))
		return
	}

	// Presence bookkeeping happens before user handlers so Snapshot is
	// current from inside a handler.
	if f.Event == wire.EventPresenceJoin || f.Event == wire.EventPresenceLeave {
		c.presence.observe(plain, evt.Payload)
	}

	for _, h := range c.registry.wired(f.Event, f.Item, gen) {
		h(evt)
	}
}

// eventFromFrame decodes a plaintext frame into the Event a handler sees.
func eventFromFrame(f wire.Frame) (Event, error) {
	evt := Event{
		Name:         f.Event,
		Item:         f.Item,
		ConnectionID: f.ConnectionID,
		JoinedAt:     f.JoinedAt,
	}

	raw := f.Payload
	if f.Event == wire.EventSetItem && len(raw) > 0 {
		var sv wire.SetItemValue
		if err := json.Unmarshal(raw, &sv); err != nil {
			return evt, fmt.Errorf("setItem envelope: %w", err)
		}
		raw = sv.Value
	}

	evt.Raw = raw
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &evt.Payload); err != nil {
			return evt, err
		}
	}
	return evt, nil
}

// handleClose runs once per dead socket generation. It decides between
// permanent shutdown (tier limit, reconnection disabled) and handing off
// to the reconnection loop. The channel never dies silently: a forced
// close either retries or notifies error handlers.
func (c *Channel) handleClose(gen uint64, info socket.CloseInfo) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		// A newer generation owns the channel, or teardown already ran.
		c.mu.Unlock()
		return
	}

	hb := c.hb
	c.hb = nil
	c.sock = nil
	c.state = StateIdle

	tierLimited := strings.Contains(info.Reason, wire.TierLimitReason)
	if tierLimited {
		c.autoReconnect = false
	}
	if info.Code == wire.PolicyViolationCode {
		// A policy-violation close invalidates the session; the next
		// connect starts fresh instead of resuming.
		c.connectionID = ""
	}
	auto := c.autoReconnect
	c.mu.Unlock()

	if hb != nil {
		hb.stop()
	}

	c.logger.Warn("connection closed",
		"gen", gen,
		"code", info.Code,
		"reason", info.Reason,
		"local", info.Local,
	)

	c.dispatchLifecycle(wire.EventDisconnect)

	switch {
	case tierLimited:
		c.dispatchError(fmt.Errorf("%w: %s", ErrTierLimit, info.Reason))
	case auto:
		if info.Err != nil {
			c.dispatchError(fmt.Errorf("transport: %w", info.Err))
		}
		c.maybeReconnect()
	default:
		c.dispatchError(&CloseError{Code: info.Code, Reason: info.Reason})
	}
}
