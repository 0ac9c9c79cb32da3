package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/jpleva/channel-client/internal/auth"
	"github.com/jpleva/channel-client/internal/cipher"
	"github.com/jpleva/channel-client/internal/config"
	"github.com/jpleva/channel-client/internal/rest"
	"github.com/jpleva/channel-client/internal/socket"
	"github.com/jpleva/channel-client/internal/wire"
)

// State is the connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Channel is one logical realtime connection. It owns the physical socket,
// the heartbeat, the reconnection loop and the subscription registry; at
// most one live socket exists per Channel at any time, and all mutation of
// that shared state goes through Channel methods.
type Channel struct {
	cfg    *config.ClientConfig
	logger *slog.Logger

	requester rest.Requester  // HTTP fallback path, optional
	provider  cipher.Provider // encryption capability, optional

	registry *registry
	gateway  *gateway
	presence *Presence
	sem      *semaphore.Weighted

	// done aborts in-flight reconnect backoff timers on Disconnect, so a
	// late-firing timer cannot resurrect a torn-down channel.
	done chan struct{}

	mu            sync.Mutex
	state         State
	sock          *socket.Client
	hb            *heartbeat
	gen           uint64 // connection generation, bumped per successful dial
	connectionID  string // resumption token assigned by the far end
	attempts      int    // reconnect attempts since last successful rewire
	autoReconnect bool
	closed        bool
	reconnecting  bool
	waiters       []chan error
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithRequester installs the HTTP fallback request client. Without it,
// SendHTTP and Presence.Members return ErrNoRequester.
func WithRequester(r rest.Requester) Option {
	return func(c *Channel) {
		c.requester = r
	}
}

// WithCipherProvider installs the encryption capability. Without it the
// channel runs in plaintext mode and inbound encrypted frames are routed
// to error handlers.
func WithCipherProvider(p cipher.Provider) Option {
	return func(c *Channel) {
		c.provider = p
	}
}

// New creates a Channel. The connection is established lazily: on the
// first Connect, Send, Join or subscription.
func New(cfg *config.ClientConfig, opts ...Option) *Channel {
	cfg.ApplyDefaults()

	c := &Channel{
		cfg:           cfg,
		logger:        slog.Default(),
		registry:      newRegistry(),
		done:          make(chan struct{}),
		autoReconnect: !cfg.Reconnect.Disabled,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("client_id", uuid.NewString()[:8], "channel", cfg.Channel.Class+"/"+cfg.Channel.ID)
	c.gateway = &gateway{provider: c.provider}
	c.presence = newPresence(c)
	c.sem = semaphore.NewWeighted(int64(cfg.Outbound.MaxInflight))

	return c
}

// Connect establishes the connection and waits for it to open. Returns
// immediately when a live connection already exists.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.state == StateOpen:
		c.mu.Unlock()
		return nil
	case c.state == StateConnecting:
		// Another caller is already dialing; wait for its outcome.
		ch := make(chan error, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()
		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.state = StateConnecting
	c.mu.Unlock()

	err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateIdle
		}
		c.mu.Unlock()
		c.notifyWaiters(err)
	}
	return err
}

// ensureConnected starts a connection attempt without waiting for it.
// Callers that only need to enqueue work (subscriptions) use this path.
func (c *Channel) ensureConnected() {
	c.mu.Lock()
	if c.closed || c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	go func() {
		if err := c.dial(context.Background()); err != nil {
			c.mu.Lock()
			if c.state == StateConnecting {
				c.state = StateIdle
			}
			c.mu.Unlock()
			c.notifyWaiters(err)
			c.dispatchError(fmt.Errorf("connect: %w", err))
			c.maybeReconnect()
		}
	}()
}

// dial performs one connection attempt and, on success, the full rewiring
// sequence: resume handshake, heartbeat start, subscription re-attachment,
// connect handlers, presence join replay. The attempt counter resets only
// after rewiring completes.
func (c *Channel) dial(ctx context.Context) error {
	creds := auth.Credentials{
		Username: c.cfg.Auth.Username,
		Password: c.cfg.Auth.Password,
		Token:    c.cfg.Auth.Token,
	}
	var sig *auth.IdentitySignature
	if c.cfg.Auth.IDSignature != "" {
		sig = &auth.IdentitySignature{
			Signature:  c.cfg.Auth.IDSignature,
			KeyVersion: c.cfg.Auth.IDSignatureKeyVersion,
		}
	}

	url, err := auth.ConnectURL(c.cfg.Project.RealtimeURL, c.cfg.Project.ID,
		c.cfg.Channel.Class, c.cfg.Channel.ID, creds, sig)
	if err != nil {
		return err
	}

	sock := socket.New(socket.Config{
		URL:          url,
		WriteTimeout: c.cfg.Outbound.WriteTimeout,
		BufferSize:   c.cfg.Outbound.BufferSize,
	}, c.logger)

	if err := sock.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sock.Close()
		return ErrClosed
	}
	c.gen++
	gen := c.gen
	oldSock := c.sock
	c.sock = sock
	c.state = StateOpen
	resumeID := c.connectionID
	oldHB := c.hb
	c.mu.Unlock()

	if oldHB != nil {
		oldHB.stop()
	}
	if oldSock != nil {
		// A superseded socket that somehow survived loses its generation
		// and gets discarded.
		oldSock.Close()
	}

	// Resume handshake goes out before any other frame.
	if resumeID != "" {
		f := wire.Frame{Event: wire.EventResume, ConnectionID: resumeID}
		if data, merr := f.Marshal(); merr == nil {
			if serr := sock.Send(data); serr != nil {
				c.logger.Warn("resume frame send failed", "error", serr)
			}
		}
	}

	hb := newHeartbeat(c.cfg.Heartbeat.PingInterval, c.cfg.Heartbeat.PongTimeout,
		func() error {
			data, merr := wire.Frame{Event: wire.EventPing}.Marshal()
			if merr != nil {
				return merr
			}
			return sock.Send(data)
		},
		func() {
			sock.CloseWithStatus(wire.HeartbeatTimeoutCode, "pong timeout")
		},
		c.logger,
	)
	c.mu.Lock()
	c.hb = hb
	c.mu.Unlock()
	hb.start()

	// Rewiring: every retained subscription binds to the new generation,
	// connect handlers fire, and an outstanding presence join is replayed.
	// The pump starts only after rewiring so frames the server pushes
	// immediately after open cannot arrive ahead of the rebind; the socket
	// buffers them meanwhile.
	c.registry.rewire(gen)
	go c.readPump(sock, gen)
	c.dispatchLifecycle(wire.EventConnect)
	c.presence.replay(ctx)

	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()
	c.notifyWaiters(nil)

	c.logger.Info("channel open", "gen", gen, "resumed", resumeID != "")
	return nil
}

// Disconnect tears the channel down: reconnection is disabled permanently,
// the socket closes, timers and subscriptions are cleared. Idempotent.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.autoReconnect = false
	c.state = StateClosing
	sock := c.sock
	hb := c.hb
	c.sock = nil
	c.hb = nil
	c.mu.Unlock()

	close(c.done)

	if hb != nil {
		hb.stop()
	}
	c.registry.clear()
	if sock != nil {
		sock.Close()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	c.notifyWaiters(ErrClosed)

	c.logger.Info("channel closed")
	return nil
}

// On subscribes a handler to a logical event. Wire events ("message",
// "setItem", ...) receive matching frames; the pseudo events "connect",
// "disconnect" and "error" map to lifecycle transitions. Subscribing
// lazily opens the connection.
func (c *Channel) On(event string, h Handler) *Subscription {
	sub := c.registry.add(event, "", false, c.liveGen(), h)
	c.ensureConnected()
	return sub
}

// OnItem subscribes to setItem/removeItem events for a single item name.
func (c *Channel) OnItem(event, item string, h Handler) (*Subscription, error) {
	if event != wire.EventSetItem && event != wire.EventRemoveItem {
		return nil, ErrItemFilter
	}
	sub := c.registry.add(event, item, true, c.liveGen(), h)
	c.ensureConnected()
	return sub, nil
}

// OnError subscribes to the error-handler set. Transport, protocol and
// fatal errors are delivered here; configuration errors are returned to
// callers directly.
func (c *Channel) OnError(h func(error)) *Subscription {
	return c.registry.add(wire.EventError, "", false, 0, func(evt Event) {
		h(evt.Err)
	})
}

// Off removes a subscription by identity. A no-op for subscriptions
// already removed.
func (c *Channel) Off(sub *Subscription) {
	c.registry.remove(sub)
}

// Presence returns the presence sub-protocol handle.
func (c *Channel) Presence() *Presence {
	return c.presence
}

// State returns the lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionID returns the current resumption token, empty when none has
// been assigned.
func (c *Channel) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionID
}

// Send publishes a message over the realtime transport. The payload is
// encrypted when an encryption provider is configured. The sender's own
// message handlers are not invoked; the server does not echo realtime
// publishes back to their origin.
func (c *Channel) Send(ctx context.Context, v any) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	payload, kv, err := c.gateway.seal(plain)
	if err != nil {
		return err
	}

	return c.sendFrame(ctx, wire.Frame{
		Event:      wire.EventMessage,
		Payload:    payload,
		KeyVersion: kv,
	})
}

// SendHTTP publishes a message over the HTTP fallback path. The server
// broadcasts fallback publishes to every member, the sender included. A
// stale key version triggers one settings refresh and one retry.
func (c *Channel) SendHTTP(ctx context.Context, v any) error {
	if c.requester == nil {
		return ErrNoRequester
	}

	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	path := fmt.Sprintf("/message/%s/%s", c.cfg.Channel.Class, c.cfg.Channel.ID)
	_, err = c.withConflictRetry(ctx, func() ([]byte, error) {
		// Re-seal inside the closure so a retry after refresh uses the new
		// current key version.
		payload, kv, serr := c.gateway.seal(plain)
		if serr != nil {
			return nil, serr
		}
		body, merr := wire.Frame{
			Event:      wire.EventMessage,
			Payload:    payload,
			KeyVersion: kv,
		}.Marshal()
		if merr != nil {
			return nil, merr
		}
		return c.requester.Request(ctx, http.MethodPost, path, body)
	})
	return err
}

// sendFrame waits for an outbound throttle slot and a live connection,
// then writes one frame. Throttle rejection surfaces to the caller, never
// to the error-handler set.
func (c *Channel) sendFrame(ctx context.Context, f wire.Frame) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("outbound throttle: %w", err)
	}
	defer c.sem.Release(1)

	if err := c.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return socket.ErrNotConnected
	}

	data, err := f.Marshal()
	if err != nil {
		return err
	}
	return sock.Send(data)
}

// withConflictRetry runs an HTTP-path operation, refreshing encryption
// settings and retrying exactly once on a key-version conflict.
func (c *Channel) withConflictRetry(ctx context.Context, do func() ([]byte, error)) ([]byte, error) {
	body, err := do()
	var conflict *rest.ConflictError
	if !errors.As(err, &conflict) {
		return body, err
	}

	if c.provider == nil {
		return nil, err
	}
	c.logger.Debug("key version conflict, refreshing encryption settings")
	if rerr := c.provider.Refresh(ctx); rerr != nil {
		return nil, fmt.Errorf("refresh after key conflict: %w", rerr)
	}
	return do()
}

// liveGen returns the current generation when the connection is open,
// zero otherwise. New subscriptions bind to it so they only ever attach to
// the live socket.
func (c *Channel) liveGen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateOpen {
		return c.gen
	}
	return 0
}

// dispatchError delivers an error to every registered error handler.
func (c *Channel) dispatchError(err error) {
	handlers := c.registry.lifecycle(wire.EventError)
	if len(handlers) == 0 {
		c.logger.Error("unhandled channel error", "error", err)
		return
	}
	evt := Event{Name: wire.EventError, Err: err}
	for _, h := range handlers {
		h(evt)
	}
}

// dispatchLifecycle fires connect/disconnect handlers.
func (c *Channel) dispatchLifecycle(name string) {
	evt := Event{Name: name}
	for _, h := range c.registry.lifecycle(name) {
		h(evt)
	}
}

// notifyWaiters resolves every pending Connect waiter.
func (c *Channel) notifyWaiters(err error) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
	}
}
