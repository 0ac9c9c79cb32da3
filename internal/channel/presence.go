package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/jpleva/channel-client/internal/wire"
)

// Member is one joined connection on the presence channel.
type Member struct {
	ConnectionID string
	JoinedAt     string
	Data         any
}

// Presence tracks this instance's join state and a locally cached member
// list. The authoritative list lives on the server; join/leave frames keep
// the cache current between full fetches.
type Presence struct {
	c *Channel

	mu       sync.Mutex
	joined   bool
	lastJoin json.RawMessage // plaintext join payload, replayed after reconnect
	members  map[string]Member
}

func newPresence(c *Channel) *Presence {
	return &Presence{
		c:       c,
		members: make(map[string]Member),
	}
}

// Join announces this connection on the presence channel with the given
// application data. The payload is remembered so a reconnect can replay
// the join transparently.
func (p *Presence) Join(ctx context.Context, data any) error {
	plain, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal join data: %w", err)
	}

	// Join state flips only after the frame is out. Sending may itself dial
	// the connection, and the dial's rewiring replays any outstanding join;
	// recording the state first would make that replay plus this send a
	// double join.
	if err := p.sendJoin(ctx, plain); err != nil {
		return err
	}

	p.mu.Lock()
	p.joined = true
	p.lastJoin = plain
	p.mu.Unlock()
	return nil
}

// Leave withdraws from the presence channel. A no-op when not joined.
func (p *Presence) Leave(ctx context.Context) error {
	p.mu.Lock()
	if !p.joined {
		p.mu.Unlock()
		return nil
	}
	p.joined = false
	p.lastJoin = nil
	p.mu.Unlock()

	return p.c.sendFrame(ctx, wire.Frame{Event: wire.EventPresenceLeave})
}

// HasJoined reports whether a live join is outstanding.
func (p *Presence) HasJoined() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.joined
}

// Members fetches the authoritative presence list over the HTTP fallback
// path, decrypting each entry under its own recorded key version, and
// replaces the local cache with the result.
func (p *Presence) Members(ctx context.Context) ([]Member, error) {
	if p.c.requester == nil {
		return nil, ErrNoRequester
	}

	path := fmt.Sprintf("/presence-list/%s/%s", p.c.cfg.Channel.Class, p.c.cfg.Channel.ID)
	body, err := p.c.withConflictRetry(ctx, func() ([]byte, error) {
		return p.c.requester.Request(ctx, http.MethodGet, path, nil)
	})
	if err != nil {
		return nil, err
	}

	var entries []wire.PresenceEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parse presence list: %w", err)
	}

	members := make([]Member, 0, len(entries))
	for _, e := range entries {
		plain, err := p.c.gateway.openEntry(e)
		if err != nil {
			return nil, err
		}
		m := Member{ConnectionID: e.ConnectionID, JoinedAt: e.JoinedAt}
		if len(plain) > 0 {
			if err := json.Unmarshal(plain, &m.Data); err != nil {
				return nil, fmt.Errorf("parse presence data for %s: %w", e.ConnectionID, err)
			}
		}
		members = append(members, m)
	}

	p.mu.Lock()
	p.members = make(map[string]Member, len(members))
	for _, m := range members {
		p.members[m.ConnectionID] = m
	}
	p.mu.Unlock()

	return members, nil
}

// Snapshot returns the locally cached member list without a fetch.
func (p *Presence) Snapshot() []Member {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Member, 0, len(p.members))
	for _, m := range p.members {
		out = append(out, m)
	}
	return out
}

// observe updates the cache from an inbound presence frame. Called after
// decryption, before user handlers.
func (p *Presence) observe(f wire.Frame, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch f.Event {
	case wire.EventPresenceJoin:
		p.members[f.ConnectionID] = Member{
			ConnectionID: f.ConnectionID,
			JoinedAt:     f.JoinedAt,
			Data:         payload,
		}
	case wire.EventPresenceLeave:
		delete(p.members, f.ConnectionID)
	}
}

// replay re-sends the last join after a reconnect. Called exactly once per
// successful rewire; a no-op when no join is outstanding.
func (p *Presence) replay(ctx context.Context) {
	p.mu.Lock()
	joined := p.joined
	plain := p.lastJoin
	p.mu.Unlock()

	if !joined {
		return
	}

	if err := p.sendJoin(ctx, plain); err != nil {
		p.c.logger.Warn("presence join replay failed", "error", err)
		p.c.dispatchError(fmt.Errorf("replay presence join: %w", err))
	}
}

// sendJoin seals and sends one presence:join frame.
func (p *Presence) sendJoin(ctx context.Context, plain json.RawMessage) error {
	payload, kv, err := p.c.gateway.seal(plain)
	if err != nil {
		return err
	}
	return p.c.sendFrame(ctx, wire.Frame{
		Event:      wire.EventPresenceJoin,
		Payload:    payload,
		KeyVersion: kv,
	})
}
