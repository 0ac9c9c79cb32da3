package channel

import (
	"encoding/json"
	"sync"
)

// Event is what a subscription handler receives.
type Event struct {
	// Name is the logical event ("message", "setItem", "connect", ...).
	Name string

	// Item is the item name for setItem/removeItem events.
	Item string

	// Payload is the decoded (and, when applicable, decrypted) payload.
	Payload any

	// Raw is the payload as it appeared after decryption, before decoding.
	Raw json.RawMessage

	// ConnectionID and JoinedAt are set on presence events.
	ConnectionID string
	JoinedAt     string

	// Err is set on "error" events.
	Err error
}

// Handler is an opaque subscription callback.
type Handler func(Event)

// Subscription identifies one registered handler. Off removes by
// subscription identity, so the same function can be registered twice and
// removed individually.
type Subscription struct {
	event   string
	item    string
	hasItem bool
	handler Handler

	// gen is the connection generation this subscription's wire listener
	// is bound to. Zero means not bound to any live connection; rewire
	// rebinds every retained subscription to the fresh generation so no
	// listener is ever left pointing at a dead socket.
	gen uint64
}

// Event returns the logical event name this subscription listens on.
func (s *Subscription) Event() string { return s.event }

// registry owns the mapping from logical event name to active
// subscriptions.
type registry struct {
	mu   sync.Mutex
	subs map[string][]*Subscription
}

func newRegistry() *registry {
	return &registry{subs: make(map[string][]*Subscription)}
}

// add registers a handler and binds it to the given generation.
func (r *registry) add(event, item string, hasItem bool, gen uint64, h Handler) *Subscription {
	sub := &Subscription{
		event:   event,
		item:    item,
		hasItem: hasItem,
		handler: h,
		gen:     gen,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[event] = append(r.subs[event], sub)
	return sub
}

// remove detaches a subscription. Empty event buckets are dropped.
func (r *registry) remove(sub *Subscription) {
	if sub == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.subs[sub.event]
	for i, s := range bucket {
		if s == sub {
			r.subs[sub.event] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(r.subs[sub.event]) == 0 {
		delete(r.subs, sub.event)
	}
}

// rewire rebinds every retained subscription to a fresh connection
// generation. Invoked after every successful (re)connect.
func (r *registry) rewire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bucket := range r.subs {
		for _, sub := range bucket {
			sub.gen = gen
		}
	}
}

// wired returns the handlers for a wire event bound to the given
// generation, honoring item filters. A subscription without an item filter
// matches every item.
func (r *registry) wired(event, item string, gen uint64) []Handler {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Handler
	for _, sub := range r.subs[event] {
		if sub.gen != gen {
			continue
		}
		if sub.hasItem && sub.item != item {
			continue
		}
		out = append(out, sub.handler)
	}
	return out
}

// lifecycle returns handlers for connect/disconnect/error pseudo events.
// These are not wire listeners, so generation binding does not apply.
func (r *registry) lifecycle(event string) []Handler {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Handler, 0, len(r.subs[event]))
	for _, sub := range r.subs[event] {
		out = append(out, sub.handler)
	}
	return out
}

// clear drops every subscription, error handlers included. Used on full
// teardown where the socket itself is being discarded, so there is nothing
// to detach per listener.
func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string][]*Subscription)
}

// size reports the number of live subscriptions for an event.
func (r *registry) size(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[event])
}
