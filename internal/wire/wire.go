// Package wire defines the JSON frame format exchanged with the realtime
// endpoint. Every frame is a text message with a top-level "event"
// discriminator; frames carrying encrypted payloads additionally record the
// key version they were sealed under.
package wire

import (
	"encoding/json"
	"errors"
)

// Logical event names carried in the "event" field.
const (
	EventMessage       = "message"
	EventSetItem       = "setItem"
	EventRemoveItem    = "removeItem"
	EventPresenceJoin  = "presence:join"
	EventPresenceLeave = "presence:leave"
	EventPing          = "ping"
	EventPong          = "pong"
	EventConnected     = "connected"
	EventResume        = "resume"
	EventResumeAck     = "resume:ack"
	EventError         = "error"
)

// Pseudo events usable in subscriptions. These never appear on the wire;
// they map to socket lifecycle transitions.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// Close codes. HeartbeatTimeoutCode distinguishes a liveness-probe forced
// close from server-initiated closes.
const (
	PolicyViolationCode   = 1008
	HeartbeatTimeoutCode  = 4002
	NormalClosureCode     = 1000
	AbnormalClosureCode   = 1006
	GoingAwayCode         = 1001
	UnexpectedCloseReason = "connection lost"
)

// TierLimitReason is the close-reason marker the server uses when the
// account's concurrency or throughput tier has been exhausted. Seeing it
// permanently disables reconnection.
const TierLimitReason = "TierLimitExceeded"

var ErrNotAFrame = errors.New("not a wire frame")

// Frame is the single envelope for all wire traffic.
type Frame struct {
	Event        string          `json:"event"`
	Item         string          `json:"item,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	KeyVersion   *int            `json:"keyVersion,omitempty"`
	ConnectionID string          `json:"connectionId,omitempty"`
	JoinedAt     string          `json:"joinedAt,omitempty"`
}

// Parse decodes raw bytes into a Frame. Bytes that are not a JSON object
// with an "event" field are not frames; callers pass those through to user
// handlers untouched.
func Parse(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, ErrNotAFrame
	}
	if f.Event == "" {
		return Frame{}, ErrNotAFrame
	}
	return f, nil
}

// IsControl reports whether the frame is consumed by the connection layer
// and must never reach user handlers.
func (f Frame) IsControl() bool {
	switch f.Event {
	case EventPing, EventPong, EventConnected, EventResume, EventResumeAck:
		return true
	}
	return false
}

// Marshal encodes the frame for transmission.
func (f Frame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// SetItemValue is the payload shape of setItem frames. When the channel is
// encrypted only Value is ciphertext; the surrounding object stays plain so
// the item name remains routable.
type SetItemValue struct {
	Value json.RawMessage `json:"value"`
}

// PresenceEntry is one member of the authoritative presence list. Entries
// may have been written under different historical key versions, so each
// records its own.
type PresenceEntry struct {
	ConnectionID string          `json:"connectionId"`
	JoinedAt     string          `json:"joinedAt"`
	Data         json.RawMessage `json:"data,omitempty"`
	KeyVersion   *int            `json:"keyVersion,omitempty"`
}
