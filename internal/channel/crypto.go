package channel

import (
	"encoding/json"
	"fmt"

	"github.com/jpleva/channel-client/internal/cipher"
	"github.com/jpleva/channel-client/internal/wire"
)

// gateway adapts the external encryption capability to the frame dispatch
// path. It is stateless beyond the provider reference; key material lives
// entirely in the provider.
type gateway struct {
	provider cipher.Provider // nil when the channel runs in plaintext mode
}

// configured reports whether an encryption provider is available.
func (g *gateway) configured() bool {
	return g.provider != nil
}

// openFrame returns the frame with its payload decrypted. Frames without a
// key version are plaintext and pass through unchanged. setItem frames keep
// their envelope plain and carry ciphertext only in the value field, so the
// item name stays routable; every other data frame encrypts the whole
// payload.
func (g *gateway) openFrame(f wire.Frame) (wire.Frame, error) {
	if f.KeyVersion == nil {
		return f, nil
	}

	if g.provider == nil {
		return wire.Frame{}, ErrNoCipher
	}

	h, err := g.provider.ForVersion(*f.KeyVersion)
	if err != nil {
		return wire.Frame{}, &DecryptError{KeyVersion: *f.KeyVersion, Err: err}
	}

	switch f.Event {
	case wire.EventSetItem:
		var sv wire.SetItemValue
		if err := json.Unmarshal(f.Payload, &sv); err != nil {
			return wire.Frame{}, &DecryptError{KeyVersion: *f.KeyVersion, Err: fmt.Errorf("setItem envelope: %w", err)}
		}
		plain, err := g.open(h, *f.KeyVersion, sv.Value)
		if err != nil {
			return wire.Frame{}, err
		}
		envelope, err := json.Marshal(wire.SetItemValue{Value: plain})
		if err != nil {
			return wire.Frame{}, &DecryptError{KeyVersion: *f.KeyVersion, Err: err}
		}
		f.Payload = envelope
	default:
		plain, err := g.open(h, *f.KeyVersion, f.Payload)
		if err != nil {
			return wire.Frame{}, err
		}
		f.Payload = plain
	}

	f.KeyVersion = nil
	return f, nil
}

// open decrypts one ciphertext field. On the wire ciphertext is a JSON
// string holding the sealed payload; the plaintext is itself JSON.
func (g *gateway) open(h cipher.Handler, version int, field json.RawMessage) (json.RawMessage, error) {
	var ct string
	if err := json.Unmarshal(field, &ct); err != nil {
		return nil, &DecryptError{KeyVersion: version, Err: fmt.Errorf("ciphertext not a string: %w", err)}
	}

	plain, err := h.Decrypt(ct)
	if err != nil {
		return nil, &DecryptError{KeyVersion: version, Err: err}
	}

	if !json.Valid([]byte(plain)) {
		return nil, &DecryptError{KeyVersion: version, Err: fmt.Errorf("plaintext is not valid JSON")}
	}
	return json.RawMessage(plain), nil
}

// seal encrypts an outbound payload under the current key version. In
// plaintext mode the payload passes through with no version attached.
func (g *gateway) seal(plain json.RawMessage) (json.RawMessage, *int, error) {
	if g.provider == nil {
		return plain, nil, nil
	}

	v := g.provider.CurrentVersion()
	h, err := g.provider.ForVersion(v)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve current key v%d: %w", v, err)
	}

	ct, err := h.Encrypt(string(plain))
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt payload under key v%d: %w", v, err)
	}

	payload, err := json.Marshal(ct)
	if err != nil {
		return nil, nil, err
	}
	return payload, &v, nil
}

// openEntry decrypts one presence-list entry under the entry's own recorded
// key version. Entries written before rotation decrypt under their
// historical key, not the current one.
func (g *gateway) openEntry(e wire.PresenceEntry) (json.RawMessage, error) {
	if e.KeyVersion == nil || len(e.Data) == 0 {
		return e.Data, nil
	}

	if g.provider == nil {
		return nil, ErrNoCipher
	}

	h, err := g.provider.ForVersion(*e.KeyVersion)
	if err != nil {
		return nil, &DecryptError{KeyVersion: *e.KeyVersion, Err: err}
	}
	return g.open(h, *e.KeyVersion, e.Data)
}
