package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("valid frame", func(t *testing.T) {
		f, err := Parse([]byte(`{"event":"connected","connectionId":"c1"}`))
		require.NoError(t, err)
		require.Equal(t, EventConnected, f.Event)
		require.Equal(t, "c1", f.ConnectionID)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := Parse([]byte("hello there"))
		require.ErrorIs(t, err, ErrNotAFrame)
	})

	t.Run("json without event", func(t *testing.T) {
		_, err := Parse([]byte(`{"payload":42}`))
		require.ErrorIs(t, err, ErrNotAFrame)
	})

	t.Run("key version zero preserved", func(t *testing.T) {
		f, err := Parse([]byte(`{"event":"message","payload":"abc","keyVersion":0}`))
		require.NoError(t, err)
		require.NotNil(t, f.KeyVersion)
		require.Equal(t, 0, *f.KeyVersion)
	})
}

func TestIsControl(t *testing.T) {
	control := []string{EventPing, EventPong, EventConnected, EventResume, EventResumeAck}
	for _, ev := range control {
		require.True(t, Frame{Event: ev}.IsControl(), ev)
	}

	passthrough := []string{EventMessage, EventSetItem, EventRemoveItem, EventPresenceJoin, EventPresenceLeave, EventError}
	for _, ev := range passthrough {
		require.False(t, Frame{Event: ev}.IsControl(), ev)
	}
}

func TestMarshalOmitsEmpty(t *testing.T) {
	data, err := Frame{Event: EventPing}.Marshal()
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"ping"}`, string(data))
}
