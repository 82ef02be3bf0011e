package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnection(buffer int) *Connection {
	return &Connection{ID: "test-conn", Send: make(chan []byte, buffer)}
}

func receive(t *testing.T, conn *Connection) Envelope {
	t.Helper()
	select {
	case data := <-conn.Send:
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Envelope{}
	}
}

func TestEmitBroadcastsToAllConnections(t *testing.T) {
	h := NewHub()
	go h.Run()

	a := &Connection{ID: "a", Send: make(chan []byte, 4)}
	b := &Connection{ID: "b", Send: make(chan []byte, 4)}
	h.Register(a)
	h.Register(b)

	require.NoError(t, h.Emit("crew_log", map[string]any{"crewId": "demo"}))

	for _, conn := range []*Connection{a, b} {
		env := receive(t, conn)
		assert.Equal(t, "crew_log", env.Event)
		data := env.Data.(map[string]any)
		assert.Equal(t, "demo", data["crewId"])
	}
}

func TestEmitToConnectionTargetsOneConnection(t *testing.T) {
	h := NewHub()
	go h.Run()

	a := &Connection{ID: "a", Send: make(chan []byte, 4)}
	b := &Connection{ID: "b", Send: make(chan []byte, 4)}
	h.Register(a)
	h.Register(b)

	require.NoError(t, h.EmitToConnection(a, "crew_start_ack", map[string]any{"crew_id": "demo"}))

	env := receive(t, a)
	assert.Equal(t, "crew_start_ack", env.Event)
	assert.Empty(t, b.Send)
}

func TestSendToConnectionBufferFull(t *testing.T) {
	h := NewHub()
	conn := newTestConnection(1)

	require.NoError(t, h.SendToConnection(conn, []byte("one")))
	err := h.SendToConnection(conn, []byte("two"))
	assert.ErrorIs(t, err, ErrBufferFull)
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	h := NewHub()
	go h.Run()

	conn := newTestConnection(4)
	h.Register(conn)
	require.Eventually(t, func() bool { return h.GetConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	h.Unregister(conn)
	require.Eventually(t, func() bool { return h.GetConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	_, open := <-conn.Send
	assert.False(t, open, "send channel must be closed on unregister")
}
