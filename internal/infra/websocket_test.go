package infra

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSHub_PublishToRoom(t *testing.T) {
	hub := NewWSHub(quietLogger())
	a := &WSConn{ID: "a", Send: make(chan []byte, 1)}
	b := &WSConn{ID: "b", Send: make(chan []byte, 1)}
	hub.Join("raid:1", a)
	hub.Join("raid:2", b)
	assert.Equal(t, 2, hub.RoomCount())

	hub.Publish("raid:1", "raid.tick", map[string]int{"seq": 3})
	select {
	case payload := <-a.Send:
		assert.JSONEq(t, `{"event":"raid.tick","data":{"seq":3}}`, string(payload))
	default:
		t.Fatal("room member got nothing")
	}
	assert.Empty(t, b.Send)

	// full buffers drop instead of blocking
	hub.Publish("raid:2", "x", nil)
	hub.Publish("raid:2", "y", nil)
	assert.Len(t, b.Send, 1)

	hub.Leave("raid:1", "a")
	assert.Equal(t, 1, hub.ConnectionCount())
	assert.Equal(t, 1, hub.RoomCount())

	hub.Shutdown(context.Background())
	assert.Zero(t, hub.ConnectionCount())
	_, open := <-b.Send
	assert.True(t, open, "buffered message survives")
	_, open = <-b.Send
	assert.False(t, open)
}

func TestWSHub_Serve(t *testing.T) {
	hub := NewWSHub(quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, PlayerRoom(7))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.PublishToPlayer(7, "ledger.posted", map[string]any{"amount": 25})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "ledger.posted", msg.Event)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
