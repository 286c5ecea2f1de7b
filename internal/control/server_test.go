package control

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oceancl/internal/ocean"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func dial(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func TestServerQueuesEdits(t *testing.T) {
	var pe ocean.PendingEdits
	conn := dial(t, NewServer(&pe, quietLogger()))

	require.NoError(t, conn.WriteJSON(Request{Edits: []ocean.Edit{
		{Field: ocean.FieldWindMagnitude, Value: 5},
		{Field: ocean.FieldAnimate, Relative: true},
	}}))
	require.Eventually(t, func() bool { return pe.Len() == 2 }, time.Second, 5*time.Millisecond)

	p, changed := pe.Apply(ocean.DefaultParams())
	assert.True(t, changed)
	assert.Equal(t, float32(5), p.WindMagnitude)
	assert.False(t, p.Animate)
}

func TestServerRejectsUnknownField(t *testing.T) {
	var pe ocean.PendingEdits
	conn := dial(t, NewServer(&pe, quietLogger()))

	require.NoError(t, conn.WriteJSON(Request{Edits: []ocean.Edit{{Field: "gravity", Value: 1}}}))
	var reply Reply
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, reply.Error, "gravity")
	assert.Zero(t, pe.Len())
}

func TestServerBroadcastsFrames(t *testing.T) {
	var pe ocean.PendingEdits
	srv := NewServer(&pe, quietLogger())
	conn := dial(t, srv)

	srv.Broadcast(ocean.FrameStats{Frame: 7, Slot: 1, ZMin: -2, ZMax: 3, Launches: 40})
	var reply Reply
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "frame", reply.Type)
	require.NotNil(t, reply.Frame)
	assert.Equal(t, uint64(7), reply.Frame.Frame)
	assert.Equal(t, float32(3), reply.Frame.ZMax)
	assert.Equal(t, 40, reply.Frame.Launches)

	conn.Close()
	require.Eventually(t, func() bool { return srv.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
