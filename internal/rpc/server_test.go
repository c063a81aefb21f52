package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camlink/camerad/internal/auth"
)

func startServer(t *testing.T, maxConnections int) (*Server, *auth.TokenManager, string) {
	t.Helper()
	s, tokens := testServer(t)
	s.cfg.MaxConnections = maxConnections
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	return s, tokens, "ws://" + s.Addr() + s.cfg.WebSocketPath
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, frame string) map[string]any {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return decoded
}

func TestServerEndToEnd(t *testing.T) {
	_, tokens, url := startServer(t, 10)
	conn := dial(t, url)

	token, err := tokens.Generate("tester", auth.RoleViewer, time.Hour)
	require.NoError(t, err)

	authResp := roundTrip(t, conn,
		fmt.Sprintf(`{"jsonrpc":"2.0","method":"authenticate","params":{"token":%q},"id":1}`, token))
	result := authResp["result"].(map[string]any)
	assert.Equal(t, true, result["authenticated"])
	assert.Equal(t, "viewer", result["role"])

	pingResp := roundTrip(t, conn, `{"jsonrpc":"2.0","method":"ping","id":2}`)
	assert.Equal(t, "pong", pingResp["result"])
	assert.EqualValues(t, 2, pingResp["id"])
}

func TestServerConnectionLimit(t *testing.T) {
	s, _, url := startServer(t, 1)

	dial(t, url)
	assert.Eventually(t, func() bool {
		return s.ActiveConnections() == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.Error(t, err, "dial past the connection limit must be rejected")
}

func TestServerBroadcastAndFiltering(t *testing.T) {
	s, _, url := startServer(t, 10)
	conn := dial(t, url)

	assert.Eventually(t, func() bool {
		return s.ActiveConnections() == 1
	}, 2*time.Second, 10*time.Millisecond)

	s.Broadcast(NotifyRecordingStatus, map[string]any{
		"device":   "/dev/video0",
		"status":   "STARTED",
		"filename": "camera0_x.mp4",
		"duration": 0.0,
		"internal": "must not leak",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var note map[string]any
	require.NoError(t, json.Unmarshal(raw, &note))
	assert.Equal(t, NotifyRecordingStatus, note["method"])
	params := note["params"].(map[string]any)
	assert.Equal(t, "/dev/video0", params["device"])
	assert.NotContains(t, params, "internal")
	assert.NotContains(t, note, "id")
}

func TestServerShutdownNotifiesClients(t *testing.T) {
	s, _, url := startServer(t, 10)
	conn := dial(t, url)

	assert.Eventually(t, func() bool {
		return s.ActiveConnections() == 1
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var note map[string]any
	require.NoError(t, json.Unmarshal(raw, &note))
	assert.Equal(t, NotifyServerShutdown, note["method"])
}

func TestServerStartStopIdempotent(t *testing.T) {
	s, _ := testServer(t)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
}

func TestServerPurgesClientOnSendFailure(t *testing.T) {
	s, _, url := startServer(t, 10)
	conn := dial(t, url)

	assert.Eventually(t, func() bool {
		return s.ActiveConnections() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Close the client side, then broadcast twice; the dead connection
	// must be purged from the pool.
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		s.Broadcast(NotifyRecordingStatus, map[string]any{
			"device": "/dev/video0", "status": "STOPPED",
		})
		return s.ActiveConnections() == 0
	}, 3*time.Second, 50*time.Millisecond)
}
