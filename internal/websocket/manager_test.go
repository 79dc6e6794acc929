package websocket

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

	generrors "github.com/stdg/reqs-builder/internal/errors"
)

func startHub(t *testing.T) (*ReloadHub, string) {
	t.Helper()
	hub := NewReloadHub(nil, nil)
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		_ = hub.Shutdown(context.Background())
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + Path
}

func dial(t *testing.T, hub *ReloadHub, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	before := hub.ConnectedClients()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	require.Eventually(t, func() bool { return hub.ConnectedClients() == before+1 },
		2*time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) ReloadMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg ReloadMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub, url := startHub(t)
	first := dial(t, hub, url)
	second := dial(t, hub, url)

	hub.NotifyRegenerated(3, 12)

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, TypeRegenerated, msg.Type)
		assert.Equal(t, uint64(3), msg.Run)
		assert.Equal(t, 12, msg.Documents)
		assert.False(t, msg.Timestamp.IsZero())
	}
}

func TestNotifyErrorCarriesKindAndPath(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url)

	err := generrors.InFile(generrors.NewArrayMergeConflict("roles"), "source/b.yaml")
	require.NoError(t, hub.NotifyError(context.Background(), err))

	msg := readMessage(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, generrors.KindArrayMergeConflict.String(), msg.Kind)
	assert.Equal(t, "source/b.yaml", msg.Path)
	assert.Contains(t, msg.Error, "roles")
}

func TestErrorHandlerForwardsToHub(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url)

	handler := generrors.NewErrorHandler(nil, hub)
	handler.Handle(context.Background(), generrors.NewDirectoryNotFound("source"))

	msg := readMessage(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "source", msg.Path)
}

func TestDisconnectedClientsAreRemoved(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return hub.ConnectedClients() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestForeignOriginRejected(t *testing.T) {
	_, url := startHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestShutdownRejectsNewClients(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url)

	require.NoError(t, hub.Shutdown(context.Background()))
	assert.Equal(t, 0, hub.ConnectedClients())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Error(t, err)

	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// Broadcasting after shutdown is a no-op.
	hub.NotifyRegenerated(1, 1)
}

func TestLocalOrigins(t *testing.T) {
	v := &LocalOrigins{Allowed: []string{"https://docs.example"}}

	assert.True(t, v.IsAllowedOrigin("http://localhost:1313"))
	assert.True(t, v.IsAllowedOrigin("http://127.0.0.1:8080"))
	assert.True(t, v.IsAllowedOrigin("http://[::1]:1313"))
	assert.True(t, v.IsAllowedOrigin("https://docs.example"))
	assert.False(t, v.IsAllowedOrigin("https://evil.example"))
	assert.False(t, v.IsAllowedOrigin("::not a url"))
}

func TestListenAndServeStopsWithContext(t *testing.T) {
	hub := NewReloadHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- hub.ListenAndServe(ctx, "127.0.0.1", 0) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return")
	}
}
