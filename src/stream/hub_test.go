package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func TestHubPublishReachesClient(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub)

	hub.Publish(EventTradeClosed, map[string]interface{}{"symbol": "XAUUSD", "pnl": 10})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, EventTradeClosed, ev.Type)
	assert.Len(t, ev.ID, 26)
	assert.JSONEq(t, `{"symbol":"XAUUSD","pnl":10}`, string(ev.Data))
}

func TestHubPublishRawKeepsPayload(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub)

	hub.PublishRaw(EventBroker+".GatewayUserPosition", json.RawMessage(`[{"accountId":1001,"size":2}]`))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "broker.GatewayUserPosition", ev.Type)
	assert.JSONEq(t, `[{"accountId":1001,"size":2}]`, string(ev.Data))
}

func TestHubRemovesDisconnectedClient(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)

	// publishing with nobody connected is a no-op
	hub.Publish(EventSignalRouted, nil)
}

func TestHubClose(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestNewEventIDIsMonotonic(t *testing.T) {
	prev := NewEventID()
	for i := 0; i < 1000; i++ {
		next := NewEventID()
		if next <= prev {
			t.Fatalf("event ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}
