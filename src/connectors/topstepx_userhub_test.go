package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestHubEndpoint(t *testing.T) {
	got, err := hubEndpoint("https://rtc.topstepx.com/hubs/user", "abc")
	require.NoError(t, err)
	require.Equal(t, "wss://rtc.topstepx.com/hubs/user?access_token=abc", got)

	got, err = hubEndpoint("http://127.0.0.1:9000/hubs/user", "t")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(got, "ws://127.0.0.1:9000/hubs/user"))

	_, err = hubEndpoint("ftp://example.com/hub", "t")
	require.Error(t, err)
}

func TestSplitFrames(t *testing.T) {
	frame := []byte(`{"type":6}` + "\x1e" + `{"type":1,"target":"GatewayUserTrade"}` + "\x1e")
	parts := splitFrames(frame)
	require.Len(t, parts, 2)
	require.JSONEq(t, `{"type":6}`, string(parts[0]))
}

func TestUserHubSubscribesAndDispatches(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan []string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "hub-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// handshake
		_, msg, err := conn.ReadMessage()
		if err != nil || !bytes.Contains(msg, []byte(`"protocol":"json"`)) {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{}\x1e"))

		// SubscribeAccounts + 3 per account
		var targets []string
		for len(targets) < 4 {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			for _, raw := range splitFrames(msg) {
				var m hubMessage
				if json.Unmarshal(raw, &m) == nil {
					targets = append(targets, m.Target)
				}
			}
		}
		subscribed <- targets

		push := `{"type":1,"target":"GatewayUserPosition","arguments":[{"accountId":77,"contractId":"CON.F.US.ENQ.U25","size":2}]}` + "\x1e"
		_ = conn.WriteMessage(websocket.TextMessage, []byte(push))

		// keep the socket open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	events := make(chan HubEvent, 1)
	hub := NewUserHub(
		server.URL,
		func(ctx context.Context) (string, error) { return "hub-token", nil },
		[]int64{77},
		func(ev HubEvent) { events <- ev },
		10*time.Millisecond,
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	select {
	case targets := <-subscribed:
		require.Equal(t, []string{"SubscribeAccounts", "SubscribeOrders", "SubscribePositions", "SubscribeTrades"}, targets)
	case <-time.After(5 * time.Second):
		t.Fatalf("hub never subscribed")
	}

	select {
	case ev := <-events:
		require.Equal(t, HubTargetPosition, ev.Target)
		require.JSONEq(t, `{"accountId":77,"contractId":"CON.F.US.ENQ.U25","size":2}`, string(ev.Data))
	case <-time.After(5 * time.Second):
		t.Fatalf("no event dispatched")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("hub did not stop after cancel")
	}
}
