package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalrouter/src/externalmodel"
)

type recordedPost struct {
	path    string
	content string
}

func newWebhookServer(t *testing.T, status map[string]int) (*httptest.Server, func() []recordedPost) {
	t.Helper()
	var mu sync.Mutex
	var posts []recordedPost

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		mu.Lock()
		posts = append(posts, recordedPost{path: r.URL.Path, content: p.Content})
		mu.Unlock()

		if code, ok := status[r.URL.Path]; ok {
			w.WriteHeader(code)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	return server, func() []recordedPost {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedPost(nil), posts...)
	}
}

func TestSendSuccess(t *testing.T) {
	server, posts := newWebhookServer(t, nil)
	d := NewDispatcher(Config{}, nil)

	res, err := d.Send(context.Background(), server.URL+"/hook", Payload{Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)
	require.Len(t, posts(), 1)
	assert.Equal(t, "hello", posts()[0].content)
}

func TestSendNon2xxIsWebhookError(t *testing.T) {
	server, _ := newWebhookServer(t, map[string]int{"/hook": http.StatusForbidden})
	d := NewDispatcher(Config{}, nil)

	_, err := d.Send(context.Background(), server.URL+"/hook", Payload{Content: "x"})

	var werr *WebhookError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, http.StatusForbidden, werr.StatusCode)
	assert.Equal(t, "Webhook error: 403", werr.Error())
}

func TestSendMissingURL(t *testing.T) {
	d := NewDispatcher(Config{}, nil)

	_, err := d.SendToPremium(context.Background(), Payload{Content: "x"})
	require.ErrorIs(t, err, ErrWebhookNotConfigured)
}

func TestSendBatchFailsIfAnyDeliveryFails(t *testing.T) {
	server, posts := newWebhookServer(t, map[string]int{"/bad": http.StatusInternalServerError})
	d := NewDispatcher(Config{}, nil)

	res, err := d.SendBatch(context.Background(), Payload{Content: "batch"}, server.URL+"/a", server.URL+"/b")
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)

	_, err = d.SendBatch(context.Background(), Payload{Content: "batch"}, server.URL+"/a", server.URL+"/bad")
	var werr *WebhookError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, http.StatusInternalServerError, werr.StatusCode)
	assert.GreaterOrEqual(t, len(posts()), 3)
}

func TestSendBatchFailureDoesNotCancelOtherPosts(t *testing.T) {
	completed := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			completed <- "cancelled"
			return
		case <-time.After(150 * time.Millisecond):
		}
		w.WriteHeader(http.StatusNoContent)
		completed <- "delivered"
	}))
	t.Cleanup(server.Close)

	d := NewDispatcher(Config{DegenChatURL: server.URL + "/degen"}, nil)

	// general is not configured and fails at once
	_, err := d.SendSignalsToChats(context.Background(), Payload{Content: "signal"})
	require.ErrorIs(t, err, ErrWebhookNotConfigured)

	select {
	case outcome := <-completed:
		assert.Equal(t, "delivered", outcome)
	case <-time.After(2 * time.Second):
		t.Fatalf("degen post never finished")
	}
}

func TestSendTestMessageHitsGeneralAndDegen(t *testing.T) {
	server, posts := newWebhookServer(t, nil)
	d := NewDispatcher(Config{
		GeneralChatURL: server.URL + "/general",
		DegenChatURL:   server.URL + "/degen",
	}, nil)

	res, err := d.SendTestMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "All messages sent successfully", res.Message)

	paths := map[string]bool{}
	for _, p := range posts() {
		paths[p.path] = true
		assert.Contains(t, p.content, "testing sending batch messages")
	}
	assert.True(t, paths["/general"] && paths["/degen"])
}

func TestNotifyExitIncludesPnL(t *testing.T) {
	server, posts := newWebhookServer(t, nil)
	d := NewDispatcher(Config{PremiumChatURL: server.URL + "/premium", Timezone: "UTC"}, nil)

	price := 2410.0
	dollars := 400.0
	sig := externalmodel.TradingSignal{
		Direction: "sell", Comment: "exit_long", Symbol: "XAUUSD", Timeframe: "5",
		TimeOfMessage: "2025-07-01T14:30:00Z", Price: &price, Text: "take profit",
	}
	require.NoError(t, d.NotifyExit(context.Background(), sig, 10, &dollars))

	require.Len(t, posts(), 1)
	content := posts()[0].content
	assert.True(t, strings.HasPrefix(content, "❌ EXIT SIGNAL - CLOSE LONG 🔴"))
	assert.Contains(t, content, "P&L: +10.00 pts ($+400.00)")
}

func TestFormatSignalMessageTemplates(t *testing.T) {
	price := 21000.25
	base := externalmodel.TradingSignal{
		Symbol: "NQ1!", Timeframe: "1", TimeOfMessage: "2025-07-01T14:30:00Z", Text: "breakout",
	}

	tests := []struct {
		comment, direction string
		price              *float64
		want               []string
	}{
		{"go_long", "buy", &price, []string{"🟢 BUY SIGNAL - GO LONG 🟢", "Action: GO LONG", "Direction: BUY", "Price: 21000.25"}},
		{"go_short", "sell", nil, []string{"🔴 SELL SIGNAL - GO SHORT 🔴", "Direction: SELL", "Price: Market"}},
		{"exit_short", "buy", nil, []string{"❌ EXIT SIGNAL - CLOSE SHORT 🟢", "Action: EXIT SHORT", "Direction: BUY"}},
		{"hold", "", nil, []string{"📊 TRADING SIGNAL 📊", "Comment: hold", "Direction: UNKNOWN"}},
	}

	for _, tt := range tests {
		sig := base
		sig.Comment = tt.comment
		sig.Direction = tt.direction
		sig.Price = tt.price

		msg := FormatSignalMessage(sig, time.UTC)
		for _, w := range tt.want {
			assert.Contains(t, msg, w, tt.comment)
		}
		assert.Contains(t, msg, "Time: 07/01/2025, 02:30:00 PM", tt.comment)
		assert.True(t, strings.HasSuffix(msg, "\n\nbreakout"), tt.comment)
	}
}

func TestFormatSignalMessageKeepsUnparsableTime(t *testing.T) {
	msg := FormatSignalMessage(externalmodel.TradingSignal{Comment: "go_long", TimeOfMessage: "{{timenow}}"}, time.UTC)
	assert.Contains(t, msg, "Time: {{timenow}}")
}
