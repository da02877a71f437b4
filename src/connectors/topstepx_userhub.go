package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// SignalR JSON hub protocol framing.
const (
	recordSeparator = 0x1e

	hubMessageInvocation = 1
	hubMessageCompletion = 3
	hubMessagePing       = 6
	hubMessageClose      = 7
)

// Realtime targets pushed by the user hub.
const (
	HubTargetAccount  = "GatewayUserAccount"
	HubTargetOrder    = "GatewayUserOrder"
	HubTargetPosition = "GatewayUserPosition"
	HubTargetTrade    = "GatewayUserTrade"
)

// HubEvent is one invocation received from the user hub.
type HubEvent struct {
	Target string          `json:"target"`
	Data   json.RawMessage `json:"data"`
}

type HubHandler func(HubEvent)

// TokenSource yields the bearer token used to join the hub.
type TokenSource func(ctx context.Context) (string, error)

type hubMessage struct {
	Type         int               `json:"type"`
	Target       string            `json:"target,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
	InvocationID string            `json:"invocationId,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// UserHub keeps a realtime subscription to account, order, position and trade
// updates for the configured accounts and forwards them to a handler.
type UserHub struct {
	hubURL     string
	tokens     TokenSource
	accountIDs []int64
	handler    HubHandler
	dialer     *websocket.Dialer
	reconnect  time.Duration
	log        *logrus.Entry
}

func NewUserHub(hubURL string, tokens TokenSource, accountIDs []int64, handler HubHandler, reconnect time.Duration, log *logrus.Entry) *UserHub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}

	return &UserHub{
		hubURL:     hubURL,
		tokens:     tokens,
		accountIDs: accountIDs,
		handler:    handler,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  15 * time.Second,
			EnableCompression: true,
			Proxy:             http.ProxyFromEnvironment,
		},
		reconnect: reconnect,
		log:       log.WithField("component", "user_hub"),
	}
}

// Run connects and consumes until ctx is canceled, reconnecting after failures.
func (h *UserHub) Run(ctx context.Context) error {
	for {
		err := h.runOnce(ctx)
		if ctx.Err() != nil {
			h.log.Info("user hub stopped")
			return nil
		}
		h.log.WithError(err).Warn("user hub disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(h.reconnect):
		}
	}
}

// hubEndpoint turns the https hub address into its websocket form with the token attached.
func hubEndpoint(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid hub url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported hub scheme %q", u.Scheme)
	}

	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (h *UserHub) runOnce(ctx context.Context) error {
	token, err := h.tokens(ctx)
	if err != nil {
		return fmt.Errorf("hub token: %w", err)
	}

	endpoint, err := hubEndpoint(h.hubURL, token)
	if err != nil {
		return err
	}

	conn, _, err := h.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("ws dial failed: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := h.handshake(conn); err != nil {
		return err
	}

	if err := h.subscribe(conn); err != nil {
		return err
	}
	h.log.WithField("accounts", accountList(h.accountIDs)).Info("user hub connected")

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws read failed: %w", err)
		}

		for _, raw := range splitFrames(frame) {
			var msg hubMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				h.log.WithError(err).WithField("raw", string(raw)).Debug("skipping malformed hub message")
				continue
			}

			switch msg.Type {
			case hubMessageInvocation:
				h.dispatch(msg)
			case hubMessagePing:
				if err := writeHubMessage(conn, hubMessage{Type: hubMessagePing}); err != nil {
					return fmt.Errorf("ws ping reply failed: %w", err)
				}
			case hubMessageClose:
				if msg.Error != "" {
					return fmt.Errorf("hub closed connection: %s", msg.Error)
				}
				return errors.New("hub closed connection")
			case hubMessageCompletion:
				if msg.Error != "" {
					h.log.WithField("invocation", msg.InvocationID).Warn("hub invocation failed: " + msg.Error)
				}
			}
		}
	}
}

func (h *UserHub) handshake(conn *websocket.Conn) error {
	req := append([]byte(`{"protocol":"json","version":1}`), recordSeparator)
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		return fmt.Errorf("ws handshake write failed: %w", err)
	}

	_, frame, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("ws handshake read failed: %w", err)
	}

	frames := splitFrames(frame)
	if len(frames) == 0 {
		return fmt.Errorf("unexpected hub handshake payload: %q", string(frame))
	}

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(frames[0], &resp); err != nil {
		return fmt.Errorf("unexpected hub handshake payload: %q", string(frame))
	}
	if resp.Error != "" {
		return fmt.Errorf("hub handshake rejected: %s", resp.Error)
	}

	// Messages batched after the handshake ack are regular traffic.
	return nil
}

func (h *UserHub) subscribe(conn *websocket.Conn) error {
	if err := invoke(conn, "SubscribeAccounts"); err != nil {
		return err
	}

	for _, id := range h.accountIDs {
		for _, target := range []string{"SubscribeOrders", "SubscribePositions", "SubscribeTrades"} {
			if err := invoke(conn, target, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *UserHub) dispatch(msg hubMessage) {
	if h.handler == nil {
		return
	}

	ev := HubEvent{Target: msg.Target}
	if len(msg.Arguments) > 0 {
		ev.Data = msg.Arguments[0]
	}
	h.handler(ev)
}

func invoke(conn *websocket.Conn, target string, args ...interface{}) error {
	msg := hubMessage{Type: hubMessageInvocation, Target: target}
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return err
		}
		msg.Arguments = append(msg.Arguments, b)
	}
	if err := writeHubMessage(conn, msg); err != nil {
		return fmt.Errorf("invoke %s: %w", target, err)
	}
	return nil
}

func writeHubMessage(conn *websocket.Conn, msg hubMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, append(b, recordSeparator))
}

// splitFrames cuts one websocket frame into its record-separated JSON messages.
func splitFrames(frame []byte) [][]byte {
	var out [][]byte
	for _, part := range bytes.Split(frame, []byte{recordSeparator}) {
		part = bytes.TrimSpace(part)
		if len(part) == 0 {
			continue
		}
		out = append(out, part)
	}
	return out
}

// accountList is used for log output only.
func accountList(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return strings.Join(parts, ",")
}
