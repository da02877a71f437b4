package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"signalrouter/src/externalmodel"
	"signalrouter/src/notification"
)

type chatNotifier interface {
	FormatSignal(sig externalmodel.TradingSignal) string
	SendToPremium(ctx context.Context, payload notification.Payload) (*notification.Result, error)
	SendTestMessage(ctx context.Context) (*notification.BatchResult, error)
}

// WhopMessageHandler formats a raw alert and posts it to the premium chat.
func WhopMessageHandler(n chatNotifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := requestLogger(r)

		var sig externalmodel.TradingSignal
		if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		if strings.TrimSpace(sig.Text) == "" {
			writeError(w, r, http.StatusBadRequest, "text is required")
			return
		}

		result, err := n.SendToPremium(r.Context(), notification.Payload{Content: n.FormatSignal(sig)})
		if err != nil {
			log.WithError(err).Error("failed to send whop message")
			writeError(w, r, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"success":   true,
			"message":   "Trading signal message sent successfully",
			"direction": sig.Direction,
			"symbol":    sig.Symbol,
			"result":    result,
		})
	}
}

// WhopTestHandler posts the batch test message to the general and degen chats.
func WhopTestHandler(n chatNotifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := n.SendTestMessage(r.Context())
		if err != nil {
			requestLogger(r).WithError(err).Error("whop test message failed")
			writeError(w, r, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, result)
	}
}
