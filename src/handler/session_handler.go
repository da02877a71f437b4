package handler

import (
	"context"
	"net/http"

	"signalrouter/src/session"
)

type sessionManager interface {
	Snapshot() []session.Status
	ForceRevalidate(ctx context.Context, clientID string) bool
	Clear(clientID string)
}

// SessionStatusHandler lists the cached broker sessions with masked tokens.
func SessionStatusHandler(cache sessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"success":  true,
			"sessions": cache.Snapshot(),
		})
	}
}

// RevalidateSessionHandler drops the cached token for ?clientId= (default client
// when empty) and logs in again with the stored credentials.
func RevalidateSessionHandler(cache sessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := r.URL.Query().Get("clientId")
		if !cache.ForceRevalidate(r.Context(), clientID) {
			requestLogger(r).WithField("client_id", clientID).Warn("session revalidation failed")
			writeError(w, r, http.StatusBadGateway, "session revalidation failed")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]interface{}{"success": true, "clientId": clientID})
	}
}

// ClearSessionHandler clears one session, or all of them without ?clientId=.
func ClearSessionHandler(cache sessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := r.URL.Query().Get("clientId")
		cache.Clear(clientID)
		requestLogger(r).WithField("client_id", clientID).Info("session cleared")
		writeJSON(w, r, http.StatusOK, map[string]interface{}{"success": true, "clientId": clientID})
	}
}
