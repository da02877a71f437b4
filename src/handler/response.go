package handler

import (
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"signalrouter/src/auth"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithField("request_id", auth.RequestIDFromContext(r.Context())).
			WithError(err).Error("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Success: false, Error: msg})
}

func requestLogger(r *http.Request) *logger.Entry {
	entry := logger.WithFields(map[string]interface{}{
		"request_id": auth.RequestIDFromContext(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	})
	if op, ok := auth.GetOperatorFromContext(r.Context()); ok {
		entry = entry.WithField("operator_ip", op.RemoteIP)
	}
	return entry
}
