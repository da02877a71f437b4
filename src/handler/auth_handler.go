package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	logger "github.com/sirupsen/logrus"

	"signalrouter/src/auth"
	"signalrouter/src/model"
)

type passwordVerifier interface {
	Verify(password string) error
}

type verifyPasswordPayload struct {
	Password string `json:"password"`
}

// VerifyPasswordHandler lets the dashboard check the access password before
// storing it for later requests.
func VerifyPasswordHandler(verifier passwordVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload verifyPasswordPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid verify password payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		if err := verifier.Verify(payload.Password); err != nil {
			logger.WithField("request_id", auth.RequestIDFromContext(r.Context())).
				WithError(err).Warn("access password rejected")
			writeJSON(w, r, http.StatusUnauthorized, map[string]bool{"valid": false})
			return
		}

		writeJSON(w, r, http.StatusOK, map[string]bool{"valid": true})
	}
}

type exceptionLister interface {
	ListRecent(ctx context.Context, limit int) ([]model.Exception, error)
}

// ListExceptionsHandler shows the most recent captured failures.
func ListExceptionsHandler(repo exceptionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		exceptions, err := repo.ListRecent(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list exceptions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, r, http.StatusOK, exceptions)
	}
}
