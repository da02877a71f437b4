package server

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"signalrouter/src/auth"
)

const (
	requestIDHeader      = "X-Request-ID"
	accessPasswordHeader = "X-Access-Password"
)

// RequestID tags every request with an id, keeping a caller-supplied one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(auth.WithRequestID(r.Context(), id)))
	})
}

type passwordChecker interface {
	Verify(password string) error
}

// RequirePassword guards dashboard routes with the access password, sent as
// X-Access-Password, a Bearer token or (for websockets) ?password=.
func RequirePassword(verifier passwordChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			password := r.Header.Get(accessPasswordHeader)
			if password == "" {
				if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
					password = strings.TrimPrefix(h, "Bearer ")
				}
			}
			if password == "" {
				password = r.URL.Query().Get("password")
			}

			if err := verifier.Verify(password); err != nil {
				logger.WithFields(map[string]interface{}{
					"request_id": auth.RequestIDFromContext(r.Context()),
					"path":       r.URL.Path,
				}).WithError(err).Warn("dashboard access denied")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			op := &auth.Operator{
				Name:      "dashboard",
				RemoteIP:  host,
				RequestID: auth.RequestIDFromContext(r.Context()),
			}
			next.ServeHTTP(w, r.WithContext(auth.WithOperator(r.Context(), op)))
		})
	}
}
