package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"

	"signalrouter/src/auth"
	"signalrouter/src/connectors"
	"signalrouter/src/controller"
	"signalrouter/src/handler"
	"signalrouter/src/notification"
	"signalrouter/src/repository"
	"signalrouter/src/session"
	"signalrouter/src/stream"
)

// Deps are the long-lived services the HTTP surface is built from.
type Deps struct {
	Router     *controller.SignalController
	Broker     *connectors.TopstepClient
	Sessions   *session.Cache
	Ledger     *repository.LedgerRepository
	Exceptions *repository.ExceptionRepository
	Notifier   *notification.Dispatcher
	Stream     *stream.Hub
	Password   *auth.PasswordVerifier
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// === Global Middleware ===
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	// Alert webhook, called by TradingView
	r.Post("/api/signal", handler.SignalHandler(d.Router))
	r.Post("/api/whopmessages", handler.WhopMessageHandler(d.Notifier))
	r.Post("/api/auth/verify", handler.VerifyPasswordHandler(d.Password))

	// Dashboard routes
	r.Group(func(r chi.Router) {
		r.Use(RequirePassword(d.Password))

		tokens := handler.TokenFunc(d.Router.DefaultToken)

		r.Get("/api/accounts", handler.SearchAccountsHandler(d.Broker, tokens))
		r.Get("/api/accounts/{accountId}", handler.GetAccountHandler(d.Broker, tokens))
		r.Get("/api/accounts/{accountId}/positions", handler.SearchPositionsHandler(d.Broker, tokens))
		r.Post("/api/accounts/{accountId}/positions/close", handler.ClosePositionHandler(d.Broker, tokens))
		r.Get("/api/accounts/{accountId}/orders", handler.SearchOrdersHandler(d.Broker, tokens))
		r.Post("/api/orders/cancel", handler.CancelOrderHandler(d.Broker, tokens))
		r.Get("/api/contracts", handler.SearchContractsHandler(d.Broker, tokens))

		r.Get("/api/ledger/positions", handler.ListPositionsHandler(d.Ledger))
		r.Get("/api/ledger/trades", handler.SearchTradesHandler(d.Ledger))
		r.Get("/api/ledger/signals/{signalId}", handler.GetSignalHandler(d.Ledger))
		r.Get("/api/exceptions", handler.ListExceptionsHandler(d.Exceptions))

		r.Get("/api/session", handler.SessionStatusHandler(d.Sessions))
		r.Post("/api/session/revalidate", handler.RevalidateSessionHandler(d.Sessions))
		r.Delete("/api/session", handler.ClearSessionHandler(d.Sessions))

		r.Post("/api/whop/test", handler.WhopTestHandler(d.Notifier))

		r.Get("/ws/events", d.Stream.ServeWS)
	})

	return r
}

// StartServer serves h until SIGINT or SIGTERM, then shuts down gracefully.
func StartServer(port string, h http.Handler) {
	// Graceful server
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
