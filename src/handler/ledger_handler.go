package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"signalrouter/src/model"
	"signalrouter/src/repository"
)

type tradeSearcher interface {
	SearchTrades(ctx context.Context, options repository.TradeSearchOptions) ([]model.Trade, error)
}

type positionLister interface {
	ListCurrentPositions(ctx context.Context) ([]model.CurrentPosition, error)
}

type signalGetter interface {
	GetSignal(ctx context.Context, signalID string) (*model.Signal, error)
}

// SearchTradesHandler returns a handler that lists ledger trades.
// Supports pagination and filters (symbol, status, executedFrom, executedTo).
func SearchTradesHandler(repo tradeSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var symbol *string
		if symbolParam := strings.TrimSpace(r.URL.Query().Get("symbol")); symbolParam != "" {
			symbol = &symbolParam
		}

		var status *string
		if statusParam := r.URL.Query().Get("status"); statusParam != "" {
			if statusParam != model.TradeStatusOpen && statusParam != model.TradeStatusClosed && statusParam != model.TradeStatusCancelled {
				http.Error(w, "invalid status", http.StatusBadRequest)
				return
			}
			status = &statusParam
		}

		var executedFrom, executedTo *time.Time
		if fromParam := r.URL.Query().Get("executedFrom"); fromParam != "" {
			parsed, err := time.Parse(time.RFC3339, fromParam)
			if err != nil {
				http.Error(w, "invalid executedFrom", http.StatusBadRequest)
				return
			}
			executedFrom = &parsed
		}

		if toParam := r.URL.Query().Get("executedTo"); toParam != "" {
			parsed, err := time.Parse(time.RFC3339, toParam)
			if err != nil {
				http.Error(w, "invalid executedTo", http.StatusBadRequest)
				return
			}
			executedTo = &parsed
		}

		page := 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsedPage, err := strconv.Atoi(pageParam)
			if err != nil || parsedPage <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsedPage
		}

		pageSize := 20
		if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
			parsedSize, err := strconv.Atoi(sizeParam)
			if err != nil || parsedSize <= 0 || parsedSize > 500 {
				http.Error(w, "invalid pageSize", http.StatusBadRequest)
				return
			}
			pageSize = parsedSize
		}

		offset := (page - 1) * pageSize

		trades, err := repo.SearchTrades(r.Context(), repository.TradeSearchOptions{
			Symbol:         symbol,
			Status:         status,
			ExecutedAfter:  executedFrom,
			ExecutedBefore: executedTo,
			Limit:          pageSize,
			Offset:         offset,
		})
		if err != nil {
			logger.WithError(err).Error("failed to search trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, r, http.StatusOK, trades)
	}
}

// ListPositionsHandler returns the tracked ledger positions, one per symbol.
func ListPositionsHandler(repo positionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		positions, err := repo.ListCurrentPositions(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list current positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, r, http.StatusOK, positions)
	}
}

func GetSignalHandler(repo signalGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		signalID := chi.URLParam(r, "signalId")
		if signalID == "" {
			http.Error(w, "invalid signalId", http.StatusBadRequest)
			return
		}

		signal, err := repo.GetSignal(r.Context(), signalID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch signal")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if signal == nil {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		writeJSON(w, r, http.StatusOK, signal)
	}
}
