package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"signalrouter/src/model"
	"signalrouter/src/repository"
)

type mockTradeSearcher struct {
	trades      []model.Trade
	err         error
	options     repository.TradeSearchOptions
	calledCount int
}

func (m *mockTradeSearcher) SearchTrades(ctx context.Context, options repository.TradeSearchOptions) ([]model.Trade, error) {
	m.calledCount++
	m.options = options
	return m.trades, m.err
}

func TestSearchTradesHandler_InvalidStatus(t *testing.T) {
	mockRepo := &mockTradeSearcher{}
	handler := SearchTradesHandler(mockRepo)

	req := httptest.NewRequest(http.MethodGet, "/api/trades?status=pending", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if mockRepo.calledCount != 0 {
		t.Fatalf("expected repo not to be called")
	}
}

func TestSearchTradesHandler_InvalidPagination(t *testing.T) {
	for _, query := range []string{"page=0", "page=abc", "pageSize=0", "pageSize=501", "executedFrom=yesterday", "executedTo=2025-13-01"} {
		handler := SearchTradesHandler(&mockTradeSearcher{})

		req := httptest.NewRequest(http.MethodGet, "/api/trades?"+query, nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", query, rr.Code)
		}
	}
}

func TestSearchTradesHandler_RepoError(t *testing.T) {
	mockRepo := &mockTradeSearcher{err: assert.AnError}
	handler := SearchTradesHandler(mockRepo)

	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

func TestSearchTradesHandler_Success(t *testing.T) {
	mockRepo := &mockTradeSearcher{trades: []model.Trade{{ID: 7, Symbol: "XAUUSD", Status: model.TradeStatusClosed}}}
	handler := SearchTradesHandler(mockRepo)

	req := httptest.NewRequest(http.MethodGet,
		"/api/trades?symbol=XAUUSD&status=closed&page=3&pageSize=10&executedFrom=2025-07-01T00:00:00Z&executedTo=2025-07-02T00:00:00Z", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	opts := mockRepo.options
	assert.Equal(t, "XAUUSD", *opts.Symbol)
	assert.Equal(t, model.TradeStatusClosed, *opts.Status)
	assert.Equal(t, 10, opts.Limit)
	assert.Equal(t, 20, opts.Offset)
	assert.True(t, opts.ExecutedAfter.Equal(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, opts.ExecutedBefore.Equal(time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC)))
	assert.Contains(t, rr.Body.String(), `"symbol":"XAUUSD"`)
}

func TestSearchTradesHandler_Defaults(t *testing.T) {
	mockRepo := &mockTradeSearcher{}
	handler := SearchTradesHandler(mockRepo)

	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, mockRepo.options.Symbol)
	assert.Nil(t, mockRepo.options.Status)
	assert.Equal(t, 20, mockRepo.options.Limit)
	assert.Equal(t, 0, mockRepo.options.Offset)
}

type mockLedgerReader struct {
	positions []model.CurrentPosition
	signal    *model.Signal
	err       error
	signalID  string
}

func (m *mockLedgerReader) ListCurrentPositions(ctx context.Context) ([]model.CurrentPosition, error) {
	return m.positions, m.err
}

func (m *mockLedgerReader) GetSignal(ctx context.Context, signalID string) (*model.Signal, error) {
	m.signalID = signalID
	return m.signal, m.err
}

func TestListPositionsHandler(t *testing.T) {
	repo := &mockLedgerReader{positions: []model.CurrentPosition{{Symbol: "NQ1!", Direction: model.DirectionShort}}}

	rr := httptest.NewRecorder()
	ListPositionsHandler(repo).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ledger/positions", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"direction":"short"`)

	repo.err = assert.AnError
	rr = httptest.NewRecorder()
	ListPositionsHandler(repo).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ledger/positions", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestGetSignalHandler(t *testing.T) {
	repo := &mockLedgerReader{}
	r := chi.NewRouter()
	r.Get("/api/signals/{signalId}", GetSignalHandler(repo))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/signals/missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "missing", repo.signalID)

	repo.signal = &model.Signal{SignalID: "NQ1!_buy_go_long_1", Status: model.SignalStatusExecuted}
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/signals/NQ1!_buy_go_long_1", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "NQ1!_buy_go_long_1", repo.signalID)
	assert.Contains(t, rr.Body.String(), `"status":"executed"`)
}
