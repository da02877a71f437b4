package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"signalrouter/src/database"
	"signalrouter/src/model"
)

// Test index:
// - TestLedgerOpenCloseLifecycle: open XAUUSD, close with P&L, position removed.
// - TestCreateTradeOverwritesPositionForSymbol: second entry replaces the row.
// - TestCloseTradeNotFound
// - TestCloseTradeWithoutPositionIsNotAnError
// - TestUpsertSignalInsertThenPatch
// - TestSearchTradesFilters
// - TestGetCurrentPositionsQueryError: sqlmock error path.
// - TestSearchTradesSQL: sqlmock SQL shape.

func newSQLiteLedger(t *testing.T) (*LedgerRepository, *gorm.DB, *time.Time) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))

	now := time.Date(2025, 7, 1, 14, 30, 0, 0, time.UTC)
	repo := &LedgerRepository{db: db, now: func() time.Time { return now }}
	return repo, db, &now
}

func floatPtr(v float64) *float64 { return &v }

func xauTrade(signalID string, price float64) *model.Trade {
	return &model.Trade{
		Direction:  "buy",
		Comment:    "go_long",
		Symbol:     "XAUUSD",
		ContractID: "CON.F.US.MGC.Q25",
		Timeframe:  "5",
		Quantity:   4,
		SignalID:   signalID,
		Price:      floatPtr(price),
	}
}

func TestLedgerOpenCloseLifecycle(t *testing.T) {
	repo, _, _ := newSQLiteLedger(t)
	ctx := context.Background()

	tradeID, err := repo.CreateTrade(ctx, xauTrade("XAUUSD_buy_go_long_1", 2400))
	require.NoError(t, err)
	require.NotZero(t, tradeID)

	trade, err := repo.GetTrade(ctx, tradeID)
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, model.TradeStatusOpen, trade.Status)
	assert.Equal(t, 4, trade.Quantity)
	assert.Equal(t, "CON.F.US.MGC.Q25", trade.ContractID)
	require.NotNil(t, trade.EntryPrice)
	assert.Equal(t, 2400.0, *trade.EntryPrice)

	positions, err := repo.GetCurrentPositions(ctx, "XAUUSD")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, model.DirectionLong, positions[0].Direction)
	assert.Equal(t, tradeID, positions[0].TradeID)

	require.NoError(t, repo.CloseTrade(ctx, tradeID, floatPtr(2410), floatPtr(10), floatPtr(400)))

	trade, err = repo.GetTrade(ctx, tradeID)
	require.NoError(t, err)
	assert.Equal(t, model.TradeStatusClosed, trade.Status)
	require.NotNil(t, trade.Pnl)
	assert.Equal(t, 10.0, *trade.Pnl)
	require.NotNil(t, trade.ExitPrice)
	assert.Equal(t, 2410.0, *trade.ExitPrice)
	assert.NotNil(t, trade.ClosedAt)

	positions, err = repo.GetCurrentPositions(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestCreateTradeOverwritesPositionForSymbol(t *testing.T) {
	repo, db, _ := newSQLiteLedger(t)
	ctx := context.Background()

	_, err := repo.CreateTrade(ctx, xauTrade("sig-1", 2400))
	require.NoError(t, err)

	second := xauTrade("sig-2", 2395)
	second.Direction = "sell"
	second.Comment = "go_short"
	second.Quantity = 2
	secondID, err := repo.CreateTrade(ctx, second)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&model.CurrentPosition{}).Where("symbol = ?", "XAUUSD").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	positions, err := repo.GetCurrentPositions(ctx, "XAUUSD")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "sig-2", positions[0].SignalID)
	assert.Equal(t, secondID, positions[0].TradeID)
	assert.Equal(t, model.DirectionShort, positions[0].Direction)
	assert.Equal(t, 2, positions[0].Quantity)
	require.NotNil(t, positions[0].EntryPrice)
	assert.Equal(t, 2395.0, *positions[0].EntryPrice)

	// both trades stay on record
	trades, err := repo.SearchTrades(ctx, TradeSearchOptions{})
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestCloseTradeNotFound(t *testing.T) {
	repo, _, _ := newSQLiteLedger(t)

	err := repo.CloseTrade(context.Background(), 999, floatPtr(1), floatPtr(1), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTradeNotFound))
}

func TestCloseTradeWithoutPositionIsNotAnError(t *testing.T) {
	repo, db, _ := newSQLiteLedger(t)
	ctx := context.Background()

	tradeID, err := repo.CreateTrade(ctx, xauTrade("sig-1", 2400))
	require.NoError(t, err)
	require.NoError(t, db.Where("trade_id = ?", tradeID).Delete(&model.CurrentPosition{}).Error)

	require.NoError(t, repo.CloseTrade(ctx, tradeID, floatPtr(2390), floatPtr(-10), nil))

	trade, err := repo.GetTrade(ctx, tradeID)
	require.NoError(t, err)
	assert.Equal(t, model.TradeStatusClosed, trade.Status)
	assert.Nil(t, trade.PnlDollars)
}

func TestUpsertSignalInsertThenPatch(t *testing.T) {
	repo, _, _ := newSQLiteLedger(t)
	ctx := context.Background()

	sig := &model.Signal{
		SignalID:         "NQ1!_buy_go_long_1751380200000",
		Direction:        "buy",
		Comment:          "go_long",
		Symbol:           "NQ1!",
		ExecutedAccounts: []int64{1, 2},
		FailedAccounts:   []int64{3},
	}
	require.NoError(t, repo.UpsertSignal(ctx, sig))

	stored, err := repo.GetSignal(ctx, sig.SignalID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.SignalStatusExecuted, stored.Status)
	assert.Equal(t, []int64{1, 2}, stored.ExecutedAccounts)
	assert.Equal(t, []int64{3}, stored.FailedAccounts)

	again := &model.Signal{
		SignalID:         sig.SignalID,
		Direction:        "buy",
		Comment:          "go_long",
		Symbol:           "NQ1!",
		Status:           model.SignalStatusFailed,
		ExecutedAccounts: []int64{1, 2, 3},
	}
	require.NoError(t, repo.UpsertSignal(ctx, again))

	stored, err = repo.GetSignal(ctx, sig.SignalID)
	require.NoError(t, err)
	assert.Equal(t, model.SignalStatusExecuted, stored.Status)
	assert.Equal(t, []int64{1, 2, 3}, stored.ExecutedAccounts)
	assert.Empty(t, stored.FailedAccounts)

	missing, err := repo.GetSignal(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSearchTradesFilters(t *testing.T) {
	repo, _, now := newSQLiteLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tr := xauTrade(fmt.Sprintf("sig-%d", i), 2400)
		tr.Symbol = []string{"XAUUSD", "NQ1!", "XAUUSD"}[i]
		_, err := repo.CreateTrade(ctx, tr)
		require.NoError(t, err)
		*now = now.Add(time.Minute)
	}

	symbol := "XAUUSD"
	trades, err := repo.SearchTrades(ctx, TradeSearchOptions{Symbol: &symbol})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "sig-2", trades[0].SignalID)

	trades, err = repo.SearchTrades(ctx, TradeSearchOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "sig-1", trades[0].SignalID)

	all, err := repo.ListCurrentPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open gorm DB: %v", err)
	}

	return gormDB, mock
}

func TestGetCurrentPositionsQueryError(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &LedgerRepository{db: mockDB, now: time.Now}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "current_positions" WHERE symbol = $1 ORDER BY id ASC`)).
		WithArgs("NQ1!").
		WillReturnError(errors.New("connection refused"))

	_, err := repo.GetCurrentPositions(context.Background(), "NQ1!")
	if err == nil {
		t.Fatalf("expected error from query")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSearchTradesSQL(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &LedgerRepository{db: mockDB, now: time.Now}

	status := model.TradeStatusOpen
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trades" WHERE status = $1 ORDER BY executed_at DESC, id DESC LIMIT $2`)).
		WithArgs(status, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "symbol", "status"}).
			AddRow(5, "NQ1!", status))

	trades, err := repo.SearchTrades(context.Background(), TradeSearchOptions{Status: &status, Limit: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 || trades[0].ID != 5 {
		t.Fatalf("unexpected trades: %+v", trades)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
