package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalrouter/src/database"
	"signalrouter/src/model"
)

// ErrTradeNotFound is returned when closing a trade id that does not exist.
var ErrTradeNotFound = errors.New("trade not found")

// TradeSearchOptions filters the trade history listing.
type TradeSearchOptions struct {
	Symbol         *string
	Status         *string
	ExecutedAfter  *time.Time
	ExecutedBefore *time.Time
	Limit          int
	Offset         int
}

// LedgerRepository owns trades, current positions and signals.
type LedgerRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLedgerRepository creates a new repository instance using the main read/write database.
func NewLedgerRepository() *LedgerRepository {
	logger.WithField("component", "LedgerRepository").
		Info("Creating new LedgerRepository with MainDB")

	return &LedgerRepository{
		db:  database.MainDB,
		now: time.Now,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *LedgerRepository) WithDB(db *gorm.DB) *LedgerRepository {
	logger.WithField("component", "LedgerRepository").
		Debug("Creating LedgerRepository with custom DB instance")

	now := time.Now
	if r != nil && r.now != nil {
		now = r.now
	}
	return &LedgerRepository{db: db, now: now}
}

// ---------------------------------------------------
// Trades and current positions
// ---------------------------------------------------

// CreateTrade inserts an open trade and points the symbol's tracked position at it.
// An existing position for the symbol is overwritten in place, never stacked.
func (r *LedgerRepository) CreateTrade(
	ctx context.Context,
	trade *model.Trade,
) (uint, error) {

	logger.WithFields(map[string]interface{}{
		"repo":      "LedgerRepository",
		"op":        "CreateTrade",
		"symbol":    trade.Symbol,
		"comment":   trade.Comment,
		"qty":       trade.Quantity,
		"signal_id": trade.SignalID,
	}).Debug("Creating new trade")

	now := r.now()
	trade.Status = model.TradeStatusOpen
	trade.ExecutedAt = now
	if trade.EntryPrice == nil && trade.Price != nil {
		entry := *trade.Price
		trade.EntryPrice = &entry
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(trade).Error; err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}

		position := model.CurrentPosition{
			Symbol:     trade.Symbol,
			ContractID: trade.ContractID,
			Direction:  model.PositionDirection(trade.Comment),
			Quantity:   trade.Quantity,
			EntryPrice: trade.EntryPrice,
			EntryTime:  now,
			SignalID:   trade.SignalID,
			TradeID:    trade.ID,
			LastUpdate: now,
		}

		// Single statement upsert keyed by the unique symbol index.
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"contract_id",
				"direction",
				"quantity",
				"entry_price",
				"entry_time",
				"signal_id",
				"trade_id",
				"last_update",
			}),
		}).Create(&position).Error
		if err != nil {
			return fmt.Errorf("upsert current position: %w", err)
		}

		return nil
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "LedgerRepository",
			"op":     "CreateTrade",
			"symbol": trade.Symbol,
		}).WithError(err).Error("Failed to create trade")

		return 0, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "LedgerRepository",
		"op":       "CreateTrade",
		"trade_id": trade.ID,
		"symbol":   trade.Symbol,
	}).Info("Trade created successfully")

	return trade.ID, nil
}

// CloseTrade marks the trade closed with its exit fields and drops the
// tracked position that references it. A missing position is not an error.
func (r *LedgerRepository) CloseTrade(
	ctx context.Context,
	tradeID uint,
	exitPrice, pnl, pnlDollars *float64,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":     "LedgerRepository",
		"op":       "CloseTrade",
		"trade_id": tradeID,
	}).Debug("Closing trade")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var trade model.Trade
		if err := tx.First(&trade, tradeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: id %d", ErrTradeNotFound, tradeID)
			}
			return fmt.Errorf("load trade: %w", err)
		}

		closedAt := r.now()
		if err := tx.Model(&trade).Updates(map[string]interface{}{
			"status":      model.TradeStatusClosed,
			"exit_price":  exitPrice,
			"pnl":         pnl,
			"pnl_dollars": pnlDollars,
			"closed_at":   closedAt,
		}).Error; err != nil {
			return fmt.Errorf("update trade: %w", err)
		}

		res := tx.Where("trade_id = ?", tradeID).Delete(&model.CurrentPosition{})
		if res.Error != nil {
			return fmt.Errorf("delete current position: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			logger.WithFields(map[string]interface{}{
				"repo":     "LedgerRepository",
				"op":       "CloseTrade",
				"trade_id": tradeID,
			}).Debug("No tracked position referenced the trade")
		}

		return nil
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "LedgerRepository",
			"op":       "CloseTrade",
			"trade_id": tradeID,
		}).WithError(err).Error("Failed to close trade")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "LedgerRepository",
		"op":       "CloseTrade",
		"trade_id": tradeID,
	}).Info("Trade closed successfully")

	return nil
}

// GetTrade fetches a single trade by its primary ID.
// Returns (nil, nil) if the trade is not found.
func (r *LedgerRepository) GetTrade(ctx context.Context, id uint) (*model.Trade, error) {
	var trade model.Trade

	err := r.db.WithContext(ctx).First(&trade, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "LedgerRepository",
			"op":   "GetTrade",
			"id":   id,
		}).WithError(err).Error("Failed to fetch trade by ID")

		return nil, err
	}

	return &trade, nil
}

// SearchTrades lists trades newest first with optional filters and pagination.
func (r *LedgerRepository) SearchTrades(
	ctx context.Context,
	options TradeSearchOptions,
) ([]model.Trade, error) {

	logger.WithFields(map[string]interface{}{
		"repo":   "LedgerRepository",
		"op":     "SearchTrades",
		"limit":  options.Limit,
		"offset": options.Offset,
	}).Debug("Searching trades")

	query := r.db.WithContext(ctx).Model(&model.Trade{})

	if options.Symbol != nil {
		query = query.Where("symbol = ?", *options.Symbol)
	}
	if options.Status != nil {
		query = query.Where("status = ?", *options.Status)
	}
	if options.ExecutedAfter != nil {
		query = query.Where("executed_at >= ?", *options.ExecutedAfter)
	}
	if options.ExecutedBefore != nil {
		query = query.Where("executed_at <= ?", *options.ExecutedBefore)
	}

	query = query.Order("executed_at DESC, id DESC")

	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var trades []model.Trade
	if err := query.Find(&trades).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "LedgerRepository",
			"op":   "SearchTrades",
		}).WithError(err).Error("Failed to search trades")

		return nil, err
	}

	return trades, nil
}

// GetCurrentPositions returns the tracked rows for symbol.
// The unique index keeps this at zero or one row.
func (r *LedgerRepository) GetCurrentPositions(
	ctx context.Context,
	symbol string,
) ([]model.CurrentPosition, error) {

	var positions []model.CurrentPosition
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("id ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "LedgerRepository",
			"op":     "GetCurrentPositions",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch current positions")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "LedgerRepository",
		"op":     "GetCurrentPositions",
		"symbol": symbol,
		"count":  len(positions),
	}).Debug("Current positions fetched")

	return positions, nil
}

// ListCurrentPositions returns every tracked position ordered by symbol.
func (r *LedgerRepository) ListCurrentPositions(ctx context.Context) ([]model.CurrentPosition, error) {
	var positions []model.CurrentPosition
	if err := r.db.WithContext(ctx).Order("symbol ASC").Find(&positions).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "LedgerRepository",
			"op":   "ListCurrentPositions",
		}).WithError(err).Error("Failed to list current positions")

		return nil, err
	}
	return positions, nil
}

// ---------------------------------------------------
// Signals
// ---------------------------------------------------

// UpsertSignal inserts the signal as executed, or refreshes the status and
// account lists of an existing row with the same signal id.
func (r *LedgerRepository) UpsertSignal(
	ctx context.Context,
	signal *model.Signal,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":      "LedgerRepository",
		"op":        "UpsertSignal",
		"signal_id": signal.SignalID,
		"executed":  len(signal.ExecutedAccounts),
		"failed":    len(signal.FailedAccounts),
	}).Debug("Upserting signal")

	signal.Status = model.SignalStatusExecuted
	if signal.ReceivedAt.IsZero() {
		signal.ReceivedAt = r.now()
	}
	if signal.ExecutedAccounts == nil {
		signal.ExecutedAccounts = []int64{}
	}
	if signal.FailedAccounts == nil {
		signal.FailedAccounts = []int64{}
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "signal_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "executed_accounts", "failed_accounts", "updated_at"}),
	}).Create(signal).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "LedgerRepository",
			"op":        "UpsertSignal",
			"signal_id": signal.SignalID,
		}).WithError(err).Error("Failed to upsert signal")

		return err
	}

	return nil
}

// GetSignal fetches a signal by its signal id.
// Returns (nil, nil) if the signal is not found.
func (r *LedgerRepository) GetSignal(ctx context.Context, signalID string) (*model.Signal, error) {
	var signal model.Signal

	err := r.db.WithContext(ctx).Where("signal_id = ?", signalID).First(&signal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":      "LedgerRepository",
				"op":        "GetSignal",
				"signal_id": signalID,
			}).Info("Signal not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":      "LedgerRepository",
			"op":        "GetSignal",
			"signal_id": signalID,
		}).WithError(err).Error("Failed to fetch signal")

		return nil, err
	}

	return &signal, nil
}
