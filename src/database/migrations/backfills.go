package migrations

import (
	"gorm.io/gorm"
)

// backfillTradeEntryPrice copies the alert price into entry_price for trades
// written before the entry price was tracked separately.
func backfillTradeEntryPrice(db *gorm.DB) error {
	return db.Exec(`UPDATE trades SET entry_price = price WHERE entry_price IS NULL AND price IS NOT NULL`).Error
}

// backfillSignalStatus marks signals stored without a status as executed,
// which is the only status the router ever writes.
func backfillSignalStatus(db *gorm.DB) error {
	return db.Exec(`UPDATE signals SET status = 'executed' WHERE status IS NULL OR status = ''`).Error
}
