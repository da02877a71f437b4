package migrations

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PrepareCurrentPositions collapses duplicated current_positions rows so that
// AutoMigrate can add the unique index on symbol. The newest row per symbol wins.
// Older deployments enforced one row per symbol only in application code.
func PrepareCurrentPositions(db *gorm.DB) error {
	if db == nil || !db.Migrator().HasTable("current_positions") {
		return nil
	}

	res := db.Exec(`DELETE FROM current_positions WHERE id NOT IN (SELECT MAX(id) FROM current_positions GROUP BY symbol)`)
	if res.Error != nil {
		return fmt.Errorf("collapse duplicate current positions: %w", res.Error)
	}

	if res.RowsAffected > 0 {
		logrus.WithField("removed", res.RowsAffected).Warn("[migrations] removed duplicated current positions")
	}

	return nil
}
