package database

import (
	"fmt"
	"strings"
	"time"

	"signalrouter/src/database/migrations"
	"signalrouter/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

// Dialector picks the gorm driver for the configured backend.
// sqlite is meant for local runs and the CLI; production uses postgres.
func Dialector(config Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(config.Driver)) {
	case "", DriverPostgres:
		return postgres.Open(config.DatabaseURLMain), nil
	case DriverSQLite:
		return sqlite.Open(config.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", config.Driver)
	}
}

// InitMainDB initializes the main database connection and runs migrations.
// This should be called once at application startup (e.g. in main()).
func InitMainDB() error {
	config := GetConfig()

	dialector, err := Dialector(config)
	if err != nil {
		return err
	}

	db, err := gorm.Open(dialector,
		&gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.WithField("driver", config.Driver).Info("[database] MainDB connection established")

	if err := Migrate(MainDB); err != nil {
		return err
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}

// Migrate brings the ledger schema up to date on db.
func Migrate(db *gorm.DB) error {
	// Duplicate rows per symbol would make the unique index creation fail.
	if err := migrations.PrepareCurrentPositions(db); err != nil {
		return fmt.Errorf("failed to prepare current_positions: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Trade{},
		&model.CurrentPosition{},
		&model.Signal{},
		&model.Exception{},
		&migrations.DataMigration{},
	); err != nil {
		return fmt.Errorf("failed to run schema migrations: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations: %w", err)
	}

	return nil
}
