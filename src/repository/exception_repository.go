package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalrouter/src/database"
	"signalrouter/src/model"
)

// ExceptionRepository handles persistence of captured exceptions.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance using the main database.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Create persists a new exception in the database.
func (r *ExceptionRepository) Create(
	ctx context.Context,
	exc *model.Exception,
) error {

	logger.WithFields(map[string]interface{}{
		"service": exc.Service,
		"module":  exc.Module,
		"method":  exc.Method,
		"level":   exc.Level,
	}).Debug("Persisting exception")

	return r.db.WithContext(ctx).Create(exc).Error
}

// ListRecent returns the newest exceptions first.
func (r *ExceptionRepository) ListRecent(ctx context.Context, limit int) ([]model.Exception, error) {
	if limit <= 0 {
		limit = 50
	}

	var out []model.Exception
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExceptionRepository",
			"op":   "ListRecent",
		}).WithError(err).Error("Failed to list exceptions")

		return nil, err
	}

	return out, nil
}
