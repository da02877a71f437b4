package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"signalrouter/src/auth"
	"signalrouter/src/model"
)

type exceptionRepository interface {
	Create(ctx context.Context, exception *model.Exception) error
}

// BuildSignalID derives the signal id from the alert and the receive time.
// Two identical alerts in the same millisecond share an id.
func BuildSignalID(symbol, direction, comment string, receivedAt time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%d", symbol, direction, comment, receivedAt.UnixMilli())
}

// ComputePnL returns the point P&L of closing a tracked position.
func ComputePnL(direction string, entryPrice, exitPrice float64) float64 {
	entry := decimal.NewFromFloat(entryPrice)
	exit := decimal.NewFromFloat(exitPrice)

	var pnl decimal.Decimal
	if direction == model.DirectionLong {
		pnl = exit.Sub(entry)
	} else {
		pnl = entry.Sub(exit)
	}
	return pnl.InexactFloat64()
}

// PnLDollars converts points to dollars. ok is false when no point value is known.
func PnLDollars(pnl, pointValue float64, quantity int) (float64, bool) {
	if pointValue <= 0 {
		return 0, false
	}
	if quantity <= 0 {
		quantity = 1
	}
	d := decimal.NewFromFloat(pnl).
		Mul(decimal.NewFromFloat(pointValue)).
		Mul(decimal.NewFromInt(int64(quantity))).
		Round(2)
	return d.InexactFloat64(), true
}

// NormalizeSymbol trims and upper-cases a chart symbol, e.g. " nq1! " -> "NQ1!".
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Capture records a system exception, logs it locally, and optionally
// persists it in the database.
func Capture(
	ctx context.Context,
	repo exceptionRepository,
	service string,
	module string,
	method string,
	level string,
	err error,
	contextData map[string]interface{},
) {

	if err == nil {
		return
	}

	var ctxJSON string
	if contextData != nil {
		if b, e := json.Marshal(contextData); e == nil {
			ctxJSON = string(b)
		}
	}

	exc := &model.Exception{
		Service:   service,
		Module:    module,
		Method:    method,
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		Level:     level,
		RequestID: auth.RequestIDFromContext(ctx),
		Context:   ctxJSON,
		CreatedAt: time.Now(),
	}

	// Local log
	logger.WithFields(map[string]interface{}{
		"service":    service,
		"module":     module,
		"method":     method,
		"level":      level,
		"request_id": exc.RequestID,
	}).WithError(err).Error("System exception captured")

	// Persist in database
	if repo != nil {
		if e := repo.Create(ctx, exc); e != nil {
			logger.WithError(e).Error("Failed to persist exception")
		}
	}
}
