package model

import (
	"strings"
	"time"
)

const (
	TradeStatusOpen      = "open"
	TradeStatusClosed    = "closed"
	TradeStatusCancelled = "cancelled"
)

const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// Trade is the ledger row written once per executed entry signal.
// Every account that received the order shares the same row.
type Trade struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Direction     string     `gorm:"size:10;not null" json:"direction"` // buy | sell
	Comment       string     `gorm:"size:20;not null" json:"comment"`   // go_long | exit_long | go_short | exit_short
	Symbol        string     `gorm:"size:50;not null;index" json:"symbol"`
	ContractID    string     `gorm:"size:100;not null" json:"contractId"`
	Timeframe     string     `gorm:"size:20" json:"timeframe"`
	TimeOfMessage string     `gorm:"size:100" json:"timeOfMessage"`
	Text          string     `gorm:"type:text" json:"text"`
	Quantity      int        `gorm:"not null" json:"quantity"`
	SignalID      string     `gorm:"size:200;index" json:"signalId"`
	Price         *float64   `json:"price,omitempty"`
	EntryPrice    *float64   `json:"entryPrice,omitempty"`
	ExitPrice     *float64   `json:"exitPrice,omitempty"`
	Pnl           *float64   `json:"pnl,omitempty"`        // points
	PnlDollars    *float64   `json:"pnlDollars,omitempty"` // points * point value * quantity
	Status        string     `gorm:"size:20;not null;default:open;index" json:"status"`
	ExecutedAt    time.Time  `gorm:"not null" json:"executedAt"`
	ClosedAt      *time.Time `json:"closedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (Trade) TableName() string {
	return "trades"
}

// PositionDirection derives the tracked side from a signal comment.
func PositionDirection(comment string) string {
	if strings.Contains(strings.ToLower(comment), "long") {
		return DirectionLong
	}
	return DirectionShort
}
