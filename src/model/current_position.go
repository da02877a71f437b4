package model

import "time"

// CurrentPosition is the single tracked open position per symbol used for P&L.
// It is independent from the broker's own position records.
type CurrentPosition struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Symbol     string    `gorm:"size:50;not null;uniqueIndex" json:"symbol"`
	ContractID string    `gorm:"size:100;not null" json:"contractId"`
	Direction  string    `gorm:"size:10;not null" json:"direction"` // long | short
	Quantity   int       `gorm:"not null" json:"quantity"`
	EntryPrice *float64  `json:"entryPrice,omitempty"`
	EntryTime  time.Time `gorm:"not null" json:"entryTime"`
	SignalID   string    `gorm:"size:200;index" json:"signalId"`
	TradeID    uint      `gorm:"not null;index" json:"tradeId"`
	LastUpdate time.Time `gorm:"not null" json:"lastUpdate"`
}

func (CurrentPosition) TableName() string {
	return "current_positions"
}
