package model

import "time"

const (
	SignalStatusPending  = "pending"
	SignalStatusExecuted = "executed"
	SignalStatusFailed   = "failed"
)

// Signal records the execution outcome of one inbound alert, keyed by SignalID.
type Signal struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	SignalID         string    `gorm:"size:200;not null;uniqueIndex" json:"signalId"`
	Direction        string    `gorm:"size:10;not null" json:"direction"`
	Comment          string    `gorm:"size:20;not null" json:"comment"`
	Symbol           string    `gorm:"size:50;not null;index" json:"symbol"`
	Timeframe        string    `gorm:"size:20" json:"timeframe"`
	TimeOfMessage    string    `gorm:"size:100" json:"timeOfMessage"`
	Price            *float64  `json:"price,omitempty"`
	Text             string    `gorm:"type:text" json:"text"`
	ReceivedAt       time.Time `gorm:"not null" json:"receivedAt"`
	Status           string    `gorm:"size:20;not null;default:pending;index" json:"status"`
	ExecutedAccounts []int64   `gorm:"serializer:json;type:text" json:"executedAccounts"`
	FailedAccounts   []int64   `gorm:"serializer:json;type:text" json:"failedAccounts"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (Signal) TableName() string {
	return "signals"
}
