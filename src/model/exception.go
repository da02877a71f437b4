package model

import "time"

// Exception is an unexpected failure persisted for later inspection from the dashboard.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where the error happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "signal_router"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "controller"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "Route"

	Message   string `gorm:"type:text" json:"message"`
	Stack     string `gorm:"type:text" json:"stack"`
	Level     string `gorm:"size:20;index" json:"level"` // warn | error | fatal
	RequestID string `gorm:"size:64;index" json:"requestId,omitempty"`

	// Extra context stored as JSON text
	Context string `gorm:"type:text" json:"context,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

func (Exception) TableName() string {
	return "exceptions"
}
