package model

import "time"

// TurnAudit is a per-turn telemetry row persisted asynchronously by the
// audit worker. Losing one is acceptable; it is never read on the chat path.
type TurnAudit struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	SessionID       string    `gorm:"size:36;not null;index" json:"session_id"`
	OwnerEmail      string    `gorm:"size:128;not null" json:"owner_email"`
	SearchPerformed bool      `gorm:"not null" json:"search_performed"`
	QueryCount      int       `gorm:"not null" json:"query_count"`
	LatencyMS       int64     `gorm:"not null" json:"latency_ms"`
	CreatedAt       time.Time `json:"created_at"`
}
