package model

import (
	"encoding/json"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GroundingSummary records whether and how Google Search was used to answer
// a turn.
type GroundingSummary struct {
	SearchPerformed bool     `json:"search_performed"`
	QueriesUsed     []string `json:"queries_used"`
}

// Message is one half of a chat turn. Rows are immutable once created and
// ordered by Timestamp within a session.
type Message struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID     string    `gorm:"size:36;not null;index:idx_messages_session_ts" json:"session_id"`
	Role          string    `gorm:"size:16;not null" json:"role"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	Timestamp     time.Time `gorm:"not null;index:idx_messages_session_ts" json:"timestamp"`
	GroundingJSON string    `gorm:"type:text" json:"grounding_json,omitempty"`

	// Derived at load time from GroundingJSON; never stored.
	Grounding      *GroundingSummary `gorm:"-" json:"grounding,omitempty"`
	GroundingError string            `gorm:"-" json:"grounding_error,omitempty"`
}

// SetGrounding serializes the summary into GroundingJSON; nil clears it.
func (m *Message) SetGrounding(summary *GroundingSummary) error {
	if summary == nil {
		m.GroundingJSON = ""
		m.Grounding = nil
		return nil
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	m.GroundingJSON = string(payload)
	m.Grounding = summary
	return nil
}

// DecodeGrounding populates Grounding from GroundingJSON. A malformed
// payload marks the message instead of failing the session load.
func (m *Message) DecodeGrounding() {
	m.Grounding = nil
	m.GroundingError = ""
	if m.GroundingJSON == "" {
		return
	}
	var summary GroundingSummary
	if err := json.Unmarshal([]byte(m.GroundingJSON), &summary); err != nil {
		m.GroundingError = "malformed grounding metadata"
		return
	}
	m.Grounding = &summary
}
