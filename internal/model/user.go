package model

import "time"

// User is keyed by the email returned from the identity provider. APIKey is
// an optional per-user Gemini key; the login upsert must never overwrite it.
type User struct {
	Email     string    `gorm:"primaryKey;size:128" json:"email"`
	Name      string    `gorm:"size:128" json:"name"`
	Picture   string    `gorm:"size:512" json:"picture"`
	APIKey    string    `gorm:"size:256" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
