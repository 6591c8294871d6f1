package model

import "time"

// Session is one named conversation thread owned by a user. PDFsUploaded is
// the durable signal that the reference documents were attached at least once
// in this session; it survives restarts while the in-process handle cache
// does not.
type Session struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Name          string    `gorm:"size:128;not null;uniqueIndex:uq_sessions_owner_name" json:"name"`
	OwnerEmail    string    `gorm:"size:128;not null;index;uniqueIndex:uq_sessions_owner_name" json:"owner_email"`
	PDFsUploaded  bool      `gorm:"column:pdfs_uploaded;not null;default:false" json:"pdfs_uploaded"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `gorm:"index" json:"last_updated_at"`
}
