package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"transitchat/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(session *model.Session) error {
	if err := r.db.Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListByOwner(ownerEmail string) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.Where("owner_email = ?", ownerEmail).Order("last_updated_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) GetByIDAndOwner(sessionID, ownerEmail string) (*model.Session, error) {
	var session model.Session
	if err := r.db.Where("id = ? AND owner_email = ?", sessionID, ownerEmail).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) CountByOwnerAndName(ownerEmail, name string) (int64, error) {
	var count int64
	if err := r.db.Model(&model.Session{}).Where("owner_email = ? AND name = ?", ownerEmail, name).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count sessions by name failed: %w", err)
	}
	return count, nil
}

func (r *SessionRepository) Rename(sessionID, ownerEmail, newName string, at time.Time) error {
	result := r.db.Model(&model.Session{}).
		Where("id = ? AND owner_email = ?", sessionID, ownerEmail).
		Updates(map[string]any{"name": newName, "last_updated_at": at})
	if result.Error != nil {
		return fmt.Errorf("rename session failed: %w", result.Error)
	}
	return nil
}

// MarkPDFsUploaded flips the durable attachment flag. The flag only ever
// moves false to true; session deletion is the sole way back.
func (r *SessionRepository) MarkPDFsUploaded(sessionID string, at time.Time) error {
	result := r.db.Model(&model.Session{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{"pdfs_uploaded": true, "last_updated_at": at})
	if result.Error != nil {
		return fmt.Errorf("mark pdfs uploaded failed: %w", result.Error)
	}
	return nil
}

// DeleteByIDAndOwner removes the session and all its messages in one
// transaction.
func (r *SessionRepository) DeleteByIDAndOwner(sessionID, ownerEmail string) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND owner_email = ?", sessionID, ownerEmail).Delete(&model.Session{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete session failed: %w", err)
	}
	return nil
}
