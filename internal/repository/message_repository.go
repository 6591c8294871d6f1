package repository

import (
	"fmt"

	"gorm.io/gorm"

	"transitchat/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// AppendTurn persists a user message, the resulting assistant message and
// the session timestamp bump as one transaction, so a crash can never leave
// an orphaned user message without a recorded answer.
func (r *MessageRepository) AppendTurn(userMsg, assistantMsg *model.Message) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(userMsg).Error; err != nil {
			return err
		}
		if err := tx.Create(assistantMsg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Session{}).
			Where("id = ?", userMsg.SessionID).
			Update("last_updated_at", assistantMsg.Timestamp).Error
	})
	if err != nil {
		return fmt.Errorf("append turn failed: %w", err)
	}
	return nil
}

// ListBySessionID returns the session transcript ordered by timestamp, with
// grounding metadata decoded. Malformed metadata marks the message and the
// load continues.
func (r *MessageRepository) ListBySessionID(sessionID string) ([]model.Message, error) {
	var messages []model.Message
	if err := r.db.Where("session_id = ?", sessionID).Order("timestamp ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	for i := range messages {
		messages[i].DecodeGrounding()
	}
	return messages, nil
}

func (r *MessageRepository) DeleteBySessionID(sessionID string) error {
	if err := r.db.Where("session_id = ?", sessionID).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("delete messages failed: %w", err)
	}
	return nil
}
