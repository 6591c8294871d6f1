package repository

import (
	"fmt"

	"gorm.io/gorm"

	"transitchat/internal/model"
)

type TurnAuditRepository struct {
	db *gorm.DB
}

func NewTurnAuditRepository(db *gorm.DB) *TurnAuditRepository {
	return &TurnAuditRepository{db: db}
}

func (r *TurnAuditRepository) Create(audit *model.TurnAudit) error {
	if err := r.db.Create(audit).Error; err != nil {
		return fmt.Errorf("create turn audit failed: %w", err)
	}
	return nil
}
