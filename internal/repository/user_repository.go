package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"transitchat/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by email failed: %w", err)
	}
	return &user, nil
}

// UpsertFromLogin creates the user on first login, or refreshes name and
// picture on a repeat login. The stored API key is never touched here.
func (r *UserRepository) UpsertFromLogin(user *model.User) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing model.User
		err := tx.Where("email = ?", user.Email).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(user).Error
		}
		if err != nil {
			return err
		}
		user.APIKey = existing.APIKey
		user.CreatedAt = existing.CreatedAt
		return tx.Model(&model.User{}).
			Where("email = ?", user.Email).
			Updates(map[string]any{"name": user.Name, "picture": user.Picture}).Error
	})
	if err != nil {
		return fmt.Errorf("upsert user failed: %w", err)
	}
	return nil
}

// SetAPIKey stores (or clears, with an empty value) the user's Gemini key.
// MySQL reports zero affected rows when the value is unchanged, so absence is
// checked explicitly rather than inferred from RowsAffected.
func (r *UserRepository) SetAPIKey(email, apiKey string) error {
	var count int64
	if err := r.db.Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return fmt.Errorf("set api key failed: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("set api key failed: user %s not found", email)
	}
	if err := r.db.Model(&model.User{}).Where("email = ?", email).Update("api_key", apiKey).Error; err != nil {
		return fmt.Errorf("set api key failed: %w", err)
	}
	return nil
}
