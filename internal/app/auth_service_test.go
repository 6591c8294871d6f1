package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"transitchat/internal/model"
	"transitchat/internal/repository"
)

type fakeKeyChecker struct {
	err error
}

func (f *fakeKeyChecker) Check(_ context.Context, _ string) error {
	return f.err
}

func newAuthFixture(t *testing.T, checker *fakeKeyChecker) *AuthService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}))
	require.NoError(t, db.Create(&model.User{Email: "an@example.com", Name: "An"}).Error)

	return NewAuthService(
		repository.NewUserRepository(db),
		GoogleOAuthConfig{
			ClientID:    "client-id-123",
			RedirectURL: "http://localhost:8080/api/v1/auth/google/callback",
		},
		checker,
		"secret",
		time.Hour,
		zap.NewNop(),
	)
}

func TestLoginURLCarriesState(t *testing.T) {
	service := newAuthFixture(t, &fakeKeyChecker{})
	url := service.LoginURL("state-abc")
	assert.Contains(t, url, "state=state-abc")
	assert.Contains(t, url, "client_id=client-id-123")
}

func TestSaveAPIKeyValidatesFirst(t *testing.T) {
	service := newAuthFixture(t, &fakeKeyChecker{})
	require.NoError(t, service.SaveAPIKey(context.Background(), "an@example.com", "good-key"))

	user, err := service.GetUser("an@example.com")
	require.NoError(t, err)
	assert.Equal(t, "good-key", user.APIKey)
}

func TestSaveAPIKeyRejectsBadKey(t *testing.T) {
	service := newAuthFixture(t, &fakeKeyChecker{err: errors.New("401 unauthorized")})
	err := service.SaveAPIKey(context.Background(), "an@example.com", "bad-key")
	assert.ErrorIs(t, err, ErrAPIKeyInvalid)

	user, getErr := service.GetUser("an@example.com")
	require.NoError(t, getErr)
	assert.Empty(t, user.APIKey, "rejected key must not be stored")
}

func TestClearAPIKeyIdempotent(t *testing.T) {
	service := newAuthFixture(t, &fakeKeyChecker{})
	require.NoError(t, service.SaveAPIKey(context.Background(), "an@example.com", "good-key"))
	require.NoError(t, service.ClearAPIKey("an@example.com"))
	require.NoError(t, service.ClearAPIKey("an@example.com"))

	user, err := service.GetUser("an@example.com")
	require.NoError(t, err)
	assert.Empty(t, user.APIKey)
}

func TestGetUserAbsent(t *testing.T) {
	service := newAuthFixture(t, &fakeKeyChecker{})
	_, err := service.GetUser("ghost@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestHandleCallbackEmptyCode(t *testing.T) {
	service := newAuthFixture(t, &fakeKeyChecker{})
	_, err := service.HandleCallback(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
