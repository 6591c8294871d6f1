package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitchat/internal/model"
)

func newSession(owner, name string) *model.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.Session{
		ID:            uuid.NewString(),
		Name:          name,
		OwnerEmail:    owner,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

func TestSessionListOrderedByActivity(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))

	older := newSession("an@example.com", "Lịch metro")
	older.LastUpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Create(older))

	newer := newSession("an@example.com", "Giá vé xe buýt")
	require.NoError(t, repo.Create(newer))

	foreign := newSession("binh@example.com", "Other user")
	require.NoError(t, repo.Create(foreign))

	sessions, err := repo.ListByOwner("an@example.com")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.ID, sessions[0].ID)
	assert.Equal(t, older.ID, sessions[1].ID)
}

func TestSessionOwnershipScoping(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	session := newSession("an@example.com", "Tuyến 86")
	require.NoError(t, repo.Create(session))

	got, err := repo.GetByIDAndOwner(session.ID, "binh@example.com")
	require.NoError(t, err)
	assert.Nil(t, got, "another user's session must look absent")

	got, err = repo.GetByIDAndOwner(session.ID, "an@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Tuyến 86", got.Name)
}

func TestSessionRenameBumpsActivity(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	session := newSession("an@example.com", "New Chat")
	session.LastUpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Create(session))

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.Rename(session.ID, "an@example.com", "Vé tháng", at))

	got, err := repo.GetByIDAndOwner(session.ID, "an@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Vé tháng", got.Name)
	assert.WithinDuration(t, at, got.LastUpdatedAt, time.Second)
}

func TestMarkPDFsUploadedIsSticky(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	session := newSession("an@example.com", "New Chat")
	require.NoError(t, repo.Create(session))
	assert.False(t, session.PDFsUploaded)

	require.NoError(t, repo.MarkPDFsUploaded(session.ID, time.Now().UTC()))
	require.NoError(t, repo.MarkPDFsUploaded(session.ID, time.Now().UTC()))

	got, err := repo.GetByIDAndOwner(session.ID, "an@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.PDFsUploaded)
}

func TestDeleteSessionCascadesMessages(t *testing.T) {
	db := newTestDB(t)
	sessionRepo := NewSessionRepository(db)
	messageRepo := NewMessageRepository(db)

	session := newSession("an@example.com", "New Chat")
	require.NoError(t, sessionRepo.Create(session))

	userMsg := &model.Message{
		ID: uuid.NewString(), SessionID: session.ID,
		Role: model.RoleUser, Content: "hi", Timestamp: time.Now().UTC(),
	}
	assistantMsg := &model.Message{
		ID: uuid.NewString(), SessionID: session.ID,
		Role: model.RoleAssistant, Content: "hello", Timestamp: time.Now().UTC().Add(time.Millisecond),
	}
	require.NoError(t, messageRepo.AppendTurn(userMsg, assistantMsg))

	require.NoError(t, sessionRepo.DeleteByIDAndOwner(session.ID, "an@example.com"))

	got, err := sessionRepo.GetByIDAndOwner(session.ID, "an@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	messages, err := messageRepo.ListBySessionID(session.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestCountByOwnerAndName(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	require.NoError(t, repo.Create(newSession("an@example.com", "New Chat")))

	count, err := repo.CountByOwnerAndName("an@example.com", "New Chat")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	count, err = repo.CountByOwnerAndName("an@example.com", "New Chat (1)")
	require.NoError(t, err)
	assert.Zero(t, count)
}
