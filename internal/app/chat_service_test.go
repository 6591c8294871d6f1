package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"transitchat/internal/ai"
	"transitchat/internal/model"
	"transitchat/internal/repository"
)

type fakeResolver struct {
	handles     []ai.DocumentHandle
	err         error
	resolves    int
	invalidated []string
}

func (f *fakeResolver) Resolve(_ context.Context, _ string) ([]ai.DocumentHandle, error) {
	f.resolves++
	return f.handles, f.err
}

func (f *fakeResolver) Invalidate(sessionID string) {
	f.invalidated = append(f.invalidated, sessionID)
}

type fakeGenerator struct {
	events  []ai.StreamEvent
	err     error
	lastReq ai.GenerateRequest
}

func (f *fakeGenerator) GenerateStream(_ context.Context, req ai.GenerateRequest, emit func(ai.StreamEvent) error) error {
	f.lastReq = req
	if f.err != nil {
		return f.err
	}
	for _, event := range f.events {
		if err := emit(event); err != nil {
			return err
		}
	}
	return nil
}

type fakeSource struct {
	generator *fakeGenerator
	keys      []string
	errForKey map[string]error
}

func (f *fakeSource) ForKey(_ context.Context, apiKey string) (ai.Generator, error) {
	f.keys = append(f.keys, apiKey)
	if err, ok := f.errForKey[apiKey]; ok {
		return nil, err
	}
	return f.generator, nil
}

type fakePublisher struct {
	audits []model.TurnAudit
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, audit model.TurnAudit) error {
	f.audits = append(f.audits, audit)
	return f.err
}

type chatFixture struct {
	service   *ChatService
	db        *gorm.DB
	resolver  *fakeResolver
	generator *fakeGenerator
	source    *fakeSource
	publisher *fakePublisher
}

func threeHandles() []ai.DocumentHandle {
	return []ai.DocumentHandle{
		{Name: "routes.pdf", MIMEType: "application/pdf", URI: "files/routes"},
		{Name: "fares.pdf", MIMEType: "application/pdf", URI: "files/fares"},
		{Name: "map.pdf", MIMEType: "application/pdf", URI: "files/map"},
	}
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Session{}, &model.Message{}, &model.TurnAudit{}))

	require.NoError(t, db.Create(&model.User{Email: "an@example.com", Name: "An"}).Error)

	resolver := &fakeResolver{handles: threeHandles()}
	generator := &fakeGenerator{events: []ai.StreamEvent{
		{Kind: ai.EventTextDelta, Text: "Tuyến 86 "},
		{Kind: ai.EventTextDelta, Text: "chạy từ 5h."},
	}}
	source := &fakeSource{generator: generator}
	publisher := &fakePublisher{}

	service := NewChatService(
		repository.NewSessionRepository(db),
		repository.NewMessageRepository(db),
		repository.NewUserRepository(db),
		nil,
		resolver,
		source,
		publisher,
		zap.NewNop(),
	)
	return &chatFixture{
		service:   service,
		db:        db,
		resolver:  resolver,
		generator: generator,
		source:    source,
		publisher: publisher,
	}
}

func TestCreateSessionDeduplicatesNames(t *testing.T) {
	f := newChatFixture(t)

	first, err := f.service.CreateSession("an@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "New Chat", first.Name)
	assert.False(t, first.PDFsUploaded)

	second, err := f.service.CreateSession("an@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "New Chat (1)", second.Name)

	third, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)
	assert.Equal(t, "New Chat (2)", third.Name)
}

func TestRenameSessionValidation(t *testing.T) {
	f := newChatFixture(t)
	session, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)

	_, err = f.service.RenameSession("an@example.com", session.ID, "   ")
	assert.ErrorIs(t, err, ErrNameEmpty)

	_, err = f.service.RenameSession("an@example.com", "missing-id", "Vé tháng")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	renamed, err := f.service.RenameSession("an@example.com", session.ID, "Vé tháng")
	require.NoError(t, err)
	assert.Equal(t, "Vé tháng", renamed.Name)
}

func TestDeleteSessionInvalidatesDocuments(t *testing.T) {
	f := newChatFixture(t)
	session, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteSession("an@example.com", session.ID))
	assert.Equal(t, []string{session.ID}, f.resolver.invalidated)

	err = f.service.DeleteSession("an@example.com", session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSendTurnFirstTurnAttachesAndFlipsFlag(t *testing.T) {
	f := newChatFixture(t)
	session, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)

	var deltas []string
	result, err := f.service.SendTurn(context.Background(), SendTurnInput{
		OwnerEmail: "an@example.com",
		SessionID:  session.ID,
		Content:    "Tuyến 86 chạy mấy giờ?",
	}, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Attached)
	assert.Equal(t, "Tuyến 86 chạy từ 5h.", result.AssistantMessage.Content)
	assert.Equal(t, []string{"Tuyến 86 ", "chạy từ 5h."}, deltas)

	assert.Len(t, f.generator.lastReq.Attachments, 3)
	assert.Empty(t, f.generator.lastReq.History)
	assert.NotEmpty(t, f.generator.lastReq.SystemInstruction)
	assert.Equal(t, "Tuyến 86 chạy mấy giờ?", f.generator.lastReq.UserText)

	var stored model.Session
	require.NoError(t, f.db.First(&stored, "id = ?", session.ID).Error)
	assert.True(t, stored.PDFsUploaded)

	history, err := f.service.GetHistory(context.Background(), "an@example.com", session.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
}

func TestSendTurnSecondTurnCarriesHistory(t *testing.T) {
	f := newChatFixture(t)
	session, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)

	_, err = f.service.SendTurn(context.Background(), SendTurnInput{
		OwnerEmail: "an@example.com", SessionID: session.ID, Content: "Tuyến 86?",
	}, nil)
	require.NoError(t, err)

	result, err := f.service.SendTurn(context.Background(), SendTurnInput{
		OwnerEmail: "an@example.com", SessionID: session.ID, Content: "Còn tuyến 50?",
	}, nil)
	require.NoError(t, err)

	require.Len(t, f.generator.lastReq.History, 2)
	assert.Equal(t, ai.WireRoleUser, f.generator.lastReq.History[0].Role)
	assert.Equal(t, ai.WireRoleModel, f.generator.lastReq.History[1].Role)
	assert.Equal(t, 3, result.Attached, "handles attach on every turn")
	assert.Equal(t, 2, f.resolver.resolves)
}

func TestSendTurnWithoutDocumentsStillAnswers(t *testing.T) {
	f := newChatFixture(t)
	f.resolver.handles = nil
	session, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)

	result, err := f.service.SendTurn(context.Background(), SendTurnInput{
		OwnerEmail: "an@example.com", SessionID: session.ID, Content: "hi",
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Attached)

	var stored model.Session
	require.NoError(t, f.db.First(&stored, "id = ?", session.ID).Error)
	assert.False(t, stored.PDFsUploaded, "flag only flips on a non-empty attachment")
}

func TestSendTurnResolverErrorDegradesToTextOnly(t *testing.T) {
	f := newChatFixture(t)
	f.resolver.err = errors.New("upload endpoint down")
	session, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)

	result, err := f.service.SendTurn(context.Background(), SendTurnInput{
		OwnerEmail: "an@example.com", SessionID: session.ID, Content: "hi",
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Attached)
	assert.Equal(t, "Tuyến 86 chạy từ 5h.", result.AssistantMessage.Content)
}

func TestSendTurnStreamFailurePersistsErrorMarker(t *testing.T) {
	f := newChatFixture(t)
	f.generator.err = errors.New("503 service unavailable")
	session, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)

	result, err := f.service.SendTurn(context.Background(), SendTurnInput{
		OwnerEmail: "an@example.com", SessionID: session.ID, Content: "hi",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "[Gemini error: 503 service unavailable]", result.AssistantMessage.Content)
	assert.Nil(t, result.Grounding)

	history, err := f.service.GetHistory(context.Background(), "an@example.com", session.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "[Gemini error: 503 service unavailable]", history[1].Content)
	assert.Nil(t, history[1].Grounding)
}

func TestSendTurnEmptyResponsePlaceholder(t *testing.T) {
	f := newChatFixture(t)
	f.generator.events = nil
	session, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)

	result, err := f.service.SendTurn(context.Background(), SendTurnInput{
		OwnerEmail: "an@example.com", SessionID: session.ID, Content: "hi",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "The model returned an empty response.", result.AssistantMessage.Content)
}

func TestSendTurnGroundingPersistsAcrossReload(t *testing.T) {
	f := newChatFixture(t)
	f.generator.events = []ai.StreamEvent{
		{Kind: ai.EventToolCall, Tool: ai.ToolCall{
			Name: "google_search",
			Args: map[string]any{"query": "xe buýt 86"},
		}},
		{Kind: ai.EventTextDelta, Text: "Tuyến 86 chạy từ 5h."},
	}
	session, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)

	result, err := f.service.SendTurn(context.Background(), SendTurnInput{
		OwnerEmail: "an@example.com", SessionID: session.ID, Content: "Tuyến 86?",
	}, nil)
	require.NoError(t, err)

	require.NotNil(t, result.Grounding)
	assert.True(t, result.Grounding.SearchPerformed)
	assert.Equal(t, []string{"xe buýt 86"}, result.Grounding.QueriesUsed)

	history, err := f.service.GetHistory(context.Background(), "an@example.com", session.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.NotNil(t, history[1].Grounding)
	assert.True(t, history[1].Grounding.SearchPerformed)
	assert.Equal(t, []string{"xe buýt 86"}, history[1].Grounding.QueriesUsed)
}

func TestSendTurnUsesStoredUserKey(t *testing.T) {
	f := newChatFixture(t)
	require.NoError(t, f.db.Model(&model.User{}).
		Where("email = ?", "an@example.com").
		Update("api_key", "user-key-123").Error)
	session, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)

	_, err = f.service.SendTurn(context.Background(), SendTurnInput{
		OwnerEmail: "an@example.com", SessionID: session.ID, Content: "hi",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-key-123"}, f.source.keys)
}

func TestSendTurnStaleUserKeyFallsBack(t *testing.T) {
	f := newChatFixture(t)
	require.NoError(t, f.db.Model(&model.User{}).
		Where("email = ?", "an@example.com").
		Update("api_key", "revoked-key").Error)
	f.source.errForKey = map[string]error{"revoked-key": errors.New("401 unauthorized")}
	session, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)

	_, err = f.service.SendTurn(context.Background(), SendTurnInput{
		OwnerEmail: "an@example.com", SessionID: session.ID, Content: "hi",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"revoked-key", ""}, f.source.keys)
}

func TestSendTurnPublishesAudit(t *testing.T) {
	f := newChatFixture(t)
	f.generator.events = []ai.StreamEvent{
		{Kind: ai.EventToolCall, Tool: ai.ToolCall{
			Name: "google_search",
			Args: map[string]any{"query": "metro line 1"},
		}},
		{Kind: ai.EventTextDelta, Text: "Metro line 1 runs daily."},
	}
	session, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)

	_, err = f.service.SendTurn(context.Background(), SendTurnInput{
		OwnerEmail: "an@example.com", SessionID: session.ID, Content: "metro?",
	}, nil)
	require.NoError(t, err)

	require.Len(t, f.publisher.audits, 1)
	audit := f.publisher.audits[0]
	assert.Equal(t, session.ID, audit.SessionID)
	assert.Equal(t, "an@example.com", audit.OwnerEmail)
	assert.True(t, audit.SearchPerformed)
	assert.Equal(t, 1, audit.QueryCount)
}

func TestSendTurnAuditFailureDoesNotFailTurn(t *testing.T) {
	f := newChatFixture(t)
	f.publisher.err = errors.New("broker down")
	session, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)

	_, err = f.service.SendTurn(context.Background(), SendTurnInput{
		OwnerEmail: "an@example.com", SessionID: session.ID, Content: "hi",
	}, nil)
	assert.NoError(t, err)
}

func TestSendTurnValidation(t *testing.T) {
	f := newChatFixture(t)
	session, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)

	_, err = f.service.SendTurn(context.Background(), SendTurnInput{
		OwnerEmail: "an@example.com", SessionID: session.ID, Content: "   ",
	}, nil)
	assert.ErrorIs(t, err, ErrMessageEmpty)

	_, err = f.service.SendTurn(context.Background(), SendTurnInput{
		OwnerEmail: "binh@example.com", SessionID: session.ID, Content: "hi",
	}, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSendTurnAssistantAfterUser(t *testing.T) {
	f := newChatFixture(t)
	session, err := f.service.CreateSession("an@example.com", "New Chat")
	require.NoError(t, err)

	result, err := f.service.SendTurn(context.Background(), SendTurnInput{
		OwnerEmail: "an@example.com", SessionID: session.ID, Content: "hi",
	}, nil)
	require.NoError(t, err)
	assert.True(t, result.AssistantMessage.Timestamp.After(result.UserMessage.Timestamp))
}
