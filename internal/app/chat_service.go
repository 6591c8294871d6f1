package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"transitchat/internal/ai"
	"transitchat/internal/model"
	"transitchat/internal/repository"
)

const defaultSessionName = "New Chat"

// systemInstruction fixes the assistant persona: a Ho Chi Minh City public
// transit assistant that prefers Google Search over fabrication when the
// reference documents have no answer.
const systemInstruction = "bạn là một trợ lý về giao thông công cộng khu vực nội thành thành phố hồ chí minh. " +
	"Nhiệm vụ của bạn là trả lời các thông tin về giao thông công cộng một cách chi tiết, " +
	"nếu thông tin liên quan cho câu hỏi không có thì hãy thực hiện google search, đừng tự tạo ra thông tin. " +
	"Nếu câu hỏi lạc đề, hãy nhấn mạnh lại vai trò của bạn và dẫn dắt người dùng hỏi những câu hỏi liên quan"

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID string, messages []model.Message) error
	DeleteHistory(ctx context.Context, sessionID string) error
	MarkDirty(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}

// DocumentResolver is the injected grounding-document dependency; see
// internal/cache for the process-lifetime implementation.
type DocumentResolver interface {
	Resolve(ctx context.Context, sessionID string) ([]ai.DocumentHandle, error)
	Invalidate(sessionID string)
}

type AuditPublisher interface {
	Publish(ctx context.Context, audit model.TurnAudit) error
}

// ChatService orchestrates sessions and chat turns: it assembles the wire
// request for each turn, applies the document-attachment policy, consumes
// the streamed response and persists the turn.
type ChatService struct {
	sessionRepo  *repository.SessionRepository
	messageRepo  *repository.MessageRepository
	userRepo     *repository.UserRepository
	historyCache HistoryCache
	documents    DocumentResolver
	gemini       ai.GeneratorSource
	publisher    AuditPublisher
	logger       *zap.Logger
}

func NewChatService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	userRepo *repository.UserRepository,
	historyCache HistoryCache,
	documents DocumentResolver,
	gemini ai.GeneratorSource,
	publisher AuditPublisher,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		userRepo:     userRepo,
		historyCache: historyCache,
		documents:    documents,
		gemini:       gemini,
		publisher:    publisher,
		logger:       logger,
	}
}

// CreateSession creates a named session, suffixing " (n)" until the name is
// unique for the owner.
func (s *ChatService) CreateSession(ownerEmail, name string) (*model.Session, error) {
	if ownerEmail == "" {
		return nil, ErrInvalidInput
	}

	base := strings.TrimSpace(name)
	if base == "" {
		base = defaultSessionName
	}

	candidate := base
	for suffix := 1; ; suffix++ {
		count, err := s.sessionRepo.CountByOwnerAndName(ownerEmail, candidate)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			break
		}
		candidate = fmt.Sprintf("%s (%d)", base, suffix)
	}

	now := time.Now()
	session := &model.Session{
		ID:            uuid.NewString(),
		Name:          candidate,
		OwnerEmail:    ownerEmail,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(ownerEmail string) ([]model.Session, error) {
	if ownerEmail == "" {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByOwner(ownerEmail)
}

// RenameSession updates the display name. Renaming to the current name is
// effectively a no-op on the name, but the timestamp still bumps.
func (s *ChatService) RenameSession(ownerEmail, sessionID, newName string) (*model.Session, error) {
	if ownerEmail == "" || sessionID == "" {
		return nil, ErrInvalidInput
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, ErrNameEmpty
	}

	session, err := s.sessionRepo.GetByIDAndOwner(sessionID, ownerEmail)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	now := time.Now()
	if err := s.sessionRepo.Rename(sessionID, ownerEmail, newName, now); err != nil {
		return nil, err
	}
	session.Name = newName
	session.LastUpdatedAt = now
	return session, nil
}

// DeleteSession removes the session, its messages (cascade) and any warm
// caches. Irreversible.
func (s *ChatService) DeleteSession(ownerEmail, sessionID string) error {
	if ownerEmail == "" || sessionID == "" {
		return ErrInvalidInput
	}

	session, err := s.sessionRepo.GetByIDAndOwner(sessionID, ownerEmail)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}

	if err := s.sessionRepo.DeleteByIDAndOwner(sessionID, ownerEmail); err != nil {
		return err
	}

	s.documents.Invalidate(sessionID)
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(context.Background(), sessionID)
	}
	return nil
}

// GetHistory loads the session transcript, redis cache first.
func (s *ChatService) GetHistory(ctx context.Context, ownerEmail, sessionID string) ([]model.Message, error) {
	if ownerEmail == "" || sessionID == "" {
		return nil, ErrInvalidInput
	}

	session, err := s.sessionRepo.GetByIDAndOwner(sessionID, ownerEmail)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.messageRepo.ListBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

type SendTurnInput struct {
	OwnerEmail string
	SessionID  string
	Content    string
}

type TurnResult struct {
	UserMessage      model.Message           `json:"user_message"`
	AssistantMessage model.Message           `json:"assistant_message"`
	Grounding        *model.GroundingSummary `json:"grounding,omitempty"`
	Attached         int                     `json:"attached_documents"`
}

// SendTurn runs one full chat turn:
//
//  1. map the persisted history to the wire role vocabulary,
//  2. resolve reference-document handles through the injected resolver
//     (upload on cache miss, including after a restart) and attach them to
//     the current turn; the durable pdfs_uploaded flag flips on the first
//     non-empty attachment and never flips back,
//  3. stream the model response, forwarding text deltas to onDelta,
//  4. persist user message, assistant message and timestamp bump as one
//     transaction.
//
// A remote failure never loses the turn: the assistant message becomes an
// inline error marker and is persisted like any other answer.
func (s *ChatService) SendTurn(ctx context.Context, input SendTurnInput, onDelta func(string) error) (*TurnResult, error) {
	if input.OwnerEmail == "" || input.SessionID == "" {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrMessageEmpty
	}

	session, err := s.sessionRepo.GetByIDAndOwner(input.SessionID, input.OwnerEmail)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	history, err := s.GetHistory(ctx, input.OwnerEmail, input.SessionID)
	if err != nil {
		return nil, err
	}

	attachments := s.resolveAttachments(ctx, session)

	generator, err := s.generatorFor(ctx, input.OwnerEmail)
	if err != nil {
		return nil, err
	}

	req := ai.GenerateRequest{
		SystemInstruction: systemInstruction,
		History:           mapHistory(history),
		UserText:          content,
		Attachments:       attachments,
	}

	started := time.Now()
	collector := ai.NewStreamCollector(onDelta)

	assistantText := ""
	var grounding *model.GroundingSummary
	if streamErr := generator.GenerateStream(ctx, req, collector.Collect); streamErr != nil {
		s.logger.Error("gemini generation failed",
			zap.String("session_id", input.SessionID),
			zap.Error(streamErr))
		assistantText = fmt.Sprintf("[Gemini error: %v]", streamErr)
	} else {
		assistantText = strings.TrimSpace(collector.Text())
		if assistantText == "" {
			assistantText = "The model returned an empty response."
		}
		grounding = collector.Grounding()
	}

	now := time.Now()
	userMsg := model.Message{
		ID:        uuid.NewString(),
		SessionID: input.SessionID,
		Role:      model.RoleUser,
		Content:   content,
		Timestamp: now,
	}
	assistantMsg := model.Message{
		ID:        uuid.NewString(),
		SessionID: input.SessionID,
		Role:      model.RoleAssistant,
		Content:   assistantText,
		Timestamp: now.Add(time.Millisecond),
	}
	if err := assistantMsg.SetGrounding(grounding); err != nil {
		s.logger.Warn("serialize grounding summary failed", zap.Error(err))
	}

	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, input.SessionID)
		_ = s.historyCache.DeleteHistory(ctx, input.SessionID)
	}
	if err := s.messageRepo.AppendTurn(&userMsg, &assistantMsg); err != nil {
		return nil, err
	}

	s.publishAudit(ctx, session, grounding, time.Since(started))

	return &TurnResult{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Grounding:        grounding,
		Attached:         len(attachments),
	}, nil
}

// resolveAttachments applies the attachment policy: every turn re-sends the
// session's document handles, with the resolver uploading on a cold cache.
// Any failure degrades to a text-only turn.
func (s *ChatService) resolveAttachments(ctx context.Context, session *model.Session) []ai.DocumentHandle {
	handles, err := s.documents.Resolve(ctx, session.ID)
	if err != nil {
		s.logger.Warn("document resolve failed, continuing without attachments",
			zap.String("session_id", session.ID),
			zap.Error(err))
		return nil
	}
	if len(handles) == 0 {
		s.logger.Warn("no reference documents attached this turn",
			zap.String("session_id", session.ID))
		return nil
	}

	if !session.PDFsUploaded {
		if err := s.sessionRepo.MarkPDFsUploaded(session.ID, time.Now()); err != nil {
			s.logger.Warn("mark pdfs uploaded failed",
				zap.String("session_id", session.ID),
				zap.Error(err))
		} else {
			session.PDFsUploaded = true
		}
	}
	return handles
}

func (s *ChatService) generatorFor(ctx context.Context, ownerEmail string) (ai.Generator, error) {
	apiKey := ""
	user, err := s.userRepo.GetByEmail(ownerEmail)
	if err != nil {
		s.logger.Warn("load user for api key failed", zap.Error(err))
	} else if user != nil {
		apiKey = user.APIKey
	}

	generator, err := s.gemini.ForKey(ctx, apiKey)
	if err != nil && apiKey != "" {
		// A stale stored key falls back to the server key.
		s.logger.Warn("per-user gemini client failed, using default",
			zap.String("email", ownerEmail),
			zap.Error(err))
		return s.gemini.ForKey(ctx, "")
	}
	return generator, err
}

func (s *ChatService) publishAudit(ctx context.Context, session *model.Session, grounding *model.GroundingSummary, latency time.Duration) {
	if s.publisher == nil {
		return
	}
	audit := model.TurnAudit{
		SessionID:  session.ID,
		OwnerEmail: session.OwnerEmail,
		LatencyMS:  latency.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if grounding != nil {
		audit.SearchPerformed = grounding.SearchPerformed
		audit.QueryCount = len(grounding.QueriesUsed)
	}
	if err := s.publisher.Publish(ctx, audit); err != nil {
		s.logger.Warn("publish turn audit failed", zap.Error(err))
	}
}

func mapHistory(messages []model.Message) []ai.Turn {
	turns := make([]ai.Turn, 0, len(messages))
	for _, msg := range messages {
		role := ai.WireRoleUser
		if msg.Role == model.RoleAssistant {
			role = ai.WireRoleModel
		}
		turns = append(turns, ai.Turn{Role: role, Text: msg.Content})
	}
	return turns
}
