package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/agriai/server/internal/models"
)

// historyWindow caps how many stored turns accompany a message to the model.
// The full transcript stays in Mongo; only the prompt is trimmed.
const historyWindow = 20

// titleMaxLen caps the auto-derived session title.
const titleMaxLen = 48

// ---- Contracts ----------------------------------------------------------------

// ChatRepository is the slice of persistence the chat flow needs.
type ChatRepository interface {
	Insert(ctx context.Context, s *models.ChatSession) error
	FindForUser(ctx context.Context, id, userID primitive.ObjectID) (models.ChatSession, error)
	ListSummaries(ctx context.Context, userID primitive.ObjectID) ([]models.ChatSessionSummary, error)
	AppendTurns(ctx context.Context, id, userID primitive.ObjectID, turns []models.ChatTurn, title string) error
	UpdateSettings(ctx context.Context, id, userID primitive.ObjectID, req models.UpdateSessionRequest) (models.ChatSession, error)
	Delete(ctx context.Context, id, userID primitive.ObjectID) error
}

// SessionCache holds hot sessions so each message does not re-read Mongo.
type SessionCache interface {
	Get(id string) (models.ChatSession, bool)
	Set(session models.ChatSession)
	Delete(id string)
}

// ChatModel generates one assistant reply given the session context.
type ChatModel interface {
	Chat(ctx context.Context, system string, history []models.ChatTurn, message string) (string, error)
}

// ---- Interface ----------------------------------------------------------------

// ChatService manages assistant conversations.
type ChatService interface {
	CreateSession(ctx context.Context, userID string, req models.CreateSessionRequest) (models.ChatSession, error)
	ListSessions(ctx context.Context, userID string) ([]models.ChatSessionSummary, error)
	GetSession(ctx context.Context, userID, id string) (models.ChatSession, error)
	UpdateSession(ctx context.Context, userID, id string, req models.UpdateSessionRequest) (models.ChatSession, error)
	DeleteSession(ctx context.Context, userID, id string) error
	SendMessage(ctx context.Context, userID, id, text string) (models.ChatReply, error)
}

// ---- Implementation -----------------------------------------------------------

type chatService struct {
	sessions ChatRepository
	cache    SessionCache
	model    ChatModel
	log      *zap.Logger
}

// NewChatService wires its dependencies.
func NewChatService(sessions ChatRepository, cache SessionCache, model ChatModel, log *zap.Logger) ChatService {
	return &chatService{sessions: sessions, cache: cache, model: model, log: log}
}

func (s *chatService) CreateSession(ctx context.Context, userID string, req models.CreateSessionRequest) (models.ChatSession, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.ChatSession{}, ErrNotFound
	}

	language := req.Language
	if language == "" {
		language = "en"
	}
	tone := req.Tone
	if tone == "" {
		tone = models.ToneFriendly
	}

	now := time.Now().UTC()
	session := models.ChatSession{
		UserID:    uid,
		Title:     "New conversation",
		Language:  language,
		Tone:      tone,
		Turns:     []models.ChatTurn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Insert(ctx, &session); err != nil {
		return models.ChatSession{}, fmt.Errorf("insert session: %w", err)
	}

	s.cache.Set(session)
	return session, nil
}

func (s *chatService) ListSessions(ctx context.Context, userID string) ([]models.ChatSessionSummary, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrNotFound
	}

	summaries, err := s.sessions.ListSummaries(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return summaries, nil
}

func (s *chatService) GetSession(ctx context.Context, userID, id string) (models.ChatSession, error) {
	return s.loadSession(ctx, userID, id)
}

func (s *chatService) UpdateSession(ctx context.Context, userID, id string, req models.UpdateSessionRequest) (models.ChatSession, error) {
	if req.Title == nil && req.Language == nil && req.Tone == nil {
		return models.ChatSession{}, fmt.Errorf("%w: no fields to update", ErrValidation)
	}

	uid, oid, err := parseOwnedID(userID, id)
	if err != nil {
		return models.ChatSession{}, err
	}

	session, err := s.sessions.UpdateSettings(ctx, oid, uid, req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ChatSession{}, ErrNotFound
		}
		return models.ChatSession{}, fmt.Errorf("update session: %w", err)
	}

	s.cache.Set(session)
	return session, nil
}

func (s *chatService) DeleteSession(ctx context.Context, userID, id string) error {
	uid, oid, err := parseOwnedID(userID, id)
	if err != nil {
		return err
	}

	if err := s.sessions.Delete(ctx, oid, uid); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("delete session: %w", err)
	}

	s.cache.Delete(id)
	return nil
}

// SendMessage runs one exchange: build the prompt from the session settings
// and trailing history, call the model, then persist both turns atomically.
// A model failure persists nothing, so the farmer can simply retry.
func (s *chatService) SendMessage(ctx context.Context, userID, id, text string) (models.ChatReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatReply{}, fmt.Errorf("%w: empty message", ErrValidation)
	}

	session, err := s.loadSession(ctx, userID, id)
	if err != nil {
		return models.ChatReply{}, err
	}

	history := session.Turns
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	reply, err := s.model.Chat(ctx, systemPreamble(session.Language, session.Tone), history, text)
	if err != nil {
		s.log.Warn("chat model failed", zap.String("session_id", id), zap.Error(err))
		return models.ChatReply{}, fmt.Errorf("%w: chat model failed", ErrUpstream)
	}

	now := time.Now().UTC()
	turns := []models.ChatTurn{
		{Role: models.RoleUser, Content: text, CreatedAt: now},
		{Role: models.RoleModel, Content: reply, CreatedAt: now},
	}

	title := ""
	if len(session.Turns) == 0 {
		title = deriveTitle(text)
	}

	if err := s.sessions.AppendTurns(ctx, session.ID, session.UserID, turns, title); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ChatReply{}, ErrNotFound
		}
		return models.ChatReply{}, fmt.Errorf("append turns: %w", err)
	}

	// Write through so the next message skips the Mongo read.
	session.Turns = append(session.Turns, turns...)
	session.UpdatedAt = now
	if title != "" {
		session.Title = title
	}
	s.cache.Set(session)

	return models.ChatReply{SessionID: session.ID.Hex(), Reply: reply, Title: session.Title}, nil
}

// loadSession prefers the cache and falls back to Mongo. Cached entries are
// re-checked against the caller so a session id can never cross users.
func (s *chatService) loadSession(ctx context.Context, userID, id string) (models.ChatSession, error) {
	uid, oid, err := parseOwnedID(userID, id)
	if err != nil {
		return models.ChatSession{}, err
	}

	if session, ok := s.cache.Get(id); ok && session.UserID == uid {
		return session, nil
	}

	session, err := s.sessions.FindForUser(ctx, oid, uid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ChatSession{}, ErrNotFound
		}
		return models.ChatSession{}, fmt.Errorf("find session: %w", err)
	}

	s.cache.Set(session)
	return session, nil
}

// systemPreamble builds the per-session instruction from language and tone.
func systemPreamble(language, tone string) string {
	var style string
	switch tone {
	case models.ToneExpert:
		style = "Answer as an agronomy expert: precise, technical and thorough."
	case models.ToneBrief:
		style = "Answer in at most three short sentences."
	default:
		style = "Answer in a warm, encouraging tone suited to smallholder farmers."
	}

	return fmt.Sprintf("You are AgriAI, a farming assistant for smallholder farmers. "+
		"Help with crops, soil, pests, livestock and weather planning. %s "+
		"Reply in the language with BCP-47 code %q. "+
		"If a question needs a local agronomist or a lab test, say so instead of guessing.",
		style, language)
}

// deriveTitle turns the first user message into a session title.
func deriveTitle(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	runes := []rune(title)
	if len(runes) > titleMaxLen {
		title = strings.TrimSpace(string(runes[:titleMaxLen]))
	}
	if title == "" {
		return "New conversation"
	}
	return title
}
