package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/agriai/server/internal/models"
)

type fakeChatRepo struct {
	sessions map[primitive.ObjectID]models.ChatSession
}

func newFakeChatRepo(sessions ...models.ChatSession) *fakeChatRepo {
	m := make(map[primitive.ObjectID]models.ChatSession, len(sessions))
	for _, s := range sessions {
		m[s.ID] = s
	}
	return &fakeChatRepo{sessions: m}
}

func (f *fakeChatRepo) Insert(_ context.Context, s *models.ChatSession) error {
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	f.sessions[s.ID] = *s
	return nil
}

func (f *fakeChatRepo) FindForUser(_ context.Context, id, userID primitive.ObjectID) (models.ChatSession, error) {
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID {
		return models.ChatSession{}, mongo.ErrNoDocuments
	}
	return s, nil
}

func (f *fakeChatRepo) ListSummaries(_ context.Context, userID primitive.ObjectID) ([]models.ChatSessionSummary, error) {
	var out []models.ChatSessionSummary
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, models.ChatSessionSummary{ID: s.ID, Title: s.Title, TurnCount: len(s.Turns)})
		}
	}
	return out, nil
}

func (f *fakeChatRepo) AppendTurns(_ context.Context, id, userID primitive.ObjectID, turns []models.ChatTurn, title string) error {
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID {
		return mongo.ErrNoDocuments
	}
	s.Turns = append(s.Turns, turns...)
	if title != "" {
		s.Title = title
	}
	s.UpdatedAt = time.Now().UTC()
	f.sessions[id] = s
	return nil
}

func (f *fakeChatRepo) UpdateSettings(_ context.Context, id, userID primitive.ObjectID, req models.UpdateSessionRequest) (models.ChatSession, error) {
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID {
		return models.ChatSession{}, mongo.ErrNoDocuments
	}
	if req.Title != nil {
		s.Title = *req.Title
	}
	if req.Language != nil {
		s.Language = *req.Language
	}
	if req.Tone != nil {
		s.Tone = *req.Tone
	}
	f.sessions[id] = s
	return s, nil
}

func (f *fakeChatRepo) Delete(_ context.Context, id, userID primitive.ObjectID) error {
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID {
		return mongo.ErrNoDocuments
	}
	delete(f.sessions, id)
	return nil
}

type fakeSessionCache struct {
	entries map[string]models.ChatSession
}

func newFakeSessionCache() *fakeSessionCache {
	return &fakeSessionCache{entries: make(map[string]models.ChatSession)}
}

func (f *fakeSessionCache) Get(id string) (models.ChatSession, bool) {
	s, ok := f.entries[id]
	return s, ok
}

func (f *fakeSessionCache) Set(session models.ChatSession) {
	f.entries[session.ID.Hex()] = session
}

func (f *fakeSessionCache) Delete(id string) {
	delete(f.entries, id)
}

type fakeChatModel struct {
	reply       string
	err         error
	calls       int
	lastSystem  string
	lastHistory []models.ChatTurn
	lastMessage string
}

func (f *fakeChatModel) Chat(_ context.Context, system string, history []models.ChatTurn, message string) (string, error) {
	f.calls++
	f.lastSystem = system
	f.lastHistory = history
	f.lastMessage = message
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestChatService(repo *fakeChatRepo, cache *fakeSessionCache, model *fakeChatModel) ChatService {
	return NewChatService(repo, cache, model, zap.NewNop())
}

func seedChatSession(turns int) models.ChatSession {
	session := models.ChatSession{
		ID:       primitive.NewObjectID(),
		UserID:   primitive.NewObjectID(),
		Title:    "Tomato questions",
		Language: "en",
		Tone:     models.ToneFriendly,
	}
	for i := 0; i < turns; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleModel
		}
		session.Turns = append(session.Turns, models.ChatTurn{
			Role: role, Content: fmt.Sprintf("turn %d", i),
		})
	}
	return session
}

func TestCreateSessionDefaults(t *testing.T) {
	repo := newFakeChatRepo()
	cache := newFakeSessionCache()
	svc := newTestChatService(repo, cache, &fakeChatModel{})

	session, err := svc.CreateSession(context.Background(), primitive.NewObjectID().Hex(), models.CreateSessionRequest{})

	require.NoError(t, err)
	assert.Equal(t, "en", session.Language)
	assert.Equal(t, models.ToneFriendly, session.Tone)
	assert.Equal(t, "New conversation", session.Title)
	_, cached := cache.Get(session.ID.Hex())
	assert.True(t, cached)
}

func TestSendMessagePersistsExchange(t *testing.T) {
	session := seedChatSession(0)
	repo := newFakeChatRepo(session)
	cache := newFakeSessionCache()
	model := &fakeChatModel{reply: "Mulch early and water at the roots."}
	svc := newTestChatService(repo, cache, model)

	reply, err := svc.SendMessage(context.Background(), session.UserID.Hex(), session.ID.Hex(), "  How do I keep soil moist?  ")

	require.NoError(t, err)
	assert.Equal(t, model.reply, reply.Reply)
	assert.Equal(t, "How do I keep soil moist?", reply.Title)
	assert.Equal(t, "How do I keep soil moist?", model.lastMessage)

	stored := repo.sessions[session.ID]
	require.Len(t, stored.Turns, 2)
	assert.Equal(t, models.RoleUser, stored.Turns[0].Role)
	assert.Equal(t, models.RoleModel, stored.Turns[1].Role)

	cached, ok := cache.Get(session.ID.Hex())
	require.True(t, ok)
	assert.Len(t, cached.Turns, 2)
}

func TestSendMessageKeepsExistingTitle(t *testing.T) {
	session := seedChatSession(2)
	repo := newFakeChatRepo(session)
	svc := newTestChatService(repo, newFakeSessionCache(), &fakeChatModel{reply: "ok"})

	reply, err := svc.SendMessage(context.Background(), session.UserID.Hex(), session.ID.Hex(), "And when do I harvest?")

	require.NoError(t, err)
	assert.Equal(t, "Tomato questions", reply.Title)
	assert.Equal(t, "Tomato questions", repo.sessions[session.ID].Title)
}

func TestSendMessageTrimsPromptHistory(t *testing.T) {
	session := seedChatSession(25)
	repo := newFakeChatRepo(session)
	model := &fakeChatModel{reply: "ok"}
	svc := newTestChatService(repo, newFakeSessionCache(), model)

	_, err := svc.SendMessage(context.Background(), session.UserID.Hex(), session.ID.Hex(), "next")

	require.NoError(t, err)
	require.Len(t, model.lastHistory, historyWindow)
	assert.Equal(t, "turn 5", model.lastHistory[0].Content)
	assert.Equal(t, "turn 24", model.lastHistory[len(model.lastHistory)-1].Content)
	// The stored transcript keeps everything.
	assert.Len(t, repo.sessions[session.ID].Turns, 27)
}

func TestSendMessageModelFailurePersistsNothing(t *testing.T) {
	session := seedChatSession(0)
	repo := newFakeChatRepo(session)
	model := &fakeChatModel{err: errors.New("resource exhausted")}
	svc := newTestChatService(repo, newFakeSessionCache(), model)

	_, err := svc.SendMessage(context.Background(), session.UserID.Hex(), session.ID.Hex(), "hello")

	assert.ErrorIs(t, err, ErrUpstream)
	assert.Empty(t, repo.sessions[session.ID].Turns)
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	session := seedChatSession(0)
	model := &fakeChatModel{}
	svc := newTestChatService(newFakeChatRepo(session), newFakeSessionCache(), model)

	_, err := svc.SendMessage(context.Background(), session.UserID.Hex(), session.ID.Hex(), "   ")

	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, model.calls)
}

func TestCachedSessionNeverCrossesUsers(t *testing.T) {
	session := seedChatSession(1)
	repo := newFakeChatRepo(session)
	cache := newFakeSessionCache()
	cache.Set(session)
	svc := newTestChatService(repo, cache, &fakeChatModel{})

	_, err := svc.GetSession(context.Background(), primitive.NewObjectID().Hex(), session.ID.Hex())

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendMessageUsesSessionSettings(t *testing.T) {
	session := seedChatSession(0)
	session.Language = "sw"
	session.Tone = models.ToneBrief
	repo := newFakeChatRepo(session)
	model := &fakeChatModel{reply: "sawa"}
	svc := newTestChatService(repo, newFakeSessionCache(), model)

	_, err := svc.SendMessage(context.Background(), session.UserID.Hex(), session.ID.Hex(), "habari")

	require.NoError(t, err)
	assert.Contains(t, model.lastSystem, `"sw"`)
	assert.Contains(t, model.lastSystem, "three short sentences")
}

func TestDeleteSessionEvictsCache(t *testing.T) {
	session := seedChatSession(0)
	repo := newFakeChatRepo(session)
	cache := newFakeSessionCache()
	cache.Set(session)
	svc := newTestChatService(repo, cache, &fakeChatModel{})

	require.NoError(t, svc.DeleteSession(context.Background(), session.UserID.Hex(), session.ID.Hex()))

	_, ok := cache.Get(session.ID.Hex())
	assert.False(t, ok)
	assert.Empty(t, repo.sessions)
}
