package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/agriai/server/internal/models"
)

// ---- Shared fakes --------------------------------------------------------------

type fakeAnalysisRepo struct {
	mu      sync.Mutex
	records map[primitive.ObjectID]models.Analysis
	findErr error
}

func newFakeAnalysisRepo(recs ...models.Analysis) *fakeAnalysisRepo {
	m := make(map[primitive.ObjectID]models.Analysis, len(recs))
	for _, r := range recs {
		m[r.ID] = r
	}
	return &fakeAnalysisRepo{records: m}
}

func (f *fakeAnalysisRepo) get(id primitive.ObjectID) models.Analysis {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[id]
}

func (f *fakeAnalysisRepo) Insert(_ context.Context, a *models.Analysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	f.records[a.ID] = *a
	return nil
}

func (f *fakeAnalysisRepo) FindByID(_ context.Context, id primitive.ObjectID) (models.Analysis, error) {
	if f.findErr != nil {
		return models.Analysis{}, f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return models.Analysis{}, mongo.ErrNoDocuments
	}
	return rec, nil
}

func (f *fakeAnalysisRepo) FindForUser(_ context.Context, id, userID primitive.ObjectID) (models.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.UserID != userID {
		return models.Analysis{}, mongo.ErrNoDocuments
	}
	return rec, nil
}

func (f *fakeAnalysisRepo) ListByUser(_ context.Context, userID primitive.ObjectID, _, _ int) ([]models.Analysis, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Analysis
	for _, rec := range f.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeAnalysisRepo) Delete(_ context.Context, id, userID primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.UserID != userID {
		return mongo.ErrNoDocuments
	}
	delete(f.records, id)
	return nil
}

func (f *fakeAnalysisRepo) MarkProcessing(_ context.Context, id primitive.ObjectID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.Status != models.AnalysisPending {
		return false, nil
	}
	rec.Status = models.AnalysisProcessing
	f.records[id] = rec
	return true, nil
}

func (f *fakeAnalysisRepo) MarkCompleted(_ context.Context, id primitive.ObjectID, preds []models.Prediction, advice string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.Status != models.AnalysisProcessing {
		return mongo.ErrNoDocuments
	}
	rec.Status = models.AnalysisCompleted
	rec.Predictions = preds
	rec.Advice = advice
	f.records[id] = rec
	return nil
}

func (f *fakeAnalysisRepo) MarkFailed(_ context.Context, id primitive.ObjectID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	rec.Status = models.AnalysisFailed
	rec.Error = reason
	f.records[id] = rec
	return nil
}

type fakeStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	uploadErr   error
	downloadErr error
	deleted     []string
}

func (f *fakeStore) Upload(_ context.Context, key string, data []byte, _ string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[key] = data
	return nil
}

func (f *fakeStore) Download(_ context.Context, key string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key], nil
}

func (f *fakeStore) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://cdn.test/" + key, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	delete(f.objects, key)
	return nil
}

type fakeClassifier struct {
	preds []models.Prediction
	err   error
	calls int
}

func (f *fakeClassifier) Classify(context.Context, []byte, string) ([]models.Prediction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.preds, nil
}

type fakeAdvisor struct {
	advice string
	err    error
}

func (f *fakeAdvisor) GenerateAdvice(context.Context, string, string) (string, error) {
	return f.advice, f.err
}

// ---- Helpers -------------------------------------------------------------------

func seedAnalysis(status string) (models.Analysis, *fakeAnalysisRepo) {
	rec := models.Analysis{
		ID:          primitive.NewObjectID(),
		UserID:      primitive.NewObjectID(),
		Crop:        "maize",
		ImageKey:    "analyses/leaf.jpg",
		ContentType: "image/jpeg",
		Status:      status,
	}
	return rec, newFakeAnalysisRepo(rec)
}

func jobMessage(t *testing.T, id string) *message.Message {
	t.Helper()
	payload, err := json.Marshal(AnalysisJob{AnalysisID: id})
	require.NoError(t, err)
	return message.NewMessage(watermill.NewUUID(), payload)
}

func assertAcked(t *testing.T, msg *message.Message) {
	t.Helper()
	select {
	case <-msg.Acked():
	default:
		t.Fatal("message not acked")
	}
}

func assertNacked(t *testing.T, msg *message.Message) {
	t.Helper()
	select {
	case <-msg.Nacked():
	default:
		t.Fatal("message not nacked")
	}
}

func newTestWorker(repo *fakeAnalysisRepo, store *fakeStore, cls *fakeClassifier, adv *fakeAdvisor) *AnalysisWorker {
	return NewAnalysisWorker(nil, TopicAnalysisJobs, repo, store, cls, adv, zap.NewNop())
}

// ---- Tests ---------------------------------------------------------------------

func TestWorkerCompletesAnalysis(t *testing.T) {
	rec, repo := seedAnalysis(models.AnalysisPending)
	store := &fakeStore{objects: map[string][]byte{rec.ImageKey: []byte("jpeg bytes")}}
	cls := &fakeClassifier{preds: []models.Prediction{
		{Label: "maize_leaf_blight", Confidence: 0.91},
		{Label: "healthy", Confidence: 0.06},
	}}
	adv := &fakeAdvisor{advice: "Remove affected leaves and rotate crops next season."}
	w := newTestWorker(repo, store, cls, adv)

	msg := jobMessage(t, rec.ID.Hex())
	w.handle(context.Background(), msg)

	assertAcked(t, msg)
	got := repo.get(rec.ID)
	assert.Equal(t, models.AnalysisCompleted, got.Status)
	require.Len(t, got.Predictions, 2)
	assert.Equal(t, "maize_leaf_blight", got.Predictions[0].Label)
	assert.Equal(t, adv.advice, got.Advice)
}

func TestWorkerRetriesOnceThenFails(t *testing.T) {
	rec, repo := seedAnalysis(models.AnalysisPending)
	store := &fakeStore{downloadErr: errors.New("bucket unreachable")}
	w := newTestWorker(repo, store, &fakeClassifier{}, &fakeAdvisor{})

	msg := jobMessage(t, rec.ID.Hex())
	w.handle(context.Background(), msg)

	assertNacked(t, msg)
	assert.Equal(t, models.AnalysisProcessing, repo.get(rec.ID).Status)

	// The broker redelivers a fresh copy with the same UUID.
	redelivered := msg.Copy()
	w.handle(context.Background(), redelivered)

	assertAcked(t, redelivered)
	got := repo.get(rec.ID)
	assert.Equal(t, models.AnalysisFailed, got.Status)
	assert.Contains(t, got.Error, "bucket unreachable")
}

func TestWorkerFailsImmediatelyOnRejectedImage(t *testing.T) {
	rec, repo := seedAnalysis(models.AnalysisPending)
	store := &fakeStore{objects: map[string][]byte{rec.ImageKey: []byte("png bytes")}}
	cls := &fakeClassifier{err: fmt.Errorf("%w: not a crop image", ErrRejected)}
	w := newTestWorker(repo, store, cls, &fakeAdvisor{})

	msg := jobMessage(t, rec.ID.Hex())
	w.handle(context.Background(), msg)

	assertAcked(t, msg)
	got := repo.get(rec.ID)
	assert.Equal(t, models.AnalysisFailed, got.Status)
	assert.Equal(t, 1, cls.calls)
}

func TestWorkerDropsMalformedJob(t *testing.T) {
	_, repo := seedAnalysis(models.AnalysisPending)
	w := newTestWorker(repo, &fakeStore{}, &fakeClassifier{}, &fakeAdvisor{})

	msg := message.NewMessage(watermill.NewUUID(), []byte("not json"))
	w.handle(context.Background(), msg)

	assertAcked(t, msg)
}

func TestWorkerDropsJobForDeletedRecord(t *testing.T) {
	repo := newFakeAnalysisRepo()
	cls := &fakeClassifier{}
	w := newTestWorker(repo, &fakeStore{}, cls, &fakeAdvisor{})

	msg := jobMessage(t, primitive.NewObjectID().Hex())
	w.handle(context.Background(), msg)

	assertAcked(t, msg)
	assert.Zero(t, cls.calls)
}

func TestWorkerSkipsFinishedRecord(t *testing.T) {
	rec, repo := seedAnalysis(models.AnalysisCompleted)
	cls := &fakeClassifier{}
	w := newTestWorker(repo, &fakeStore{}, cls, &fakeAdvisor{})

	msg := jobMessage(t, rec.ID.Hex())
	w.handle(context.Background(), msg)

	assertAcked(t, msg)
	assert.Zero(t, cls.calls)
	assert.Equal(t, models.AnalysisCompleted, repo.get(rec.ID).Status)
}

func TestWorkerCompletesWithoutAdviceWhenModelDown(t *testing.T) {
	rec, repo := seedAnalysis(models.AnalysisPending)
	store := &fakeStore{objects: map[string][]byte{rec.ImageKey: []byte("jpeg bytes")}}
	cls := &fakeClassifier{preds: []models.Prediction{{Label: "rust", Confidence: 0.8}}}
	adv := &fakeAdvisor{err: errors.New("model unavailable")}
	w := newTestWorker(repo, store, cls, adv)

	msg := jobMessage(t, rec.ID.Hex())
	w.handle(context.Background(), msg)

	assertAcked(t, msg)
	got := repo.get(rec.ID)
	assert.Equal(t, models.AnalysisCompleted, got.Status)
	assert.Empty(t, got.Advice)
}
