package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/agriai/server/internal/models"
)

type fakePublisher struct {
	published []*message.Message
	err       error
}

func (f *fakePublisher) Publish(_ string, msgs ...*message.Message) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msgs...)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func newTestAnalysisService(repo *fakeAnalysisRepo, store *fakeStore, pub *fakePublisher) AnalysisService {
	return NewAnalysisService(repo, store, pub, TopicAnalysisJobs, zap.NewNop())
}

func TestCreateQueuesAnalysisJob(t *testing.T) {
	repo := newFakeAnalysisRepo()
	store := &fakeStore{}
	pub := &fakePublisher{}
	svc := newTestAnalysisService(repo, store, pub)
	userID := primitive.NewObjectID().Hex()

	rec, err := svc.Create(context.Background(), userID, []byte("jpeg bytes"), "image/jpeg", "maize")

	require.NoError(t, err)
	assert.Equal(t, models.AnalysisPending, rec.Status)
	assert.True(t, strings.HasPrefix(rec.ImageKey, "analyses/"))
	assert.True(t, strings.HasSuffix(rec.ImageKey, ".jpg"))
	assert.Contains(t, store.objects, rec.ImageKey)

	require.Len(t, pub.published, 1)
	var job AnalysisJob
	require.NoError(t, json.Unmarshal(pub.published[0].Payload, &job))
	assert.Equal(t, rec.ID.Hex(), job.AnalysisID)
}

func TestCreateRejectsUnsupportedImageType(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestAnalysisService(newFakeAnalysisRepo(), &fakeStore{}, pub)

	_, err := svc.Create(context.Background(), primitive.NewObjectID().Hex(), []byte("gif bytes"), "image/gif", "")

	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, pub.published)
}

func TestCreateClosesRecordWhenEnqueueFails(t *testing.T) {
	repo := newFakeAnalysisRepo()
	pub := &fakePublisher{err: errors.New("queue closed")}
	svc := newTestAnalysisService(repo, &fakeStore{}, pub)
	userID := primitive.NewObjectID()

	_, err := svc.Create(context.Background(), userID.Hex(), []byte("jpeg bytes"), "image/jpeg", "maize")

	require.Error(t, err)
	list, _, lerr := svc.List(context.Background(), userID.Hex(), 1, 20)
	require.NoError(t, lerr)
	require.Len(t, list, 1)
	assert.Equal(t, models.AnalysisFailed, list[0].Status)
}

func TestGetPresignsImage(t *testing.T) {
	rec, repo := seedAnalysis(models.AnalysisCompleted)
	svc := newTestAnalysisService(repo, &fakeStore{}, &fakePublisher{})

	got, err := svc.Get(context.Background(), rec.UserID.Hex(), rec.ID.Hex())

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/"+rec.ImageKey, got.ImageURL)
}

func TestGetHidesForeignRecord(t *testing.T) {
	rec, repo := seedAnalysis(models.AnalysisCompleted)
	svc := newTestAnalysisService(repo, &fakeStore{}, &fakePublisher{})

	_, err := svc.Get(context.Background(), primitive.NewObjectID().Hex(), rec.ID.Hex())

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRemovesRecordAndImage(t *testing.T) {
	rec, repo := seedAnalysis(models.AnalysisCompleted)
	store := &fakeStore{objects: map[string][]byte{rec.ImageKey: []byte("jpeg bytes")}}
	svc := newTestAnalysisService(repo, store, &fakePublisher{})

	require.NoError(t, svc.Delete(context.Background(), rec.UserID.Hex(), rec.ID.Hex()))

	_, err := svc.Get(context.Background(), rec.UserID.Hex(), rec.ID.Hex())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{rec.ImageKey}, store.deleted)
}
