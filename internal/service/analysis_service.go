package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/agriai/server/internal/models"
)

// MaxImageBytes bounds uploaded images; larger payloads are rejected with 413.
const MaxImageBytes = 8 << 20

// imageExtensions doubles as the content-type allowlist for uploads.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ImageExtension maps an allowed content type onto its file extension.
// The second return is false for types the API does not accept.
func ImageExtension(contentType string) (string, bool) {
	ext, ok := imageExtensions[contentType]
	return ext, ok
}

// ---- Repository contracts -----------------------------------------------------

// AnalysisRepository is the slice of persistence the analysis flow needs.
type AnalysisRepository interface {
	Insert(ctx context.Context, a *models.Analysis) error
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Analysis, error)
	FindForUser(ctx context.Context, id, userID primitive.ObjectID) (models.Analysis, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID, page, limit int) ([]models.Analysis, int64, error)
	Delete(ctx context.Context, id, userID primitive.ObjectID) error
	MarkProcessing(ctx context.Context, id primitive.ObjectID) (bool, error)
	MarkCompleted(ctx context.Context, id primitive.ObjectID, preds []models.Prediction, advice string) error
	MarkFailed(ctx context.Context, id primitive.ObjectID, reason string) error
}

// ObjectStore is the slice of object storage the upload flows need.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// ---- Interface ----------------------------------------------------------------

// AnalysisService accepts leaf photos and exposes the records the async
// worker fills in.
type AnalysisService interface {
	Create(ctx context.Context, userID string, image []byte, contentType, crop string) (models.Analysis, error)
	Get(ctx context.Context, userID, id string) (models.Analysis, error)
	List(ctx context.Context, userID string, page, limit int) ([]models.Analysis, int64, error)
	Delete(ctx context.Context, userID, id string) error
}

// ---- Implementation -----------------------------------------------------------

type analysisService struct {
	analyses AnalysisRepository
	store    ObjectStore
	jobs     message.Publisher
	topic    string
	log      *zap.Logger
}

// NewAnalysisService wires its dependencies.
func NewAnalysisService(analyses AnalysisRepository, store ObjectStore, jobs message.Publisher, topic string, log *zap.Logger) AnalysisService {
	return &analysisService{
		analyses: analyses,
		store:    store,
		jobs:     jobs,
		topic:    topic,
		log:      log,
	}
}

// Create uploads the image, records a pending analysis and enqueues the
// classification job. The caller gets the record back immediately; the
// worker moves it through processing to a terminal state.
func (s *analysisService) Create(ctx context.Context, userID string, image []byte, contentType, crop string) (models.Analysis, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.Analysis{}, ErrNotFound
	}

	ext, ok := ImageExtension(contentType)
	if !ok {
		return models.Analysis{}, fmt.Errorf("%w: unsupported content type %q", ErrValidation, contentType)
	}
	if len(image) == 0 {
		return models.Analysis{}, fmt.Errorf("%w: empty image", ErrValidation)
	}
	if len(image) > MaxImageBytes {
		return models.Analysis{}, fmt.Errorf("%w: image exceeds %d bytes", ErrValidation, MaxImageBytes)
	}

	key := "analyses/" + uuid.NewString() + ext
	if err := s.store.Upload(ctx, key, image, contentType); err != nil {
		return models.Analysis{}, fmt.Errorf("upload image: %w", err)
	}

	now := time.Now().UTC()
	rec := models.Analysis{
		UserID:      uid,
		Crop:        crop,
		ImageKey:    key,
		ContentType: contentType,
		Status:      models.AnalysisPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.analyses.Insert(ctx, &rec); err != nil {
		return models.Analysis{}, fmt.Errorf("insert analysis: %w", err)
	}

	payload, err := json.Marshal(AnalysisJob{AnalysisID: rec.ID.Hex()})
	if err != nil {
		return models.Analysis{}, fmt.Errorf("marshal job: %w", err)
	}
	if err := s.jobs.Publish(s.topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		// The record exists but no worker will ever see it; close it out.
		_ = s.analyses.MarkFailed(ctx, rec.ID, "could not enqueue analysis job")
		return models.Analysis{}, fmt.Errorf("publish analysis job: %w", err)
	}

	return rec, nil
}

func (s *analysisService) Get(ctx context.Context, userID, id string) (models.Analysis, error) {
	uid, oid, err := parseOwnedID(userID, id)
	if err != nil {
		return models.Analysis{}, err
	}

	rec, err := s.analyses.FindForUser(ctx, oid, uid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Analysis{}, ErrNotFound
		}
		return models.Analysis{}, fmt.Errorf("find analysis: %w", err)
	}

	// Presigning is best effort: the record is still useful without a link.
	if url, err := s.store.PresignDownload(ctx, rec.ImageKey); err == nil {
		rec.ImageURL = url
	} else {
		s.log.Warn("presign analysis image failed", zap.String("key", rec.ImageKey), zap.Error(err))
	}
	return rec, nil
}

func (s *analysisService) List(ctx context.Context, userID string, page, limit int) ([]models.Analysis, int64, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, 0, ErrNotFound
	}

	list, total, err := s.analyses.ListByUser(ctx, uid, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list analyses: %w", err)
	}
	return list, total, nil
}

func (s *analysisService) Delete(ctx context.Context, userID, id string) error {
	uid, oid, err := parseOwnedID(userID, id)
	if err != nil {
		return err
	}

	rec, err := s.analyses.FindForUser(ctx, oid, uid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("find analysis: %w", err)
	}

	if err := s.analyses.Delete(ctx, oid, uid); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("delete analysis: %w", err)
	}

	if err := s.store.Delete(ctx, rec.ImageKey); err != nil {
		s.log.Warn("delete analysis image failed", zap.String("key", rec.ImageKey), zap.Error(err))
	}
	return nil
}

// parseOwnedID decodes the caller id and the record id; either failing is a
// plain not-found so malformed ids stay indistinguishable from missing ones.
func parseOwnedID(userID, id string) (primitive.ObjectID, primitive.ObjectID, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, ErrNotFound
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, ErrNotFound
	}
	return uid, oid, nil
}
