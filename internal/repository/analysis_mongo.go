package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/agriai/server/internal/models"
)

// AnalysisRepository persists crop-disease analysis records.
type AnalysisRepository struct {
	col *mongo.Collection
}

// NewAnalysisRepository returns a ready‑to‑use repository handle.
func NewAnalysisRepository(db *mongo.Database) *AnalysisRepository {
	return &AnalysisRepository{col: db.Collection("analyses")}
}

func (r *AnalysisRepository) Insert(ctx context.Context, a *models.Analysis) error {
	res, err := r.col.InsertOne(ctx, a)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		a.ID = id
	}
	return nil
}

func (r *AnalysisRepository) FindByID(ctx context.Context, id primitive.ObjectID) (models.Analysis, error) {
	var a models.Analysis
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	return a, err
}

// FindForUser scopes the lookup to the owner, so foreign ids come back as
// ErrNoDocuments rather than leaking another farmer's record.
func (r *AnalysisRepository) FindForUser(ctx context.Context, id, userID primitive.ObjectID) (models.Analysis, error) {
	var a models.Analysis
	err := r.col.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&a)
	return a, err
}

// ListByUser returns one page of the user's analyses, newest first, plus the
// total count for pagination.
func (r *AnalysisRepository) ListByUser(ctx context.Context, userID primitive.ObjectID, page, limit int) ([]models.Analysis, int64, error) {
	filter := bson.M{"user_id": userID}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var out []models.Analysis
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *AnalysisRepository) Delete(ctx context.Context, id, userID primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// MarkProcessing flips pending → processing. The guard on the current status
// makes redelivered jobs observable: false means someone already moved it.
func (r *AnalysisRepository) MarkProcessing(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.AnalysisPending},
		bson.M{"$set": bson.M{
			"status":     models.AnalysisProcessing,
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// MarkCompleted closes a processing record with its predictions and advice.
func (r *AnalysisRepository) MarkCompleted(ctx context.Context, id primitive.ObjectID, preds []models.Prediction, advice string) error {
	now := time.Now().UTC()
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.AnalysisProcessing},
		bson.M{"$set": bson.M{
			"status":       models.AnalysisCompleted,
			"predictions":  preds,
			"advice":       advice,
			"updated_at":   now,
			"completed_at": now,
		}},
	)
	if err != nil {
		return err
	}
	if res.ModifiedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// MarkFailed closes a record that cannot complete. Terminal states are
// excluded from the guard so a completed record is never overwritten.
func (r *AnalysisRepository) MarkFailed(ctx context.Context, id primitive.ObjectID, reason string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": bson.A{models.AnalysisPending, models.AnalysisProcessing}}},
		bson.M{"$set": bson.M{
			"status":     models.AnalysisFailed,
			"error":      reason,
			"updated_at": time.Now().UTC(),
		}},
	)
	return err
}
