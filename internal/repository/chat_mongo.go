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

// ChatRepository persists assistant conversations.
type ChatRepository struct {
	col *mongo.Collection
}

// NewChatRepository returns a ready‑to‑use repository handle.
func NewChatRepository(db *mongo.Database) *ChatRepository {
	return &ChatRepository{col: db.Collection("chat_sessions")}
}

func (r *ChatRepository) Insert(ctx context.Context, s *models.ChatSession) error {
	res, err := r.col.InsertOne(ctx, s)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		s.ID = id
	}
	return nil
}

func (r *ChatRepository) FindForUser(ctx context.Context, id, userID primitive.ObjectID) (models.ChatSession, error) {
	var s models.ChatSession
	err := r.col.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&s)
	return s, err
}

// ListSummaries projects sessions without their turns; the list view only
// needs a count. Newest sessions come first.
func (r *ChatRepository) ListSummaries(ctx context.Context, userID primitive.ObjectID) ([]models.ChatSessionSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID}}},
		{{Key: "$sort", Value: bson.M{"created_at": -1}}},
		{{Key: "$project", Value: bson.M{
			"title":      1,
			"language":   1,
			"tone":       1,
			"created_at": 1,
			"updated_at": 1,
			"turn_count": bson.M{"$size": bson.M{"$ifNull": bson.A{"$turns", bson.A{}}}},
		}}},
	}

	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ChatSessionSummary
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AppendTurns pushes the exchanged turns in one update so a crash between the
// user turn and the model turn can never leave a half-written exchange.
// A non-empty title also sets the session title (first exchange only).
func (r *ChatRepository) AppendTurns(ctx context.Context, id, userID primitive.ObjectID, turns []models.ChatTurn, title string) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if title != "" {
		set["title"] = title
	}

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{
			"$push": bson.M{"turns": bson.M{"$each": turns}},
			"$set":  set,
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// UpdateSettings applies the non-nil fields and returns the updated session.
func (r *ChatRepository) UpdateSettings(ctx context.Context, id, userID primitive.ObjectID, req models.UpdateSessionRequest) (models.ChatSession, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if req.Title != nil {
		set["title"] = *req.Title
	}
	if req.Language != nil {
		set["language"] = *req.Language
	}
	if req.Tone != nil {
		set["tone"] = *req.Tone
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var s models.ChatSession
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id, "user_id": userID}, bson.M{"$set": set}, opts).Decode(&s)
	return s, err
}

func (r *ChatRepository) Delete(ctx context.Context, id, userID primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
