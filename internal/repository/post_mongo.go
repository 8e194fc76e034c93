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

// PostRepository persists community posts with their embedded likes and
// comments. All interaction writes are single atomic updates.
type PostRepository struct {
	col *mongo.Collection
}

// NewPostRepository returns a ready‑to‑use repository handle.
func NewPostRepository(db *mongo.Database) *PostRepository {
	return &PostRepository{col: db.Collection("posts")}
}

func (r *PostRepository) Insert(ctx context.Context, p *models.Post) error {
	res, err := r.col.InsertOne(ctx, p)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		p.ID = id
	}
	return nil
}

func (r *PostRepository) FindByID(ctx context.Context, id primitive.ObjectID) (models.Post, error) {
	var p models.Post
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	return p, err
}

// List returns one page of the feed, newest first, optionally filtered by tag.
func (r *PostRepository) List(ctx context.Context, page, limit int, tag string) ([]models.Post, int64, error) {
	filter := bson.M{}
	if tag != "" {
		filter["tags"] = tag
	}

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

	var out []models.Post
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *PostRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// AddLike records a like idempotently ($addToSet) and returns the updated
// post so callers can report the new count.
func (r *PostRepository) AddLike(ctx context.Context, id, userID primitive.ObjectID) (models.Post, error) {
	update := bson.M{
		"$addToSet": bson.M{"likes": userID},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p models.Post
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&p)
	return p, err
}

// RemoveLike is the $pull mirror of AddLike; unliking twice is a no-op.
func (r *PostRepository) RemoveLike(ctx context.Context, id, userID primitive.ObjectID) (models.Post, error) {
	update := bson.M{
		"$pull": bson.M{"likes": userID},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p models.Post
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&p)
	return p, err
}

// AddComment appends the comment and returns the updated post.
func (r *PostRepository) AddComment(ctx context.Context, id primitive.ObjectID, comment models.Comment) (models.Post, error) {
	update := bson.M{
		"$push": bson.M{"comments": comment},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p models.Post
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&p)
	return p, err
}
