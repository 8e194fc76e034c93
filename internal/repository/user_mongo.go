// Package repository contains the MongoDB persistence layer. Each repository
// owns one collection; business rules live a layer up in the services.
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

// UserRepository persists farmer accounts.
type UserRepository struct {
	col *mongo.Collection
}

// NewUserRepository returns a ready‑to‑use repository handle.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection("users")}
}

// Insert stores a new account. The unique index on email surfaces duplicate
// registrations as a mongo duplicate-key error.
func (r *UserRepository) Insert(ctx context.Context, user *models.User) error {
	res, err := r.col.InsertOne(ctx, user)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = id
	}
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := r.col.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	return user, err
}

func (r *UserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var user models.User
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	return user, err
}

// UpdateProfile applies the non-nil fields and returns the updated document.
func (r *UserRepository) UpdateProfile(ctx context.Context, id primitive.ObjectID, req models.UpdateProfileRequest) (models.User, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if req.FullName != nil {
		set["full_name"] = *req.FullName
	}
	if req.Region != nil {
		set["region"] = *req.Region
	}
	if req.PreferredLanguage != nil {
		set["preferred_language"] = *req.PreferredLanguage
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user models.User
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&user)
	return user, err
}
