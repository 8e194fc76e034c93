package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Comment is one reply embedded in a community post.
type Comment struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	AuthorID   primitive.ObjectID `bson:"author_id" json:"author_id"`
	AuthorName string             `bson:"author_name" json:"author_name"`
	Content    string             `bson:"content" json:"content"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}

// Post is a community feed entry. AuthorName is denormalised at creation so
// the feed renders without a join. Likes stores user IDs so a second like
// from the same user is a no-op; only the count is exposed.
type Post struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	AuthorID   primitive.ObjectID   `bson:"author_id" json:"author_id"`
	AuthorName string               `bson:"author_name" json:"author_name"`
	Content    string               `bson:"content" json:"content"`
	ImageKey   string               `bson:"image_key,omitempty" json:"-"`
	ImageURL   string               `bson:"-" json:"image_url,omitempty"`
	Tags       []string             `bson:"tags,omitempty" json:"tags,omitempty"`
	Likes      []primitive.ObjectID `bson:"likes,omitempty" json:"-"`
	LikeCount  int                  `bson:"-" json:"like_count"`
	Comments   []Comment            `bson:"comments,omitempty" json:"comments"`
	CreatedAt  time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time            `bson:"updated_at" json:"updated_at"`
}

// CreatePostRequest is assembled from the multipart form for POST /posts.
type CreatePostRequest struct {
	Content string   `json:"content" validate:"required,min=1,max=2000"`
	Tags    []string `json:"tags,omitempty" validate:"max=5,dive,min=1,max=30"`
}

// CreateCommentRequest is the payload for POST /posts/:id/comments.
type CreateCommentRequest struct {
	Content string `json:"content" validate:"required,min=1,max=500"`
}
