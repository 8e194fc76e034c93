package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification kinds.
const (
	NotificationPostLiked     = "post_liked"
	NotificationPostCommented = "post_commented"
)

// Notification tells a post author that someone interacted with their post.
type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"-"`
	Kind      string             `bson:"kind" json:"kind"`
	PostID    primitive.ObjectID `bson:"post_id" json:"post_id"`
	ActorName string             `bson:"actor_name" json:"actor_name"`
	Message   string             `bson:"message" json:"message"`
	Read      bool               `bson:"read" json:"read"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
