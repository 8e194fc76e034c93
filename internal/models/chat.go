package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chat turn roles, matching what the Gemini API expects.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Assistant tones a session can be configured with.
const (
	ToneFriendly = "friendly"
	ToneExpert   = "expert"
	ToneBrief    = "brief"
)

// ChatTurn is one message in a session, from either the farmer or the model.
type ChatTurn struct {
	Role      string    `bson:"role" json:"role"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// ChatSession is a persisted conversation with the assistant.
type ChatSession struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"-"`
	Title     string             `bson:"title" json:"title"`
	Language  string             `bson:"language" json:"language"`
	Tone      string             `bson:"tone" json:"tone"`
	Turns     []ChatTurn         `bson:"turns" json:"turns"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// ChatSessionSummary is the list-view projection: no turns, just a count.
type ChatSessionSummary struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Title     string             `bson:"title" json:"title"`
	Language  string             `bson:"language" json:"language"`
	Tone      string             `bson:"tone" json:"tone"`
	TurnCount int                `bson:"turn_count" json:"turn_count"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// ChatReply is returned from POST /chat/sessions/:id/messages.
type ChatReply struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Title     string `json:"title"`
}

// CreateSessionRequest is the payload for POST /chat/sessions.
type CreateSessionRequest struct {
	Language string `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
	Tone     string `json:"tone,omitempty" validate:"omitempty,oneof=friendly expert brief"`
}

// UpdateSessionRequest carries the PATCH fields for a session.
type UpdateSessionRequest struct {
	Title    *string `json:"title,omitempty" validate:"omitempty,min=1,max=120"`
	Language *string `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
	Tone     *string `json:"tone,omitempty" validate:"omitempty,oneof=friendly expert brief"`
}

// SendMessageRequest is the payload for POST /chat/sessions/:id/messages.
type SendMessageRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}
