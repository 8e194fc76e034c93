package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a registered farmer account. PasswordHash never leaves the server.
type User struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName          string             `bson:"full_name" json:"full_name"`
	Email             string             `bson:"email" json:"email"`
	PasswordHash      string             `bson:"password_hash" json:"-"`
	Region            string             `bson:"region,omitempty" json:"region,omitempty"`
	PreferredLanguage string             `bson:"preferred_language" json:"preferred_language"`
	CreatedAt         time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updated_at"`
}

// RegisterRequest is the payload for POST /auth/register.
type RegisterRequest struct {
	FullName string `json:"full_name" validate:"required,min=2,max=80"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Region   string `json:"region,omitempty" validate:"omitempty,max=120"`
}

// LoginRequest is the payload for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the payload for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// UpdateProfileRequest carries the PATCH /users/me fields. Nil means
// "leave unchanged".
type UpdateProfileRequest struct {
	FullName          *string `json:"full_name,omitempty" validate:"omitempty,min=2,max=80"`
	Region            *string `json:"region,omitempty" validate:"omitempty,max=120"`
	PreferredLanguage *string `json:"preferred_language,omitempty" validate:"omitempty,bcp47_language_tag"`
}
