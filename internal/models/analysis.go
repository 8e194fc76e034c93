package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Analysis lifecycle states. Transitions only move forward:
// pending → processing → completed | failed.
const (
	AnalysisPending    = "pending"
	AnalysisProcessing = "processing"
	AnalysisCompleted  = "completed"
	AnalysisFailed     = "failed"
)

// Prediction is a single ranked label from the crop-disease classifier.
type Prediction struct {
	Label      string  `bson:"label" json:"label"`
	Confidence float64 `bson:"confidence" json:"confidence"`
}

// Analysis is one uploaded leaf photo and everything derived from it.
// ImageKey points at the object store; ImageURL is a short-lived presigned
// link filled in at read time and never persisted.
type Analysis struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"-"`
	Crop        string             `bson:"crop,omitempty" json:"crop,omitempty"`
	ImageKey    string             `bson:"image_key" json:"-"`
	ContentType string             `bson:"content_type" json:"content_type"`
	Status      string             `bson:"status" json:"status"`
	Predictions []Prediction       `bson:"predictions,omitempty" json:"predictions,omitempty"`
	Advice      string             `bson:"advice,omitempty" json:"advice,omitempty"`
	Error       string             `bson:"error,omitempty" json:"error,omitempty"`
	ImageURL    string             `bson:"-" json:"image_url,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
	CompletedAt *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}
