package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// EmbeddingDim is the dimensionality of segment embeddings.
const EmbeddingDim = 384

// SegmentEmbedding is a sentence-level vector for one segment's transcript,
// used for L2 nearest-neighbour search via pgvector.
type SegmentEmbedding struct {
	SegmentID        uuid.UUID       `gorm:"primaryKey;type:uuid" json:"segment_id"`
	SegmentStartedAt time.Time       `gorm:"primaryKey" json:"segment_started_at"`
	ModelName        string          `gorm:"not null;size:128" json:"model_name"`
	Vector           pgvector.Vector `gorm:"type:vector(384)" json:"-"`
	CreatedAt        time.Time       `json:"created_at"`
}

// TableName returns the table name for SegmentEmbedding.
func (SegmentEmbedding) TableName() string {
	return "segment_embeddings"
}

// Validate performs basic validation on the embedding.
func (e *SegmentEmbedding) Validate() error {
	if e.SegmentID == uuid.Nil {
		return ErrSegmentIDRequired
	}
	if e.SegmentStartedAt.IsZero() {
		return ErrStartTimeRequired
	}
	if e.ModelName == "" {
		return ErrModelNameRequired
	}
	return nil
}

// BeforeCreate validates the embedding.
func (e *SegmentEmbedding) BeforeCreate(tx *gorm.DB) error {
	return e.Validate()
}
