package models

import (
	"time"

	"github.com/google/uuid"
)

// Face is a single detection inside a photo. The embedding is written once at
// creation and never updated; only the person assignment changes afterwards.
type Face struct {
	ID           uuid.UUID  `json:"id"`
	PhotoID      uuid.UUID  `json:"photo_id"`
	PersonID     *uuid.UUID `json:"person_id,omitempty"`
	Embedding    []float32  `json:"-"`
	BoxLeft      int        `json:"box_left"`
	BoxTop       int        `json:"box_top"`
	BoxWidth     int        `json:"box_width"`
	BoxHeight    int        `json:"box_height"`
	Confidence   float64    `json:"confidence"`
	ThumbnailKey *string    `json:"thumbnail_key,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
