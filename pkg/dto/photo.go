package dto

import "github.com/google/uuid"

type PhotoResponse struct {
	ID               uuid.UUID `json:"id"`
	FilePath         string    `json:"file_path"`
	FileSize         int64     `json:"file_size"`
	ContentType      string    `json:"content_type"`
	ProcessingStatus string    `json:"processing_status"`
	CreatedAt        string    `json:"created_at"`
	UpdatedAt        string    `json:"updated_at"`
}

type PhotoListResponse struct {
	Photos []PhotoResponse `json:"photos"`
}

type FaceResponse struct {
	ID           uuid.UUID  `json:"id"`
	PhotoID      uuid.UUID  `json:"photo_id"`
	PersonID     *uuid.UUID `json:"person_id,omitempty"`
	BoxLeft      int        `json:"box_left"`
	BoxTop       int        `json:"box_top"`
	BoxWidth     int        `json:"box_width"`
	BoxHeight    int        `json:"box_height"`
	Confidence   float64    `json:"confidence"`
	ThumbnailKey string     `json:"thumbnail_key,omitempty"`
	CreatedAt    string     `json:"created_at"`
}

type FaceListResponse struct {
	Faces []FaceResponse `json:"faces"`
}

// PhotoEvent is a WebSocket message for real-time processing updates.
type PhotoEvent struct {
	Type      string    `json:"type"` // photo_updated
	PhotoID   uuid.UUID `json:"photo_id"`
	Status    string    `json:"status"`
	FaceCount int       `json:"face_count"`
}
