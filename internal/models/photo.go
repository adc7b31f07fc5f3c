package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingStatus tracks a photo through the thumbnail pipeline.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// CanTransition reports whether moving to next is a legal status change.
// completed may only go back to pending, which happens on an explicit
// reprocess request.
func (s ProcessingStatus) CanTransition(next ProcessingStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusProcessing
	case StatusCompleted:
		return next == StatusPending
	}
	return false
}

type Photo struct {
	ID               uuid.UUID        `json:"id"`
	FilePath         string           `json:"file_path"`
	FileSize         int64            `json:"file_size"`
	ContentType      string           `json:"content_type"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
