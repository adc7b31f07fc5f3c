package models

import "github.com/google/uuid"

// Job kinds carried on the work queue.
const (
	JobIngest     = "ingest"
	JobThumbnails = "thumbs"
)

// PhotoTask is the payload for both job kinds.
type PhotoTask struct {
	PhotoID uuid.UUID `json:"photo_id"`
	Kind    string    `json:"kind"`
}
