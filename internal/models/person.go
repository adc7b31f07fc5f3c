package models

import (
	"time"

	"github.com/google/uuid"
)

// Person is a cluster of faces believed to belong to one individual. Name
// stays NULL until a user labels the person; FaceCount is recomputed inside
// the same transaction as every membership change.
type Person struct {
	ID            uuid.UUID `json:"id"`
	Name          *string   `json:"name,omitempty"`
	FaceCount     int       `json:"face_count"`
	UserConfirmed bool      `json:"user_confirmed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
