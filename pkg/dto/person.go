package dto

import "github.com/google/uuid"

type PersonResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          *string   `json:"name"`
	FaceCount     int       `json:"face_count"`
	UserConfirmed bool      `json:"user_confirmed"`
	CreatedAt     string    `json:"created_at"`
	UpdatedAt     string    `json:"updated_at"`
}

type PersonListResponse struct {
	Persons []PersonResponse `json:"persons"`
}

// UpdatePersonRequest carries the user-editable fields. Omitted fields stay
// unchanged.
type UpdatePersonRequest struct {
	Name          *string `json:"name"`
	UserConfirmed *bool   `json:"user_confirmed"`
}

type MergePersonRequest struct {
	SourceID uuid.UUID `json:"source_id" binding:"required"`
}
