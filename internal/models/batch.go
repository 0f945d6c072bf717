package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Batch job statuses.
const (
	BatchStatusProcessing          = "processing"
	BatchStatusCompleted           = "completed"
	BatchStatusCompletedWithErrors = "completed_with_errors"
	BatchStatusCancelled           = "cancelled"
)

type BatchJob struct {
	ID             uuid.UUID
	ProjectID      uuid.UUID
	UserID         uuid.UUID
	Status         string
	TotalCount     int
	CompletedCount int
	FailedCount    int
	Progress       int
	ProviderUsed   string
	ModelUsed      string
	ErrorDetails   json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BatchItemError records one failed item inside a batch job.
type BatchItemError struct {
	SceneID uuid.UUID `json:"scene_id"`
	Error   string    `json:"error"`
}

// Scene is the regenerable target resource: each scene carries a generated
// image and optionally a video clip.
type Scene struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Name      string
	Prompt    string
	ImageURL  sql.NullString
	VideoURL  sql.NullString
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}
