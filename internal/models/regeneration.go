package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Regeneration request statuses.
const (
	RequestStatusPending       = "pending"
	RequestStatusApproved      = "approved"
	RequestStatusGenerating    = "generating"
	RequestStatusSelecting     = "selecting"
	RequestStatusAwaitingFinal = "awaiting_final"
	RequestStatusCompleted     = "completed"
	RequestStatusRejected      = "rejected"
)

// Regeneration target types.
const (
	TargetTypeImage = "image"
	TargetTypeVideo = "video"
)

const DefaultMaxAttempts = 3

type RegenerationRequest struct {
	ID              uuid.UUID
	ProjectID       uuid.UUID
	RequesterID     uuid.UUID
	TargetType      string
	TargetID        uuid.UUID
	TargetName      string
	Reason          string
	BatchID         uuid.NullUUID
	Status          string
	MaxAttempts     int
	AttemptsUsed    int
	CreditsPaid     int
	GeneratedURLs   pq.StringArray
	SelectedURL     sql.NullString
	ReviewedBy      uuid.NullUUID
	ReviewedAt      sql.NullTime
	ReviewNote      sql.NullString
	FinalReviewBy   uuid.NullUUID
	FinalReviewAt   sql.NullTime
	FinalReviewNote sql.NullString
	CompletedAt     sql.NullTime
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasGeneratedURL reports whether url is one of the request's generated results.
func (r *RegenerationRequest) HasGeneratedURL(url string) bool {
	for _, u := range r.GeneratedURLs {
		if u == url {
			return true
		}
	}
	return false
}
