package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification kinds published to users.
const (
	NotificationRegenerationRequested = "regeneration_requested"
	NotificationRegenerationApproved  = "regeneration_approved"
	NotificationRegenerationRejected  = "regeneration_rejected"
	NotificationSelectionReady        = "selection_ready"
	NotificationAwaitingFinalReview   = "awaiting_final_review"
	NotificationRegenerationCompleted = "regeneration_completed"
	NotificationBatchCompleted        = "batch_completed"
)

type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Kind      string
	Title     string
	Body      string
	Payload   json.RawMessage
	SendEmail bool
	ReadAt    *time.Time
	CreatedAt time.Time
}
