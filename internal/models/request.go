package models

import "github.com/google/uuid"

type CreateRegenerationRequest struct {
	TargetType string      `json:"target_type" binding:"required,oneof=image video"`
	SceneIDs   []uuid.UUID `json:"scene_ids" binding:"required,min=1"`
	Reason     string      `json:"reason" binding:"required"`
}

type ReviewRegenerationRequest struct {
	Approved bool   `json:"approved"`
	Note     string `json:"note,omitempty"`
}

// Actions for PATCH /regeneration-requests/{id}.
const (
	RequestActionRegenerate   = "regenerate"
	RequestActionSelect       = "select"
	RequestActionFinalApprove = "final_approve"
	RequestActionFinalReject  = "final_reject"
)

type RegenerationActionRequest struct {
	Action      string `json:"action" binding:"required,oneof=regenerate select final_approve final_reject"`
	SelectedURL string `json:"selected_url,omitempty"`
	Note        string `json:"note,omitempty"`
}

type SubmitBatchRequest struct {
	BatchID  uuid.UUID       `json:"batch_id"`
	Items    []BatchItemSpec `json:"items" binding:"required,min=1"`
	Provider string          `json:"provider,omitempty"`
	Model    string          `json:"model,omitempty"`
	Config   BatchConfig     `json:"config"`
}

type BatchItemSpec struct {
	SceneID uuid.UUID `json:"scene_id" binding:"required"`
	Prompt  string    `json:"prompt" binding:"required"`
}

type BatchConfig struct {
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
	UseOwnKey   bool   `json:"use_own_key,omitempty"`
}
