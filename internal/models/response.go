package models

import "time"

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type RegenerationRequestResponse struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	RequesterID   string     `json:"requester_id"`
	TargetType    string     `json:"target_type"`
	TargetID      string     `json:"target_id"`
	TargetName    string     `json:"target_name"`
	Reason        string     `json:"reason"`
	BatchID       string     `json:"batch_id,omitempty"`
	Status        string     `json:"status"`
	MaxAttempts   int        `json:"max_attempts"`
	AttemptsUsed  int        `json:"attempts_used"`
	CreditsPaid   int        `json:"credits_paid"`
	GeneratedURLs []string   `json:"generated_urls"`
	SelectedURL   string     `json:"selected_url,omitempty"`
	ReviewNote    string     `json:"review_note,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type CreateRegenerationResponse struct {
	Requests []RegenerationRequestResponse `json:"requests"`
	Created  int                           `json:"created"`
	Skipped  int                           `json:"skipped"`
}

type ApproveRegenerationResponse struct {
	Status           string `json:"status"`
	MaxAttempts      int    `json:"max_attempts"`
	CreditsPaid      int    `json:"credits_paid"`
	CreditsRemaining int    `json:"credits_remaining"`
}

type InsufficientCreditsResponse struct {
	Error    string `json:"error"`
	Required int    `json:"required"`
	Balance  int    `json:"balance"`
}

type BatchJobResponse struct {
	BatchID        string    `json:"batch_id"`
	Status         string    `json:"status"`
	TotalCount     int       `json:"total_count"`
	CompletedCount int       `json:"completed_count"`
	FailedCount    int       `json:"failed_count"`
	Progress       int       `json:"progress"`
	ProviderUsed   string    `json:"provider_used,omitempty"`
	ModelUsed      string    `json:"model_used,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CreditsResponse struct {
	Balance       int       `json:"balance"`
	TotalSpent    int       `json:"total_spent"`
	TotalEarned   int       `json:"total_earned"`
	TotalRealCost float64   `json:"total_real_cost"`
	LastUpdated   time.Time `json:"last_updated"`
}

type CreditTransactionResponse struct {
	ID          string    `json:"id"`
	Amount      int       `json:"amount"`
	RealCost    float64   `json:"real_cost"`
	Type        string    `json:"type"`
	Provider    string    `json:"provider,omitempty"`
	ProjectID   string    `json:"project_id,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
