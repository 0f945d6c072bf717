package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Credit transaction types.
const (
	TransactionTypeSignupGrant      = "signup_grant"
	TransactionTypePurchase         = "purchase"
	TransactionTypeRegenerationHold = "regeneration_hold"
	TransactionTypeGenerationCharge = "generation_charge"
	TransactionTypeRealCostTracking = "real_cost_tracking"
)

type Credits struct {
	UserID        uuid.UUID
	Balance       int
	TotalSpent    int
	TotalEarned   int
	TotalRealCost float64
	LastUpdated   time.Time
}

// TransactionEntry is the ledger-entry shape appended alongside every
// balance mutation.
type TransactionEntry struct {
	Type        string
	Provider    string
	ProjectID   uuid.NullUUID
	Description string
	Metadata    json.RawMessage
}

// CreditTransaction is an immutable ledger entry. Amount is signed, negative
// for debits. RealCost is the actual provider cost in currency units and is
// tracked independently of the credit amount.
type CreditTransaction struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Amount      int
	RealCost    float64
	Type        string
	Provider    string
	ProjectID   uuid.NullUUID
	Description string
	Metadata    json.RawMessage
	CreatedAt   time.Time
}
