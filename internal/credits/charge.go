package credits

import (
	"context"

	"github.com/google/uuid"
	"sceneforge-backend/internal/errs"
	"sceneforge-backend/internal/logger"
	"sceneforge-backend/internal/models"
)

// Ledger is the credit store the charge wrapper settles against.
type Ledger interface {
	GetOrCreateCredits(userID uuid.UUID, signupGrant int) (*models.Credits, error)
	DebitCredits(userID uuid.UUID, amount int, realCost float64, entry models.TransactionEntry) (int, error)
	CreditCredits(userID uuid.UUID, amount int, entry models.TransactionEntry) (int, error)
	TrackRealCost(userID uuid.UUID, realCost float64, entry models.TransactionEntry) error
}

// GenerationCall executes one provider call and reports the produced result
// URL together with the real provider cost it incurred.
type GenerationCall func(ctx context.Context) (url string, realCost float64, err error)

// ChargeRequest describes who pays for one generation call and how.
//
// Prepaid means credits were already escrowed by CostBearer (the approver):
// no further debit happens, only real-cost tracking against them. OwnKey
// means the caller supplied their own provider credential: no platform
// credit cost, real cost tracked against the caller.
type ChargeRequest struct {
	UserID      uuid.UUID
	CreditCost  int
	Provider    string
	ProjectID   uuid.NullUUID
	Description string

	Prepaid    bool
	CostBearer uuid.UUID
	OwnKey     bool

	// SkipPrecheck is set by the batch engine, which pre-checks the summed
	// cost of all items once up front.
	SkipPrecheck bool
}

// ChargeService wraps generation calls with ledger settlement.
type ChargeService struct {
	ledger      Ledger
	signupGrant int
	log         *logger.Logger
}

func NewChargeService(ledger Ledger, signupGrant int, log *logger.Logger) *ChargeService {
	return &ChargeService{
		ledger:      ledger,
		signupGrant: signupGrant,
		log:         log,
	}
}

// Precheck verifies the user can cover cost without mutating anything.
func (s *ChargeService) Precheck(userID uuid.UUID, cost int) error {
	credits, err := s.ledger.GetOrCreateCredits(userID, s.signupGrant)
	if err != nil {
		return err
	}
	if credits.Balance < cost {
		return &errs.InsufficientCreditsError{Required: cost, Balance: credits.Balance}
	}
	return nil
}

// Credit adds amount to the user's balance with a matching ledger entry.
// The inverse of a debit: balance and totalEarned both grow by amount.
func (s *ChargeService) Credit(userID uuid.UUID, amount int, kind, description string) (int, error) {
	return s.ledger.CreditCredits(userID, amount, models.TransactionEntry{
		Type:        kind,
		Description: description,
	})
}

// Charge runs the pre-check / execute / settle protocol around one
// generation call. A failed call is never charged: the error propagates with
// no credit movement. On success the normal path debits CreditCost with the
// real cost recorded on the same entry; prepaid and own-key paths record
// real cost only, against the responsible cost bearer.
func (s *ChargeService) Charge(ctx context.Context, req ChargeRequest, call GenerationCall) (string, error) {
	chargeable := !req.Prepaid && !req.OwnKey

	if chargeable && !req.SkipPrecheck {
		if err := s.Precheck(req.UserID, req.CreditCost); err != nil {
			return "", err
		}
	}

	url, realCost, err := call(ctx)
	if err != nil {
		return "", err
	}

	entry := models.TransactionEntry{
		Type:        models.TransactionTypeGenerationCharge,
		Provider:    req.Provider,
		ProjectID:   req.ProjectID,
		Description: req.Description,
	}

	if chargeable {
		if _, err := s.ledger.DebitCredits(req.UserID, req.CreditCost, realCost, entry); err != nil {
			// The provider call already succeeded; surface the settlement
			// failure rather than silently losing the charge.
			s.log.Error("settlement failed after successful generation",
				"user_id", req.UserID, "cost", req.CreditCost, "error", err)
			return "", err
		}
		return url, nil
	}

	bearer := req.CostBearer
	if bearer == uuid.Nil {
		bearer = req.UserID
	}
	entry.Type = models.TransactionTypeRealCostTracking
	if err := s.ledger.TrackRealCost(bearer, realCost, entry); err != nil {
		s.log.Error("real cost tracking failed after successful generation",
			"cost_bearer", bearer, "real_cost", realCost, "error", err)
		return "", err
	}
	return url, nil
}
