package supabase

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"sceneforge-backend/internal/errs"
	"sceneforge-backend/internal/models"
)

// GetOrCreateCredits returns the user's credit row, creating a
// default-funded one (plus its signup grant transaction) on first access.
func (d *DatabaseClient) GetOrCreateCredits(userID uuid.UUID, signupGrant int) (*models.Credits, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO credits (user_id, balance, total_earned)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, signupGrant)
	if err != nil {
		return nil, fmt.Errorf("failed to create credits row: %w", err)
	}

	if affected, _ := res.RowsAffected(); affected > 0 {
		if err := insertTransaction(tx, userID, signupGrant, 0, models.TransactionEntry{
			Type:        models.TransactionTypeSignupGrant,
			Description: "signup credit grant",
		}); err != nil {
			return nil, err
		}
	}

	credits, err := scanCredits(tx.QueryRow(`
		SELECT user_id, balance, total_spent, total_earned, total_real_cost, last_updated
		FROM credits
		WHERE user_id = $1
	`, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get credits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return credits, nil
}

func scanCredits(row *sql.Row) (*models.Credits, error) {
	var c models.Credits
	err := row.Scan(&c.UserID, &c.Balance, &c.TotalSpent, &c.TotalEarned, &c.TotalRealCost, &c.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DebitCredits atomically decrements the balance, bumps totals and appends
// the ledger entry. The decrement is guarded on balance >= amount so a
// concurrent debit can never push the balance negative; an insufficient
// balance leaves every row untouched.
func (d *DatabaseClient) DebitCredits(userID uuid.UUID, amount int, realCost float64, entry models.TransactionEntry) (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	balance, err := debitTx(tx, userID, amount, realCost, entry)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit debit: %w", err)
	}
	return balance, nil
}

func debitTx(tx *sql.Tx, userID uuid.UUID, amount int, realCost float64, entry models.TransactionEntry) (int, error) {
	var balance int
	err := tx.QueryRow(`
		UPDATE credits
		SET balance = balance - $1,
		    total_spent = total_spent + $1,
		    total_real_cost = total_real_cost + $2,
		    last_updated = NOW()
		WHERE user_id = $3 AND balance >= $1
		RETURNING balance
	`, amount, realCost, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		var current int
		if err := tx.QueryRow(`SELECT balance FROM credits WHERE user_id = $1`, userID).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, errs.ErrNotFound
			}
			return 0, fmt.Errorf("failed to read balance: %w", err)
		}
		return 0, &errs.InsufficientCreditsError{Required: amount, Balance: current}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to debit credits: %w", err)
	}

	if err := insertTransaction(tx, userID, -amount, realCost, entry); err != nil {
		return 0, err
	}
	return balance, nil
}

// CreditCredits atomically increments the balance and totalEarned and
// appends the ledger entry, provisioning the credits row if it does not
// exist yet.
func (d *DatabaseClient) CreditCredits(userID uuid.UUID, amount int, entry models.TransactionEntry) (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var balance int
	if err := tx.QueryRow(`
		INSERT INTO credits (user_id, balance, total_earned)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = credits.balance + EXCLUDED.balance,
		    total_earned = credits.total_earned + EXCLUDED.total_earned,
		    last_updated = NOW()
		RETURNING balance
	`, userID, amount).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to credit credits: %w", err)
	}

	if err := insertTransaction(tx, userID, amount, 0, entry); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit credit: %w", err)
	}
	return balance, nil
}

// TrackRealCost appends a zero-amount ledger entry carrying only the real
// provider cost. Used when credits were escrowed by someone else or the
// caller supplied their own provider credential.
func (d *DatabaseClient) TrackRealCost(userID uuid.UUID, realCost float64, entry models.TransactionEntry) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE credits
		SET total_real_cost = total_real_cost + $1, last_updated = NOW()
		WHERE user_id = $2
	`, realCost, userID); err != nil {
		return fmt.Errorf("failed to track real cost: %w", err)
	}

	if err := insertTransaction(tx, userID, 0, realCost, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit real cost tracking: %w", err)
	}
	return nil
}

func insertTransaction(tx *sql.Tx, userID uuid.UUID, amount int, realCost float64, entry models.TransactionEntry) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	_, err := tx.Exec(`
		INSERT INTO credit_transactions (id, user_id, amount, real_cost, type, provider, project_id, description, metadata)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
	`, uuid.New(), userID, amount, realCost, entry.Type, entry.Provider, entry.ProjectID, entry.Description, metadata)
	if err != nil {
		return fmt.Errorf("failed to append credit transaction: %w", err)
	}
	return nil
}

// ListCreditTransactions returns the user's ledger entries, newest first.
func (d *DatabaseClient) ListCreditTransactions(userID uuid.UUID, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.Query(`
		SELECT id, user_id, amount, real_cost, type, COALESCE(provider, ''), project_id, description, metadata, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit transactions: %w", err)
	}
	defer rows.Close()

	var transactions []models.CreditTransaction
	for rows.Next() {
		var t models.CreditTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.RealCost, &t.Type,
			&t.Provider, &t.ProjectID, &t.Description, &t.Metadata, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credit transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	return transactions, rows.Err()
}

// ApproveRequestWithEscrow performs the approval's compare-and-transition
// and the approver's escrow debit as one atomic unit: if the request is no
// longer pending, or the balance is short, nothing moves.
func (d *DatabaseClient) ApproveRequestWithEscrow(requestID, adminID uuid.UUID, note string, totalCost int, entry models.TransactionEntry) (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE regeneration_requests
		SET status = $1,
		    credits_paid = $2,
		    reviewed_by = $3,
		    reviewed_at = NOW(),
		    review_note = NULLIF($4, ''),
		    updated_at = NOW()
		WHERE id = $5 AND status = $6
	`, models.RequestStatusApproved, totalCost, adminID, note, requestID, models.RequestStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to approve request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRow(
			`SELECT EXISTS (SELECT 1 FROM regeneration_requests WHERE id = $1)`, requestID,
		).Scan(&exists); err != nil {
			return 0, fmt.Errorf("failed to recheck request: %w", err)
		}
		if !exists {
			return 0, errs.ErrNotFound
		}
		return 0, errs.ErrStaleStatus
	}

	balance, err := debitTx(tx, adminID, totalCost, 0, entry)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit approval: %w", err)
	}
	return balance, nil
}
