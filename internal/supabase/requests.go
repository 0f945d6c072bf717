package supabase

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"sceneforge-backend/internal/errs"
	"sceneforge-backend/internal/models"
)

const regenerationRequestColumns = `
	id, project_id, requester_id, target_type, target_id, target_name, reason,
	batch_id, status, max_attempts, attempts_used, credits_paid, generated_urls,
	selected_url, reviewed_by, reviewed_at, review_note,
	final_review_by, final_review_at, final_review_note,
	completed_at, created_at, updated_at`

func scanRegenerationRequest(row interface {
	Scan(dest ...interface{}) error
}) (*models.RegenerationRequest, error) {
	var r models.RegenerationRequest
	err := row.Scan(
		&r.ID, &r.ProjectID, &r.RequesterID, &r.TargetType, &r.TargetID,
		&r.TargetName, &r.Reason, &r.BatchID, &r.Status, &r.MaxAttempts,
		&r.AttemptsUsed, &r.CreditsPaid, &r.GeneratedURLs,
		&r.SelectedURL, &r.ReviewedBy, &r.ReviewedAt, &r.ReviewNote,
		&r.FinalReviewBy, &r.FinalReviewAt, &r.FinalReviewNote,
		&r.CompletedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *DatabaseClient) CreateRegenerationRequest(req *models.RegenerationRequest) (*models.RegenerationRequest, error) {
	row := d.db.QueryRow(`
		INSERT INTO regeneration_requests
			(id, project_id, requester_id, target_type, target_id, target_name, reason, batch_id, status, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING` + regenerationRequestColumns + `
	`, req.ID, req.ProjectID, req.RequesterID, req.TargetType, req.TargetID,
		req.TargetName, req.Reason, req.BatchID, models.RequestStatusPending, req.MaxAttempts)

	created, err := scanRegenerationRequest(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create regeneration request: %w", err)
	}
	return created, nil
}

func (d *DatabaseClient) GetRegenerationRequest(id uuid.UUID) (*models.RegenerationRequest, error) {
	row := d.db.QueryRow(`
		SELECT` + regenerationRequestColumns + `
		FROM regeneration_requests
		WHERE id = $1
	`, id)

	req, err := scanRegenerationRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get regeneration request: %w", err)
	}
	return req, nil
}

// ListRegenerationRequests returns a project's requests, optionally filtered
// by status and requester.
func (d *DatabaseClient) ListRegenerationRequests(projectID uuid.UUID, statuses []string, requesterID *uuid.UUID) ([]models.RegenerationRequest, error) {
	query := `
		SELECT` + regenerationRequestColumns + `
		FROM regeneration_requests
		WHERE project_id = $1
		  AND ($2::text[] IS NULL OR status = ANY($2))
		  AND ($3::uuid IS NULL OR requester_id = $3)
		ORDER BY created_at DESC`

	var statusFilter interface{}
	if len(statuses) > 0 {
		statusFilter = pq.Array(statuses)
	}
	var requesterFilter interface{}
	if requesterID != nil {
		requesterFilter = *requesterID
	}

	rows, err := d.db.Query(query, projectID, statusFilter, requesterFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to list regeneration requests: %w", err)
	}
	defer rows.Close()

	var requests []models.RegenerationRequest
	for rows.Next() {
		req, err := scanRegenerationRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan regeneration request: %w", err)
		}
		requests = append(requests, *req)
	}

	return requests, rows.Err()
}

// HasPendingRequest reports whether the target already has a pending request
// of the same type.
func (d *DatabaseClient) HasPendingRequest(targetID uuid.UUID, targetType string) (bool, error) {
	var count int
	err := d.db.QueryRow(`
		SELECT COUNT(*) FROM regeneration_requests
		WHERE target_id = $1 AND target_type = $2 AND status = $3
	`, targetID, targetType, models.RequestStatusPending).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check pending request: %w", err)
	}
	return count > 0, nil
}

// TransitionRequestStatus performs a compare-and-transition: the update only
// succeeds if the row's status still equals from. A losing concurrent caller
// gets errs.ErrStaleStatus.
func (d *DatabaseClient) TransitionRequestStatus(id uuid.UUID, from, to string) error {
	res, err := d.db.Exec(`
		UPDATE regeneration_requests
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to transition request status: %w", err)
	}
	return d.checkTransition(res, id)
}

func (d *DatabaseClient) checkTransition(res sql.Result, id uuid.UUID) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := d.db.QueryRow(
			`SELECT EXISTS (SELECT 1 FROM regeneration_requests WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to recheck request: %w", err)
		}
		if !exists {
			return errs.ErrNotFound
		}
		return errs.ErrStaleStatus
	}
	return nil
}

// RejectRegenerationRequest moves a pending request to rejected. No credit
// movement happens on a plain rejection.
func (d *DatabaseClient) RejectRegenerationRequest(id, adminID uuid.UUID, note string) error {
	res, err := d.db.Exec(`
		UPDATE regeneration_requests
		SET status = $1, reviewed_by = $2, reviewed_at = NOW(), review_note = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $4 AND status = $5
	`, models.RequestStatusRejected, adminID, note, id, models.RequestStatusPending)
	if err != nil {
		return fmt.Errorf("failed to reject regeneration request: %w", err)
	}
	return d.checkTransition(res, id)
}

// AppendGeneratedURL records a successful attempt: appends the url,
// increments attempts_used and moves the request out of generating. Guarded
// on status = generating so only the in-flight attempt can land.
func (d *DatabaseClient) AppendGeneratedURL(id uuid.UUID, url, newStatus string) error {
	res, err := d.db.Exec(`
		UPDATE regeneration_requests
		SET generated_urls = array_append(generated_urls, $1),
		    attempts_used = attempts_used + 1,
		    status = $2,
		    updated_at = NOW()
		WHERE id = $3 AND status = $4 AND attempts_used < max_attempts
	`, url, newStatus, id, models.RequestStatusGenerating)
	if err != nil {
		return fmt.Errorf("failed to append generated url: %w", err)
	}
	return d.checkTransition(res, id)
}

// SelectResult sets the chosen url and moves the request to awaiting_final.
// Early selection is permitted while approved or generating.
func (d *DatabaseClient) SelectResult(id uuid.UUID, url string) error {
	res, err := d.db.Exec(`
		UPDATE regeneration_requests
		SET selected_url = $1, status = $2, updated_at = NOW()
		WHERE id = $3
		  AND status = ANY($4)
		  AND $1 = ANY(generated_urls)
	`, url, models.RequestStatusAwaitingFinal, id, pq.Array([]string{
		models.RequestStatusSelecting,
		models.RequestStatusApproved,
		models.RequestStatusGenerating,
	}))
	if err != nil {
		return fmt.Errorf("failed to select result: %w", err)
	}
	return d.checkTransition(res, id)
}

// FinalizeRequest stamps the final review and moves an awaiting_final
// request to its terminal status.
func (d *DatabaseClient) FinalizeRequest(id, reviewerID uuid.UUID, note, terminalStatus string) error {
	res, err := d.db.Exec(`
		UPDATE regeneration_requests
		SET status = $1,
		    final_review_by = $2,
		    final_review_at = NOW(),
		    final_review_note = NULLIF($3, ''),
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
		    updated_at = NOW()
		WHERE id = $4 AND status = $5
	`, terminalStatus, reviewerID, note, id, models.RequestStatusAwaitingFinal)
	if err != nil {
		return fmt.Errorf("failed to finalize request: %w", err)
	}
	return d.checkTransition(res, id)
}

// DeleteRegenerationRequest hard-deletes a request. Only pending requests
// may be cancelled.
func (d *DatabaseClient) DeleteRegenerationRequest(id uuid.UUID) error {
	res, err := d.db.Exec(`
		DELETE FROM regeneration_requests
		WHERE id = $1 AND status = $2
	`, id, models.RequestStatusPending)
	if err != nil {
		return fmt.Errorf("failed to delete regeneration request: %w", err)
	}
	return d.checkTransition(res, id)
}
