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

func (d *DatabaseClient) CreateBatchJob(job *models.BatchJob) (*models.BatchJob, error) {
	row := d.db.QueryRow(`
		INSERT INTO batch_jobs (id, project_id, user_id, status, total_count, provider_used, model_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, project_id, user_id, status, total_count, completed_count, failed_count,
		          progress, provider_used, model_used, error_details, created_at, updated_at
	`, job.ID, job.ProjectID, job.UserID, models.BatchStatusProcessing, job.TotalCount,
		job.ProviderUsed, job.ModelUsed)

	created, err := scanBatchJob(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch job: %w", err)
	}
	return created, nil
}

func scanBatchJob(row interface {
	Scan(dest ...interface{}) error
}) (*models.BatchJob, error) {
	var j models.BatchJob
	err := row.Scan(&j.ID, &j.ProjectID, &j.UserID, &j.Status, &j.TotalCount,
		&j.CompletedCount, &j.FailedCount, &j.Progress, &j.ProviderUsed,
		&j.ModelUsed, &j.ErrorDetails, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (d *DatabaseClient) GetBatchJob(batchID uuid.UUID) (*models.BatchJob, error) {
	row := d.db.QueryRow(`
		SELECT id, project_id, user_id, status, total_count, completed_count, failed_count,
		       progress, provider_used, model_used, error_details, created_at, updated_at
		FROM batch_jobs
		WHERE id = $1
	`, batchID)

	job, err := scanBatchJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch job: %w", err)
	}
	return job, nil
}

// UpdateBatchProgress persists the running counts after each wave.
func (d *DatabaseClient) UpdateBatchProgress(batchID uuid.UUID, completedCount, failedCount, progress int) error {
	_, err := d.db.Exec(`
		UPDATE batch_jobs
		SET completed_count = $1, failed_count = $2, progress = $3, updated_at = NOW()
		WHERE id = $4
	`, completedCount, failedCount, progress, batchID)
	if err != nil {
		return fmt.Errorf("failed to update batch progress: %w", err)
	}
	return nil
}

// FinishBatchJob sets the terminal status and the per-item error details.
func (d *DatabaseClient) FinishBatchJob(batchID uuid.UUID, status string, errorDetails []models.BatchItemError) error {
	var details json.RawMessage
	if len(errorDetails) > 0 {
		data, err := json.Marshal(errorDetails)
		if err != nil {
			return fmt.Errorf("failed to marshal error details: %w", err)
		}
		details = data
	}

	_, err := d.db.Exec(`
		UPDATE batch_jobs
		SET status = $1, error_details = $2, updated_at = NOW()
		WHERE id = $3
	`, status, details, batchID)
	if err != nil {
		return fmt.Errorf("failed to finish batch job: %w", err)
	}
	return nil
}
