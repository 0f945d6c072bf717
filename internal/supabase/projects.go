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

// GetProjectRole resolves a user's role on a project. A non-member gets
// models.RoleNone, not an error.
func (d *DatabaseClient) GetProjectRole(userID, projectID uuid.UUID) (models.Role, error) {
	var role string
	err := d.db.QueryRow(`
		SELECT role FROM project_members
		WHERE user_id = $1 AND project_id = $2
	`, userID, projectID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RoleNone, nil
	}
	if err != nil {
		return models.RoleNone, fmt.Errorf("failed to resolve project role: %w", err)
	}
	return models.Role(role), nil
}

// ListProjectAdmins returns the user ids holding owner or admin on the project.
func (d *DatabaseClient) ListProjectAdmins(projectID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := d.db.Query(`
		SELECT user_id FROM project_members
		WHERE project_id = $1 AND role = ANY($2)
	`, projectID, pq.Array([]string{string(models.RoleOwner), string(models.RoleAdmin)}))
	if err != nil {
		return nil, fmt.Errorf("failed to list project admins: %w", err)
	}
	defer rows.Close()

	var admins []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan admin id: %w", err)
		}
		admins = append(admins, id)
	}

	return admins, rows.Err()
}

func scanScene(row interface {
	Scan(dest ...interface{}) error
}) (*models.Scene, error) {
	var s models.Scene
	err := row.Scan(&s.ID, &s.ProjectID, &s.Name, &s.Prompt, &s.ImageURL,
		&s.VideoURL, &s.Position, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *DatabaseClient) GetScene(sceneID uuid.UUID) (*models.Scene, error) {
	row := d.db.QueryRow(`
		SELECT id, project_id, name, prompt, image_url, video_url, position, created_at, updated_at
		FROM scenes
		WHERE id = $1
	`, sceneID)

	scene, err := scanScene(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scene: %w", err)
	}
	return scene, nil
}

// GetProjectScenes returns the subset of ids that are scenes of the project.
func (d *DatabaseClient) GetProjectScenes(projectID uuid.UUID, sceneIDs []uuid.UUID) ([]models.Scene, error) {
	ids := make([]string, len(sceneIDs))
	for i, id := range sceneIDs {
		ids[i] = id.String()
	}

	rows, err := d.db.Query(`
		SELECT id, project_id, name, prompt, image_url, video_url, position, created_at, updated_at
		FROM scenes
		WHERE project_id = $1 AND id = ANY($2::uuid[])
		ORDER BY position ASC
	`, projectID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get project scenes: %w", err)
	}
	defer rows.Close()

	var scenes []models.Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scene: %w", err)
		}
		scenes = append(scenes, *scene)
	}

	return scenes, rows.Err()
}

// ApplySceneMedia writes the selected url onto the scene's image or video field.
func (d *DatabaseClient) ApplySceneMedia(sceneID uuid.UUID, targetType, url string) error {
	column := "image_url"
	if targetType == models.TargetTypeVideo {
		column = "video_url"
	}

	res, err := d.db.Exec(fmt.Sprintf(`
		UPDATE scenes
		SET %s = $1, updated_at = NOW()
		WHERE id = $2
	`, column), url, sceneID)
	if err != nil {
		return fmt.Errorf("failed to apply scene media: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return errs.ErrNotFound
	}
	return nil
}
