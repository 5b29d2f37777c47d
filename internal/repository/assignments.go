package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mr1hm/guard-dispatch/internal/models"
)

const assignmentColumns = `id, incident_id, guard_id, alert_id, active, created_at, deactivated_at`

func scanAssignment(s scanner) (models.Assignment, error) {
	var (
		a             models.Assignment
		createdAt     int64
		deactivatedAt sql.NullInt64
	)
	if err := s.Scan(&a.ID, &a.IncidentID, &a.GuardID, &a.AlertID, &a.Active, &createdAt, &deactivatedAt); err != nil {
		return a, err
	}
	a.CreatedAt = fromMillis(createdAt)
	a.DeactivatedAt = timePtr(deactivatedAt)
	return a, nil
}

// InsertAssignment fails on the partial unique index if the incident already
// has an active assignment.
func (q *queries) InsertAssignment(ctx context.Context, a *models.Assignment) error {
	query := `
		INSERT INTO assignments (` + assignmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.q.ExecContext(ctx, query, a.ID, a.IncidentID, a.GuardID, a.AlertID, a.Active,
		millis(a.CreatedAt), nullMillis(a.DeactivatedAt))
	if err != nil {
		return fmt.Errorf("error inserting assignment: %w", err)
	}
	return nil
}

func (q *queries) ActiveAssignment(ctx context.Context, incidentID string) (*models.Assignment, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE incident_id = ? AND active = 1`, incidentID)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting active assignment for %s: %w", incidentID, err)
	}
	return &a, nil
}

func (q *queries) GuardBusy(ctx context.Context, guardID string) (bool, error) {
	var busy bool
	err := q.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM assignments WHERE guard_id = ? AND active = 1)`, guardID).Scan(&busy)
	if err != nil {
		return false, fmt.Errorf("error checking assignments for guard %s: %w", guardID, err)
	}
	return busy, nil
}

func (q *queries) DeactivateAssignment(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := q.q.ExecContext(ctx, `UPDATE assignments SET active = 0, deactivated_at = ? WHERE id = ? AND active = 1`, millis(at), id)
	if err != nil {
		return false, fmt.Errorf("error deactivating assignment %s: %w", id, err)
	}
	return affected(res)
}

func (q *queries) ListAssignments(ctx context.Context, incidentID string) ([]models.Assignment, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE incident_id = ? ORDER BY created_at`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("error listing assignments: %w", err)
	}
	defer rows.Close()

	var out []models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
