package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mr1hm/guard-dispatch/internal/models"
)

const alertColumns = `id, incident_id, guard_id, kind, status, search_rank, sent_at, response_deadline, resolved_at`

func scanAlert(s scanner) (models.Alert, error) {
	var (
		a                    models.Alert
		sentAt               int64
		deadline, resolvedAt sql.NullInt64
	)
	if err := s.Scan(&a.ID, &a.IncidentID, &a.GuardID, &a.Kind, &a.Status, &a.Rank, &sentAt, &deadline, &resolvedAt); err != nil {
		return a, err
	}
	a.SentAt = fromMillis(sentAt)
	a.ResponseDeadline = timePtr(deadline)
	a.ResolvedAt = timePtr(resolvedAt)
	return a, nil
}

func (q *queries) queryAlerts(ctx context.Context, query string, args ...any) ([]models.Alert, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (q *queries) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting alert %s: %w", id, err)
	}
	return &a, nil
}

// AlertedGuards lists every guard holding an alert of any kind or status for
// the incident.
func (q *queries) AlertedGuards(ctx context.Context, incidentID string) ([]string, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT guard_id FROM alerts WHERE incident_id = ?`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("error listing alerted guards: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning guard id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *queries) NextAlertRank(ctx context.Context, incidentID string) (int, error) {
	var rank int
	err := q.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(search_rank) + 1, 0) FROM alerts WHERE incident_id = ?`, incidentID).Scan(&rank)
	if err != nil {
		return 0, fmt.Errorf("error reading next alert rank: %w", err)
	}
	return rank, nil
}

func (q *queries) InsertAlert(ctx context.Context, a *models.Alert) error {
	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.q.ExecContext(ctx, query, a.ID, a.IncidentID, a.GuardID, a.Kind, a.Status, a.Rank,
		millis(a.SentAt), nullMillis(a.ResponseDeadline), nullMillis(a.ResolvedAt))
	if err != nil {
		return fmt.Errorf("error inserting alert for guard %s: %w", a.GuardID, err)
	}
	return nil
}

// TransitionAlert moves the alert out of from and stamps resolved_at. It
// reports false when the alert was no longer in from.
func (q *queries) TransitionAlert(ctx context.Context, id string, from, to models.AlertStatus, at time.Time) (bool, error) {
	res, err := q.q.ExecContext(ctx, `UPDATE alerts SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		to, millis(at), id, from)
	if err != nil {
		return false, fmt.Errorf("error transitioning alert %s: %w", id, err)
	}
	return affected(res)
}

// AutoDeclineSiblings closes every other outstanding assignment alert on the
// incident once acceptedID wins.
func (q *queries) AutoDeclineSiblings(ctx context.Context, incidentID, acceptedID string, at time.Time) (int64, error) {
	query := `
		UPDATE alerts SET status = ?, resolved_at = ?
		WHERE incident_id = ? AND id <> ? AND kind = ? AND status = ?
	`
	res, err := q.q.ExecContext(ctx, query, models.AlertAutoDeclined, millis(at),
		incidentID, acceptedID, models.AlertAssignment, models.AlertSent)
	if err != nil {
		return 0, fmt.Errorf("error auto-declining alerts on incident %s: %w", incidentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading rows affected: %w", err)
	}
	return n, nil
}

func (q *queries) ListAlerts(ctx context.Context, incidentID string) ([]models.Alert, error) {
	return q.queryAlerts(ctx, `SELECT `+alertColumns+` FROM alerts WHERE incident_id = ? ORDER BY search_rank, sent_at`, incidentID)
}

// DueAlerts returns outstanding assignment alerts whose deadline is at or
// before now, oldest first.
func (q *queries) DueAlerts(ctx context.Context, now time.Time) ([]models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE kind = ? AND status = ? AND response_deadline IS NOT NULL AND response_deadline <= ?
		ORDER BY response_deadline, id
	`
	return q.queryAlerts(ctx, query, models.AlertAssignment, models.AlertSent, millis(now))
}
