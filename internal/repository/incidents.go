package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mr1hm/guard-dispatch/internal/models"
)

const incidentColumns = `id, beacon_id, status, priority, system_wide, first_signal_at, last_signal_at, resolved_at`

func scanIncident(s scanner) (models.Incident, error) {
	var (
		inc         models.Incident
		first, last int64
		resolvedAt  sql.NullInt64
	)
	if err := s.Scan(&inc.ID, &inc.BeaconID, &inc.Status, &inc.Priority, &inc.SystemWide, &first, &last, &resolvedAt); err != nil {
		return inc, err
	}
	inc.FirstSignalAt = fromMillis(first)
	inc.LastSignalAt = fromMillis(last)
	inc.ResolvedAt = timePtr(resolvedAt)
	return inc, nil
}

// FindOpenIncident returns the most recent open incident at the beacon whose
// last signal is at or after since, or nil when there is none.
func (q *queries) FindOpenIncident(ctx context.Context, beaconID string, since time.Time) (*models.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE beacon_id = ?
		  AND status IN (?, ?, ?)
		  AND last_signal_at >= ?
		ORDER BY last_signal_at DESC
		LIMIT 1
	`
	row := q.q.QueryRowContext(ctx, query, beaconID,
		models.IncidentCreated, models.IncidentAssigned, models.IncidentInProgress, millis(since))
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error finding open incident at %s: %w", beaconID, err)
	}
	return &inc, nil
}

func (q *queries) InsertIncident(ctx context.Context, inc *models.Incident) error {
	query := `
		INSERT INTO incidents (` + incidentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.q.ExecContext(ctx, query, inc.ID, inc.BeaconID, inc.Status, inc.Priority, inc.SystemWide,
		millis(inc.FirstSignalAt), millis(inc.LastSignalAt), nullMillis(inc.ResolvedAt))
	if err != nil {
		return fmt.Errorf("error inserting incident: %w", err)
	}
	return nil
}

func (q *queries) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting incident %s: %w", id, err)
	}
	return &inc, nil
}

// RecordSignal bumps last_signal_at and stores priority, which the caller has
// already raised to the max of the current and the incoming value.
func (q *queries) RecordSignal(ctx context.Context, incidentID string, at time.Time, priority models.Priority) error {
	query := `
		UPDATE incidents SET
			last_signal_at = MAX(last_signal_at, ?),
			priority = ?
		WHERE id = ?
	`
	res, err := q.q.ExecContext(ctx, query, millis(at), priority, incidentID)
	if err != nil {
		return fmt.Errorf("error recording signal on incident %s: %w", incidentID, err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// TransitionIncident moves the incident from one status to another. It
// reports false when the incident was not in the from status.
func (q *queries) TransitionIncident(ctx context.Context, id string, from, to models.IncidentStatus, at time.Time) (bool, error) {
	var resolvedAt sql.NullInt64
	if to == models.IncidentResolved {
		resolvedAt = sql.NullInt64{Int64: millis(at), Valid: true}
	}
	query := `
		UPDATE incidents SET
			status = ?,
			resolved_at = COALESCE(?, resolved_at)
		WHERE id = ? AND status = ?
	`
	res, err := q.q.ExecContext(ctx, query, to, resolvedAt, id, from)
	if err != nil {
		return false, fmt.Errorf("error transitioning incident %s: %w", id, err)
	}
	return affected(res)
}

func (q *queries) InsertSignal(ctx context.Context, s *models.Signal) error {
	query := `
		INSERT INTO signals (id, incident_id, type, source, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := q.q.ExecContext(ctx, query, s.ID, s.IncidentID, s.Type, s.Source, s.Priority, millis(s.CreatedAt)); err != nil {
		return fmt.Errorf("error inserting signal: %w", err)
	}
	return nil
}

func (q *queries) ListSignals(ctx context.Context, incidentID string) ([]models.Signal, error) {
	query := `
		SELECT id, incident_id, type, source, priority, created_at
		FROM signals
		WHERE incident_id = ?
		ORDER BY created_at, id
	`
	rows, err := q.q.QueryContext(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("error listing signals: %w", err)
	}
	defer rows.Close()

	var signals []models.Signal
	for rows.Next() {
		var (
			s  models.Signal
			at int64
		)
		if err := rows.Scan(&s.ID, &s.IncidentID, &s.Type, &s.Source, &s.Priority, &at); err != nil {
			return nil, fmt.Errorf("error scanning signal: %w", err)
		}
		s.CreatedAt = fromMillis(at)
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

func (q *queries) ListIncidents(ctx context.Context, opts IncidentFilter) ([]models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE 1=1`
	var args []any

	if opts.Status != nil {
		query += " AND status = ?"
		args = append(args, *opts.Status)
	}
	if opts.BeaconID != "" {
		query += " AND beacon_id = ?"
		args = append(args, opts.BeaconID)
	}
	if opts.Since != nil {
		query += " AND last_signal_at >= ?"
		args = append(args, millis(*opts.Since))
	}

	query += " ORDER BY last_signal_at DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing incidents: %w", err)
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning incident: %w", err)
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}
