package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/guard-dispatch/internal/models"
)

// available is derived from the assignments table, never stored.
const guardColumns = `
	g.id, g.name, g.current_beacon, g.on_duty, g.last_location_at,
	(g.on_duty = 1 AND NOT EXISTS (
		SELECT 1 FROM assignments a WHERE a.guard_id = g.id AND a.active = 1
	)) AS available
`

type scanner interface {
	Scan(dest ...any) error
}

func scanGuard(s scanner) (models.Guard, error) {
	var (
		g          models.Guard
		beacon     sql.NullString
		locationAt sql.NullInt64
	)
	if err := s.Scan(&g.ID, &g.Name, &beacon, &g.OnDuty, &locationAt, &g.Available); err != nil {
		return g, err
	}
	if beacon.Valid {
		g.CurrentBeacon = &beacon.String
	}
	g.LastLocationAt = timePtr(locationAt)
	return g, nil
}

func (q *queries) queryGuards(ctx context.Context, query string, args ...any) ([]models.Guard, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying guards: %w", err)
	}
	defer rows.Close()

	var guards []models.Guard
	for rows.Next() {
		g, err := scanGuard(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning guard: %w", err)
		}
		guards = append(guards, g)
	}
	return guards, rows.Err()
}

func (q *queries) UpsertGuard(ctx context.Context, g models.Guard) error {
	query := `
		INSERT INTO guards (id, name, current_beacon, on_duty, last_location_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			current_beacon = excluded.current_beacon,
			on_duty = excluded.on_duty,
			last_location_at = excluded.last_location_at
	`
	var beacon sql.NullString
	if g.CurrentBeacon != nil {
		beacon = sql.NullString{String: *g.CurrentBeacon, Valid: true}
	}
	if _, err := q.q.ExecContext(ctx, query, g.ID, g.Name, beacon, g.OnDuty, nullMillis(g.LastLocationAt)); err != nil {
		return fmt.Errorf("error upserting guard %s: %w", g.ID, err)
	}
	return nil
}

func (q *queries) GetGuard(ctx context.Context, id string) (*models.Guard, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+guardColumns+` FROM guards g WHERE g.id = ?`, id)
	g, err := scanGuard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting guard %s: %w", id, err)
	}
	return &g, nil
}

// UpdateGuardLocation moves the guard unless at is older than the last
// recorded update, in which case the row is left alone. It reports false only
// when the guard does not exist.
func (q *queries) UpdateGuardLocation(ctx context.Context, guardID, beaconID string, at time.Time) (bool, error) {
	query := `
		UPDATE guards SET
			current_beacon = CASE WHEN last_location_at IS NULL OR last_location_at <= ? THEN ? ELSE current_beacon END,
			last_location_at = CASE WHEN last_location_at IS NULL OR last_location_at <= ? THEN ? ELSE last_location_at END
		WHERE id = ?
	`
	ts := millis(at)
	res, err := q.q.ExecContext(ctx, query, ts, beaconID, ts, ts, guardID)
	if err != nil {
		return false, fmt.Errorf("error updating location for guard %s: %w", guardID, err)
	}
	return affected(res)
}

func (q *queries) SetGuardOnDuty(ctx context.Context, guardID string, onDuty bool) (bool, error) {
	res, err := q.q.ExecContext(ctx, `UPDATE guards SET on_duty = ? WHERE id = ?`, onDuty, guardID)
	if err != nil {
		return false, fmt.Errorf("error setting duty for guard %s: %w", guardID, err)
	}
	return affected(res)
}

// AvailableGuardsAt returns guards standing at any of the beacons who are on
// duty and hold no active assignment.
func (q *queries) AvailableGuardsAt(ctx context.Context, beaconIDs []string) ([]models.Guard, error) {
	if len(beaconIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(beaconIDs)), ",")
	args := make([]any, len(beaconIDs))
	for i, id := range beaconIDs {
		args[i] = id
	}

	query := `
		SELECT ` + guardColumns + `
		FROM guards g
		WHERE g.current_beacon IN (` + placeholders + `)
		  AND g.on_duty = 1
		  AND NOT EXISTS (SELECT 1 FROM assignments a WHERE a.guard_id = g.id AND a.active = 1)
		ORDER BY g.id
	`
	return q.queryGuards(ctx, query, args...)
}

func (q *queries) OnDutyGuards(ctx context.Context) ([]models.Guard, error) {
	return q.queryGuards(ctx, `SELECT `+guardColumns+` FROM guards g WHERE g.on_duty = 1 ORDER BY g.id`)
}
