package repository

import (
	"context"
	"fmt"

	"github.com/mr1hm/guard-dispatch/internal/models"
)

func (q *queries) UpsertBeacon(ctx context.Context, b models.Beacon) error {
	query := `
		INSERT INTO beacons (id, building, floor, label, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			building = excluded.building,
			floor = excluded.floor,
			label = excluded.label,
			active = excluded.active
	`
	if _, err := q.q.ExecContext(ctx, query, b.ID, b.Building, b.Floor, b.Label, b.Active); err != nil {
		return fmt.Errorf("error upserting beacon %s: %w", b.ID, err)
	}
	return nil
}

func (q *queries) UpsertEdge(ctx context.Context, e models.ProximityEdge) error {
	query := `
		INSERT INTO proximity_edges (from_beacon, to_beacon, priority)
		VALUES (?, ?, ?)
		ON CONFLICT(from_beacon, to_beacon) DO UPDATE SET priority = excluded.priority
	`
	if _, err := q.q.ExecContext(ctx, query, e.FromBeacon, e.ToBeacon, e.Priority); err != nil {
		return fmt.Errorf("error upserting edge %s->%s: %w", e.FromBeacon, e.ToBeacon, err)
	}
	return nil
}

func (q *queries) ListBeacons(ctx context.Context) ([]models.Beacon, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT id, building, floor, label, active FROM beacons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("error listing beacons: %w", err)
	}
	defer rows.Close()

	var beacons []models.Beacon
	for rows.Next() {
		var b models.Beacon
		if err := rows.Scan(&b.ID, &b.Building, &b.Floor, &b.Label, &b.Active); err != nil {
			return nil, fmt.Errorf("error scanning beacon: %w", err)
		}
		beacons = append(beacons, b)
	}
	return beacons, rows.Err()
}

func (q *queries) ListEdges(ctx context.Context) ([]models.ProximityEdge, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT from_beacon, to_beacon, priority FROM proximity_edges ORDER BY from_beacon, priority, to_beacon`)
	if err != nil {
		return nil, fmt.Errorf("error listing edges: %w", err)
	}
	defer rows.Close()

	var edges []models.ProximityEdge
	for rows.Next() {
		var e models.ProximityEdge
		if err := rows.Scan(&e.FromBeacon, &e.ToBeacon, &e.Priority); err != nil {
			return nil, fmt.Errorf("error scanning edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
