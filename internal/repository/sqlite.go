package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements Tx on top of a connection or a transaction.
type queries struct {
	q querier
}

type SQLiteDB struct {
	queries
	db *sql.DB
}

var _ Store = (*SQLiteDB)(nil)

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// SQLite has a single writer, and every connection to ":memory:" is a
	// separate database. One connection serialises transactions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := wrap(db)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

// dsn adds the pragmas that let dispatchctl and the service share a database
// file: writers wait up to five seconds for the lock instead of failing, and
// transactions take the write lock when they begin so a read-then-write never
// fails on a stale snapshot.
func dsn(path string) string {
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func wrap(db *sql.DB) *SQLiteDB {
	return &SQLiteDB{queries: queries{q: db}, db: db}
}

func (s *SQLiteDB) migrate() error {
	schema := `
		PRAGMA foreign_keys = ON;

		CREATE TABLE IF NOT EXISTS beacons (
			id TEXT PRIMARY KEY,
			building TEXT NOT NULL DEFAULT '',
			floor TEXT NOT NULL DEFAULT '',
			label TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1
		);

		CREATE TABLE IF NOT EXISTS proximity_edges (
			from_beacon TEXT NOT NULL REFERENCES beacons(id),
			to_beacon TEXT NOT NULL REFERENCES beacons(id),
			priority INTEGER NOT NULL CHECK (priority >= 1),
			PRIMARY KEY (from_beacon, to_beacon)
		);

		CREATE TABLE IF NOT EXISTS guards (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			current_beacon TEXT REFERENCES beacons(id),
			on_duty INTEGER NOT NULL DEFAULT 0,
			last_location_at INTEGER
		);

		CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			beacon_id TEXT NOT NULL REFERENCES beacons(id),
			status TEXT NOT NULL,
			priority TEXT NOT NULL,
			system_wide INTEGER NOT NULL DEFAULT 0,
			first_signal_at INTEGER NOT NULL,
			last_signal_at INTEGER NOT NULL,
			resolved_at INTEGER
		);

		CREATE TABLE IF NOT EXISTS signals (
			id TEXT PRIMARY KEY,
			incident_id TEXT NOT NULL REFERENCES incidents(id),
			type TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			incident_id TEXT NOT NULL REFERENCES incidents(id),
			guard_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			search_rank INTEGER NOT NULL,
			sent_at INTEGER NOT NULL,
			response_deadline INTEGER,
			resolved_at INTEGER,
			UNIQUE (incident_id, guard_id)
		);

		CREATE TABLE IF NOT EXISTS assignments (
			id TEXT PRIMARY KEY,
			incident_id TEXT NOT NULL REFERENCES incidents(id),
			guard_id TEXT NOT NULL,
			alert_id TEXT NOT NULL REFERENCES alerts(id),
			active INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			deactivated_at INTEGER
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_one_active ON assignments(incident_id) WHERE active = 1;
		CREATE INDEX IF NOT EXISTS idx_assignments_guard ON assignments(guard_id, active);
		CREATE INDEX IF NOT EXISTS idx_incidents_beacon ON incidents(beacon_id, last_signal_at);
		CREATE INDEX IF NOT EXISTS idx_signals_incident ON signals(incident_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_due ON alerts(status, response_deadline);
		CREATE INDEX IF NOT EXISTS idx_guards_beacon ON guards(current_beacon);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&queries{q: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("error rolling back transaction: %w", rbErr))
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: millis(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected: %w", err)
	}
	return n > 0, nil
}
