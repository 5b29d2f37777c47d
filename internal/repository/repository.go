package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/guard-dispatch/internal/models"
)

var ErrNotFound = errors.New("not found")

type IncidentFilter struct {
	Limit    int
	Status   *models.IncidentStatus
	BeaconID string
	Since    *time.Time
}

// Tx is the unit of work that engine transitions and roster writes run in.
// Conditional updates report whether the row was in the expected state.
type Tx interface {
	FindOpenIncident(ctx context.Context, beaconID string, since time.Time) (*models.Incident, error)
	InsertIncident(ctx context.Context, inc *models.Incident) error
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	RecordSignal(ctx context.Context, incidentID string, at time.Time, priority models.Priority) error
	TransitionIncident(ctx context.Context, id string, from, to models.IncidentStatus, at time.Time) (bool, error)
	InsertSignal(ctx context.Context, s *models.Signal) error

	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	AlertedGuards(ctx context.Context, incidentID string) ([]string, error)
	NextAlertRank(ctx context.Context, incidentID string) (int, error)
	InsertAlert(ctx context.Context, a *models.Alert) error
	TransitionAlert(ctx context.Context, id string, from, to models.AlertStatus, at time.Time) (bool, error)
	AutoDeclineSiblings(ctx context.Context, incidentID, acceptedID string, at time.Time) (int64, error)

	GetGuard(ctx context.Context, id string) (*models.Guard, error)
	UpsertGuard(ctx context.Context, g models.Guard) error
	AvailableGuardsAt(ctx context.Context, beaconIDs []string) ([]models.Guard, error)
	OnDutyGuards(ctx context.Context) ([]models.Guard, error)

	InsertAssignment(ctx context.Context, a *models.Assignment) error
	ActiveAssignment(ctx context.Context, incidentID string) (*models.Assignment, error)
	GuardBusy(ctx context.Context, guardID string) (bool, error)
	DeactivateAssignment(ctx context.Context, id string, at time.Time) (bool, error)

	UpsertBeacon(ctx context.Context, b models.Beacon) error
	UpsertEdge(ctx context.Context, e models.ProximityEdge) error
}

type Store interface {
	Tx

	// WithTx runs fn in a transaction, committing when fn returns nil.
	// fn must only use the Tx it is handed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	ListBeacons(ctx context.Context) ([]models.Beacon, error)
	ListEdges(ctx context.Context) ([]models.ProximityEdge, error)

	UpdateGuardLocation(ctx context.Context, guardID, beaconID string, at time.Time) (bool, error)
	SetGuardOnDuty(ctx context.Context, guardID string, onDuty bool) (bool, error)

	ListIncidents(ctx context.Context, opts IncidentFilter) ([]models.Incident, error)
	ListAlerts(ctx context.Context, incidentID string) ([]models.Alert, error)
	ListSignals(ctx context.Context, incidentID string) ([]models.Signal, error)
	ListAssignments(ctx context.Context, incidentID string) ([]models.Assignment, error)
	DueAlerts(ctx context.Context, now time.Time) ([]models.Alert, error)

	Close() error
}
