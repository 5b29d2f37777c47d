// Package dispatch is the incident dispatch and escalation engine: it merges
// signals into incidents, searches the beacon graph for the nearest available
// guards, offers them the incident and escalates when they decline or fail to
// answer in time.
//
// Every transition on an incident runs under that incident's named lock and in
// a single store transaction. Signals are merged under a per-beacon lock.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/moby/locker"

	"github.com/mr1hm/guard-dispatch/internal/models"
	"github.com/mr1hm/guard-dispatch/internal/notify"
	"github.com/mr1hm/guard-dispatch/internal/proximity"
	"github.com/mr1hm/guard-dispatch/internal/repository"
)

const (
	DefaultDedupWindow     = 5 * time.Minute
	DefaultResponseTimeout = 45 * time.Second
)

type Config struct {
	DedupWindow     time.Duration
	ResponseTimeout time.Duration
}

type Engine struct {
	store    repository.Store
	graph    atomic.Pointer[proximity.Graph]
	policy   Policy
	notifier notify.Notifier
	monitor  notify.Monitor

	beaconLocks   *locker.Locker
	incidentLocks *locker.Locker

	cfg Config
	now func() time.Time
	log *slog.Logger
}

type Option func(*Engine)

func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithMonitor(m notify.Monitor) Option {
	return func(e *Engine) { e.monitor = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New builds an engine over store and loads the proximity graph from it.
func New(ctx context.Context, store repository.Store, cfg Config, opts ...Option) (*Engine, error) {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}

	e := &Engine{
		store:         store,
		policy:        Policy{ResponseTimeout: cfg.ResponseTimeout},
		notifier:      notify.Nop{},
		monitor:       notify.Nop{},
		beaconLocks:   locker.New(),
		incidentLocks: locker.New(),
		cfg:           cfg,
		now:           time.Now,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "dispatch")

	if err := e.ReloadGraph(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// ReloadGraph rebuilds the proximity graph from the store. Searches already
// running keep the graph they started with.
func (e *Engine) ReloadGraph(ctx context.Context) error {
	beacons, err := e.store.ListBeacons(ctx)
	if err != nil {
		return fmt.Errorf("error loading beacons: %w", err)
	}
	edges, err := e.store.ListEdges(ctx)
	if err != nil {
		return fmt.Errorf("error loading edges: %w", err)
	}
	g, err := proximity.New(beacons, edges)
	if err != nil {
		return fmt.Errorf("error building proximity graph: %w", err)
	}
	e.graph.Store(g)
	e.log.Info("proximity graph loaded", "beacons", len(beacons), "edges", len(edges))
	return nil
}

func (e *Engine) Graph() *proximity.Graph {
	return e.graph.Load()
}

func (e *Engine) Policy() Policy {
	return e.policy
}

func (e *Engine) lockIncident(id string) func() {
	e.incidentLocks.Lock(id)
	return func() { e.incidentLocks.Unlock(id) }
}

func (e *Engine) lockBeacon(id string) func() {
	e.beaconLocks.Lock(id)
	return func() { e.beaconLocks.Unlock(id) }
}

type IncidentDetail struct {
	Incident    models.Incident
	Signals     []models.Signal
	Alerts      []models.Alert
	Assignments []models.Assignment
}

func (e *Engine) IncidentDetail(ctx context.Context, id string) (IncidentDetail, error) {
	inc, err := e.store.GetIncident(ctx, id)
	if err != nil {
		return IncidentDetail{}, err
	}
	signals, err := e.store.ListSignals(ctx, id)
	if err != nil {
		return IncidentDetail{}, err
	}
	alerts, err := e.store.ListAlerts(ctx, id)
	if err != nil {
		return IncidentDetail{}, err
	}
	assignments, err := e.store.ListAssignments(ctx, id)
	if err != nil {
		return IncidentDetail{}, err
	}
	return IncidentDetail{Incident: *inc, Signals: signals, Alerts: alerts, Assignments: assignments}, nil
}

func (e *Engine) ListIncidents(ctx context.Context, filter repository.IncidentFilter) ([]models.Incident, error) {
	return e.store.ListIncidents(ctx, filter)
}

// DueAlerts lists outstanding assignment alerts whose deadline has passed.
func (e *Engine) DueAlerts(ctx context.Context, now time.Time) ([]models.Alert, error) {
	return e.store.DueAlerts(ctx, now)
}

func (e *Engine) Now() time.Time {
	return e.now()
}
