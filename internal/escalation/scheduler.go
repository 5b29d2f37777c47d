// Package escalation runs the periodic sweep that expires unanswered
// assignment alerts so the engine can offer the incident to the next guard.
package escalation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mr1hm/guard-dispatch/internal/models"
)

// Expirer is the part of the dispatch engine the sweep drives.
type Expirer interface {
	DueAlerts(ctx context.Context, now time.Time) ([]models.Alert, error)
	Expire(ctx context.Context, alertID string) (bool, error)
}

type Scheduler struct {
	expirer  Expirer
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger
	wg       sync.WaitGroup
}

func New(expirer Expirer, interval time.Duration, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		expirer:  expirer,
		interval: interval,
		now:      now,
		log:      slog.Default().With("component", "escalation"),
	}
}

// Start runs the sweep every interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	s.log.Info("starting escalation sweep", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("escalation sweep shutting down")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep expires every alert due at the time it starts, one at a time. A
// failure on one alert is logged and the sweep moves on. It returns how many
// alerts were expired.
func (s *Scheduler) Sweep(ctx context.Context) int {
	due, err := s.expirer.DueAlerts(ctx, s.now())
	if err != nil {
		s.log.Error("listing due alerts failed", "error", err)
		return 0
	}

	expired := 0
	for _, a := range due {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.expirer.Expire(ctx, a.ID)
		if err != nil {
			s.log.Error("expiring alert failed", "alert_id", a.ID, "incident_id", a.IncidentID, "error", err)
			continue
		}
		if ok {
			expired++
		}
	}

	if len(due) > 0 {
		s.log.Debug("sweep complete", "due", len(due), "expired", expired)
	}
	return expired
}

// Stop waits for the sweep goroutine to exit after its context is cancelled.
func (s *Scheduler) Stop() {
	s.wg.Wait()
	s.log.Info("escalation scheduler stopped")
}
