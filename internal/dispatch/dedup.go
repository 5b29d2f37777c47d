package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/guard-dispatch/internal/models"
	"github.com/mr1hm/guard-dispatch/internal/repository"
)

type SignalInput struct {
	BeaconID string
	Type     models.SignalType
	// Priority overrides the type's default when set.
	Priority models.Priority
	Source   string
}

type SubmitResult struct {
	IncidentID string
	Created    bool
}

func (e *Engine) validateSignal(in SignalInput) (models.Priority, error) {
	if strings.TrimSpace(in.BeaconID) == "" {
		return "", invalid("beacon_id", "required")
	}
	if !e.graph.Load().Has(in.BeaconID) {
		return "", invalid("beacon_id", "unknown or inactive beacon %q", in.BeaconID)
	}
	if !in.Type.Valid() {
		return "", invalid("type", "unknown signal type %q", in.Type)
	}
	if in.Priority == "" {
		return in.Type.DefaultPriority(), nil
	}
	if !in.Priority.Valid() {
		return "", invalid("priority", "unknown priority %q", in.Priority)
	}
	return in.Priority, nil
}

// Submit records a signal. A signal at a beacon with an open incident whose
// last signal falls inside the dedup window is merged into it, raising its
// priority if needed; otherwise a new incident is created and dispatched.
// Merged signals never dispatch.
func (e *Engine) Submit(ctx context.Context, in SignalInput) (SubmitResult, error) {
	priority, err := e.validateSignal(in)
	if err != nil {
		return SubmitResult{}, err
	}

	unlock := e.lockBeacon(in.BeaconID)
	defer unlock()

	var (
		res    SubmitResult
		inc    models.Incident
		fan    Fanout
		alerts []models.Alert
	)
	err = e.store.WithTx(ctx, func(tx repository.Tx) error {
		now := e.now()

		open, err := tx.FindOpenIncident(ctx, in.BeaconID, now.Add(-e.cfg.DedupWindow))
		if err != nil {
			return err
		}

		if open != nil {
			raised := models.MaxPriority(open.Priority, priority)
			if err := tx.RecordSignal(ctx, open.ID, now, raised); err != nil {
				return err
			}
			if err := tx.InsertSignal(ctx, newSignal(open.ID, in, priority, now)); err != nil {
				return err
			}
			res = SubmitResult{IncidentID: open.ID}
			if raised != open.Priority {
				e.log.Info("incident priority raised", "incident_id", open.ID, "from", open.Priority, "to", raised)
			}
			return nil
		}

		inc = models.Incident{
			ID:            uuid.NewString(),
			BeaconID:      in.BeaconID,
			Status:        models.IncidentCreated,
			Priority:      priority,
			SystemWide:    in.Type.SystemWide(),
			FirstSignalAt: now,
			LastSignalAt:  now,
		}
		if err := tx.InsertIncident(ctx, &inc); err != nil {
			return err
		}
		if err := tx.InsertSignal(ctx, newSignal(inc.ID, in, priority, now)); err != nil {
			return err
		}

		fan = e.policy.For(inc)
		alerts, err = e.dispatchTx(ctx, tx, &inc, fan)
		if err != nil {
			return err
		}
		res = SubmitResult{IncidentID: inc.ID, Created: true}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}

	if !res.Created {
		e.log.Debug("signal merged", "incident_id", res.IncidentID, "beacon_id", in.BeaconID, "type", in.Type)
		return res, nil
	}

	e.log.Info("incident created",
		"incident_id", inc.ID,
		"beacon_id", inc.BeaconID,
		"priority", inc.Priority,
		"kind", fan.Kind,
		"alerts", len(alerts),
	)
	e.afterDispatch(ctx, inc, fan, alerts)
	return res, nil
}

func newSignal(incidentID string, in SignalInput, priority models.Priority, at time.Time) *models.Signal {
	return &models.Signal{
		ID:         uuid.NewString(),
		IncidentID: incidentID,
		Type:       in.Type,
		Source:     in.Source,
		Priority:   priority,
		CreatedAt:  at,
	}
}
