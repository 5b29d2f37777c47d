package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mr1hm/guard-dispatch/internal/models"
	"github.com/mr1hm/guard-dispatch/internal/notify"
	"github.com/mr1hm/guard-dispatch/internal/repository"
)

// FindCandidates walks the rings outward from the incident's beacon and
// returns up to maxWanted available guards not in excluded, nearest ring
// first. Finding fewer, or none, is not an error.
func (e *Engine) FindCandidates(ctx context.Context, incidentID string, excluded []string, maxWanted int) ([]string, error) {
	inc, err := e.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	guards, err := e.findCandidates(ctx, e.store, inc.BeaconID, excluded, maxWanted)
	if err != nil {
		return nil, err
	}
	return lo.Map(guards, func(g models.Guard, _ int) string { return g.ID }), nil
}

func (e *Engine) findCandidates(ctx context.Context, tx repository.Tx, beaconID string, excluded []string, maxWanted int) ([]models.Guard, error) {
	if maxWanted <= 0 {
		return nil, nil
	}

	var found []models.Guard
	for ring := range e.graph.Load().Search(beaconID) {
		guards, err := tx.AvailableGuardsAt(ctx, ring.Beacons)
		if err != nil {
			return nil, err
		}
		for _, g := range guards {
			if lo.Contains(excluded, g.ID) {
				continue
			}
			found = append(found, g)
			if len(found) == maxWanted {
				return found, nil
			}
		}
	}
	return found, nil
}

// dispatchTx creates the alerts fan calls for. Guards already alerted for the
// incident, in any status, are never alerted again.
func (e *Engine) dispatchTx(ctx context.Context, tx repository.Tx, inc *models.Incident, fan Fanout) ([]models.Alert, error) {
	alerted, err := tx.AlertedGuards(ctx, inc.ID)
	if err != nil {
		return nil, err
	}

	var targets []models.Guard
	if fan.Kind == models.AlertBroadcast {
		onDuty, err := tx.OnDutyGuards(ctx)
		if err != nil {
			return nil, err
		}
		targets = lo.Reject(onDuty, func(g models.Guard, _ int) bool { return lo.Contains(alerted, g.ID) })
	} else {
		targets, err = e.findCandidates(ctx, tx, inc.BeaconID, alerted, fan.MaxWanted)
		if err != nil {
			return nil, err
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	rank, err := tx.NextAlertRank(ctx, inc.ID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	alerts := make([]models.Alert, 0, len(targets))
	for i, g := range targets {
		a := models.Alert{
			ID:         uuid.NewString(),
			IncidentID: inc.ID,
			GuardID:    g.ID,
			Kind:       fan.Kind,
			Status:     models.AlertSent,
			Rank:       rank + i,
			SentAt:     now,
		}
		if fan.Kind == models.AlertAssignment {
			deadline := ceilMillis(now.Add(fan.Deadline))
			a.ResponseDeadline = &deadline
		}
		if err := tx.InsertAlert(ctx, &a); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// ceilMillis rounds t up to the store's millisecond precision so a stored
// deadline is never earlier than the one computed.
func ceilMillis(t time.Time) time.Time {
	if r := t.Truncate(time.Millisecond); !r.Equal(t) {
		return r.Add(time.Millisecond)
	}
	return t
}

// replaceTx looks for one more guard after a decline or expiry. It does
// nothing once the incident has left CREATED.
func (e *Engine) replaceTx(ctx context.Context, tx repository.Tx, incidentID string) (*models.Incident, []models.Alert, error) {
	inc, err := tx.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, nil, err
	}
	if inc.Status != models.IncidentCreated {
		return inc, nil, nil
	}
	alerts, err := e.dispatchTx(ctx, tx, inc, e.policy.Replacement())
	if err != nil {
		return nil, nil, err
	}
	return inc, alerts, nil
}

// afterDispatch runs once the transaction that created alerts has committed.
func (e *Engine) afterDispatch(ctx context.Context, inc models.Incident, fan Fanout, alerts []models.Alert) {
	if len(alerts) == 0 && fan.Kind == models.AlertAssignment {
		e.exhausted(ctx, inc, "no available guards reachable from beacon")
		return
	}
	for _, a := range alerts {
		n := notify.Notification{
			GuardID:    a.GuardID,
			IncidentID: inc.ID,
			AlertID:    a.ID,
			BeaconID:   inc.BeaconID,
			Priority:   inc.Priority,
			Kind:       a.Kind,
			Deadline:   a.ResponseDeadline,
			SentAt:     a.SentAt,
		}
		if err := e.notifier.Notify(ctx, n); err != nil {
			e.log.Warn("notification failed", "incident_id", inc.ID, "alert_id", a.ID, "guard_id", a.GuardID, "error", err)
		}
	}
}

func (e *Engine) exhausted(ctx context.Context, inc models.Incident, reason string) {
	e.log.Warn("no guards available", "incident_id", inc.ID, "beacon_id", inc.BeaconID, "priority", inc.Priority)
	err := e.monitor.Exhausted(ctx, notify.Exhaustion{
		IncidentID: inc.ID,
		BeaconID:   inc.BeaconID,
		Priority:   inc.Priority,
		Reason:     reason,
		At:         e.now(),
	})
	if err != nil {
		e.log.Warn("exhaustion report failed", "incident_id", inc.ID, "error", err)
	}
}

// Redispatch runs the initial fanout again for an incident still waiting in
// CREATED, skipping every guard already alerted. It returns the number of new
// alerts.
func (e *Engine) Redispatch(ctx context.Context, incidentID string) (int, error) {
	unlock := e.lockIncident(incidentID)
	defer unlock()

	var (
		inc    models.Incident
		fan    Fanout
		alerts []models.Alert
	)
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		current, err := tx.GetIncident(ctx, incidentID)
		if err != nil {
			return err
		}
		if err := CanRedispatch(*current).Err(); err != nil {
			return err
		}
		inc = *current
		fan = e.policy.For(inc)
		alerts, err = e.dispatchTx(ctx, tx, &inc, fan)
		return err
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("incident redispatched", "incident_id", inc.ID, "alerts", len(alerts))
	e.afterDispatch(ctx, inc, fan, alerts)
	return len(alerts), nil
}
