package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mr1hm/guard-dispatch/internal/models"
	"github.com/mr1hm/guard-dispatch/internal/repository"
)

// incidentOf finds which incident an alert belongs to so the caller can take
// that incident's lock before reading the alert again inside a transaction.
func (e *Engine) incidentOf(ctx context.Context, alertID string) (string, error) {
	a, err := e.store.GetAlert(ctx, alertID)
	if err != nil {
		return "", err
	}
	return a.IncidentID, nil
}

// Accept turns the guard's alert into the incident's assignment. The alert,
// the incident, the sibling offers and the new assignment change together or
// not at all. A guard acting on an incident someone else already took gets
// ErrRaceLost.
func (e *Engine) Accept(ctx context.Context, alertID, guardID string) (models.Assignment, error) {
	incidentID, err := e.incidentOf(ctx, alertID)
	if err != nil {
		return models.Assignment{}, err
	}

	unlock := e.lockIncident(incidentID)
	defer unlock()

	var (
		asg       models.Assignment
		withdrawn int64
	)
	err = e.store.WithTx(ctx, func(tx repository.Tx) error {
		alert, err := tx.GetAlert(ctx, alertID)
		if err != nil {
			return err
		}
		inc, err := tx.GetIncident(ctx, alert.IncidentID)
		if err != nil {
			return err
		}
		busy, err := tx.GuardBusy(ctx, guardID)
		if err != nil {
			return err
		}

		check := CanAccept(AcceptContext{Alert: *alert, GuardID: guardID, IncidentStatus: inc.Status, GuardBusy: busy})
		if err := check.Err(); err != nil {
			return err
		}

		now := e.now()
		ok, err := tx.TransitionIncident(ctx, inc.ID, models.IncidentCreated, models.IncidentAssigned, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: incident %s", ErrRaceLost, inc.ID)
		}

		ok, err = tx.TransitionAlert(ctx, alert.ID, models.AlertSent, models.AlertAccepted, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: alert %s", ErrAlertClosed, alert.ID)
		}

		withdrawn, err = tx.AutoDeclineSiblings(ctx, inc.ID, alert.ID, now)
		if err != nil {
			return err
		}

		asg = models.Assignment{
			ID:         uuid.NewString(),
			IncidentID: inc.ID,
			GuardID:    guardID,
			AlertID:    alert.ID,
			Active:     true,
			CreatedAt:  now,
		}
		return tx.InsertAssignment(ctx, &asg)
	})
	if err != nil {
		return models.Assignment{}, err
	}

	e.log.Info("alert accepted",
		"incident_id", asg.IncidentID,
		"alert_id", alertID,
		"guard_id", guardID,
		"auto_declined", withdrawn,
	)
	return asg, nil
}

// Decline closes the guard's offer and, if the incident is still waiting,
// offers it to the next nearest guard nobody has asked yet.
func (e *Engine) Decline(ctx context.Context, alertID, guardID string) error {
	incidentID, err := e.incidentOf(ctx, alertID)
	if err != nil {
		return err
	}

	unlock := e.lockIncident(incidentID)
	defer unlock()

	var (
		inc          *models.Incident
		replacements []models.Alert
	)
	err = e.store.WithTx(ctx, func(tx repository.Tx) error {
		alert, err := tx.GetAlert(ctx, alertID)
		if err != nil {
			return err
		}
		if err := CanDecline(*alert, guardID).Err(); err != nil {
			return err
		}

		ok, err := tx.TransitionAlert(ctx, alert.ID, models.AlertSent, models.AlertDeclined, e.now())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: alert %s", ErrAlertClosed, alert.ID)
		}

		inc, replacements, err = e.replaceTx(ctx, tx, alert.IncidentID)
		return err
	})
	if err != nil {
		return err
	}

	e.log.Info("alert declined", "incident_id", inc.ID, "alert_id", alertID, "guard_id", guardID, "replacements", len(replacements))
	e.afterReplacement(ctx, *inc, replacements)
	return nil
}

// Expire closes an unanswered offer whose deadline has passed and escalates
// like Decline. It reports false, with no error, when the alert was answered,
// was already expired or is not yet due, so the sweep can call it blindly.
func (e *Engine) Expire(ctx context.Context, alertID string) (bool, error) {
	incidentID, err := e.incidentOf(ctx, alertID)
	if err != nil {
		return false, err
	}

	unlock := e.lockIncident(incidentID)
	defer unlock()

	var (
		expired      bool
		inc          *models.Incident
		replacements []models.Alert
	)
	err = e.store.WithTx(ctx, func(tx repository.Tx) error {
		alert, err := tx.GetAlert(ctx, alertID)
		if err != nil {
			return err
		}
		now := e.now()
		if !CanExpire(*alert, now).Allowed {
			return nil
		}

		expired, err = tx.TransitionAlert(ctx, alert.ID, models.AlertSent, models.AlertExpired, now)
		if err != nil || !expired {
			return err
		}

		inc, replacements, err = e.replaceTx(ctx, tx, alert.IncidentID)
		return err
	})
	if err != nil {
		return false, err
	}
	if !expired {
		return false, nil
	}

	e.log.Info("alert expired", "incident_id", inc.ID, "alert_id", alertID, "replacements", len(replacements))
	e.afterReplacement(ctx, *inc, replacements)
	return true, nil
}

func (e *Engine) afterReplacement(ctx context.Context, inc models.Incident, replacements []models.Alert) {
	if inc.Status != models.IncidentCreated {
		return
	}
	e.afterDispatch(ctx, inc, e.policy.Replacement(), replacements)
}

// Resolve closes the incident and releases its assigned guard. Alerts are
// left as they are.
func (e *Engine) Resolve(ctx context.Context, incidentID string) error {
	unlock := e.lockIncident(incidentID)
	defer unlock()

	var released string
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		inc, err := tx.GetIncident(ctx, incidentID)
		if err != nil {
			return err
		}
		if err := CanResolve(*inc).Err(); err != nil {
			return err
		}

		now := e.now()
		ok, err := tx.TransitionIncident(ctx, inc.ID, inc.Status, models.IncidentResolved, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("incident %s changed status during resolve", inc.ID)
		}

		active, err := tx.ActiveAssignment(ctx, inc.ID)
		if err != nil || active == nil {
			return err
		}
		if _, err := tx.DeactivateAssignment(ctx, active.ID, now); err != nil {
			return err
		}
		released = active.GuardID
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info("incident resolved", "incident_id", incidentID, "released_guard", released)
	return nil
}

// Start lets the assigned guard mark the incident in progress.
func (e *Engine) Start(ctx context.Context, incidentID, guardID string) error {
	unlock := e.lockIncident(incidentID)
	defer unlock()

	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		inc, err := tx.GetIncident(ctx, incidentID)
		if err != nil {
			return err
		}
		active, err := tx.ActiveAssignment(ctx, incidentID)
		if err != nil {
			return err
		}
		if err := CanStart(*inc, active, guardID).Err(); err != nil {
			return err
		}

		ok, err := tx.TransitionIncident(ctx, inc.ID, models.IncidentAssigned, models.IncidentInProgress, e.now())
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("incident left ASSIGNED during start")
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info("incident in progress", "incident_id", incidentID, "guard_id", guardID)
	return nil
}
