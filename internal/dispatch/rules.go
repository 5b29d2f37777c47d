package dispatch

import (
	"fmt"
	"time"

	"github.com/mr1hm/guard-dispatch/internal/models"
)

// The Can* functions below are pure precondition checks for alert and
// incident transitions. They read nothing and change nothing; the engine
// loads the rows inside its transaction and hands them in.

// RuleResult is the outcome of a precondition check. Cause is one of the
// package's sentinel errors when the transition is not allowed.
type RuleResult struct {
	Allowed bool
	Cause   error
	Reason  string
}

func (r RuleResult) Err() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", r.Cause, r.Reason)
}

func allow() RuleResult {
	return RuleResult{Allowed: true}
}

func deny(cause error, format string, args ...any) RuleResult {
	return RuleResult{Cause: cause, Reason: fmt.Sprintf(format, args...)}
}

type AcceptContext struct {
	Alert          models.Alert
	GuardID        string
	IncidentStatus models.IncidentStatus
	GuardBusy      bool
}

// CanAccept evaluates whether a guard may accept an alert.
// Rules:
// - the caller must be the alerted guard
// - the alert must be an assignment offer still in SENT
// - the incident must still be CREATED
// - the guard must not already hold an active assignment
func CanAccept(ctx AcceptContext) RuleResult {
	a := ctx.Alert
	if a.GuardID != ctx.GuardID {
		return deny(ErrPermission, "alert %s was sent to another guard", a.ID)
	}
	if a.Kind != models.AlertAssignment {
		return deny(ErrNotAssignment, "alert %s is a broadcast", a.ID)
	}
	if a.Status == models.AlertAutoDeclined {
		return deny(ErrRaceLost, "another guard accepted incident %s", a.IncidentID)
	}
	if a.Status != models.AlertSent {
		return deny(ErrAlertClosed, "alert %s is %s", a.ID, a.Status)
	}
	if ctx.IncidentStatus == models.IncidentResolved {
		return deny(ErrAlertClosed, "incident %s is resolved", a.IncidentID)
	}
	if ctx.IncidentStatus != models.IncidentCreated {
		return deny(ErrRaceLost, "incident %s is %s", a.IncidentID, ctx.IncidentStatus)
	}
	if ctx.GuardBusy {
		return deny(ErrGuardBusy, "guard %s is assigned elsewhere", ctx.GuardID)
	}
	return allow()
}

// CanDecline evaluates whether a guard may decline an alert.
// Rules:
// - the caller must be the alerted guard
// - the alert must be an assignment offer still in SENT
func CanDecline(alert models.Alert, guardID string) RuleResult {
	if alert.GuardID != guardID {
		return deny(ErrPermission, "alert %s was sent to another guard", alert.ID)
	}
	if alert.Kind != models.AlertAssignment {
		return deny(ErrNotAssignment, "alert %s is a broadcast", alert.ID)
	}
	if alert.Status != models.AlertSent {
		return deny(ErrAlertClosed, "alert %s is %s", alert.ID, alert.Status)
	}
	return allow()
}

// CanExpire evaluates whether the escalation sweep may expire an alert.
// Rules:
// - the alert must be an assignment offer still in SENT
// - now must be at or past its response deadline
func CanExpire(alert models.Alert, now time.Time) RuleResult {
	if alert.Kind != models.AlertAssignment || alert.ResponseDeadline == nil {
		return deny(ErrNotAssignment, "alert %s has no deadline", alert.ID)
	}
	if alert.Status != models.AlertSent {
		return deny(ErrAlertClosed, "alert %s is %s", alert.ID, alert.Status)
	}
	if now.Before(*alert.ResponseDeadline) {
		return deny(ErrValidation, "alert %s is not due until %s", alert.ID, alert.ResponseDeadline.Format(time.RFC3339))
	}
	return allow()
}

// CanResolve evaluates whether an incident may be closed.
// Rules:
// - the incident must not already be RESOLVED
func CanResolve(inc models.Incident) RuleResult {
	if inc.Status == models.IncidentResolved {
		return deny(ErrIncidentClosed, "incident %s", inc.ID)
	}
	return allow()
}

// CanStart evaluates whether a guard may mark an incident in progress.
// Rules:
// - the incident must be ASSIGNED
// - the caller must hold the incident's active assignment
func CanStart(inc models.Incident, active *models.Assignment, guardID string) RuleResult {
	if inc.Status != models.IncidentAssigned {
		return deny(ErrValidation, "incident %s is %s, not ASSIGNED", inc.ID, inc.Status)
	}
	if active == nil || active.GuardID != guardID {
		return deny(ErrPermission, "guard %s is not assigned to incident %s", guardID, inc.ID)
	}
	return allow()
}

// CanRedispatch evaluates whether an incident may be searched again.
// Rules:
// - the incident must still be CREATED
func CanRedispatch(inc models.Incident) RuleResult {
	switch inc.Status {
	case models.IncidentCreated:
		return allow()
	case models.IncidentResolved:
		return deny(ErrIncidentClosed, "incident %s", inc.ID)
	default:
		return deny(ErrRaceLost, "incident %s is %s", inc.ID, inc.Status)
	}
}
