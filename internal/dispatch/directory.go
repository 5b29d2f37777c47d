package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// UpdateLocation records that the guard was seen at beaconID at the given
// time. Repeating a call is harmless and a report older than the last one is
// ignored. A zero at means now.
func (e *Engine) UpdateLocation(ctx context.Context, guardID, beaconID string, at time.Time) error {
	if strings.TrimSpace(guardID) == "" {
		return invalid("guard_id", "required")
	}
	if !e.graph.Load().Has(beaconID) {
		return invalid("beacon_id", "unknown or inactive beacon %q", beaconID)
	}
	if at.IsZero() {
		at = e.now()
	}

	ok, err := e.store.UpdateGuardLocation(ctx, guardID, beaconID, at)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: guard %s", ErrNotFound, guardID)
	}
	return nil
}

// SetOnDuty starts or ends a guard's shift. An assignment already held is not
// affected.
func (e *Engine) SetOnDuty(ctx context.Context, guardID string, onDuty bool) error {
	if strings.TrimSpace(guardID) == "" {
		return invalid("guard_id", "required")
	}
	ok, err := e.store.SetGuardOnDuty(ctx, guardID, onDuty)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: guard %s", ErrNotFound, guardID)
	}
	e.log.Info("guard duty changed", "guard_id", guardID, "on_duty", onDuty)
	return nil
}
