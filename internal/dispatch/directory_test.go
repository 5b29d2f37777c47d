package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mr1hm/guard-dispatch/internal/models"
)

func TestUpdateLocation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.guard("G1", "")

	res := h.submit("B1", models.SignalUserReport, models.PriorityLow)
	if h.rec.exhausted() != 1 {
		t.Fatal("expected exhaustion while G1's location is unknown")
	}

	if err := h.engine.UpdateLocation(ctx, "G1", "B2", time.Time{}); err != nil {
		t.Fatalf("UpdateLocation failed: %v", err)
	}
	// Repeating the same report is harmless.
	if err := h.engine.UpdateLocation(ctx, "G1", "B2", time.Time{}); err != nil {
		t.Fatalf("repeated UpdateLocation failed: %v", err)
	}

	g, _ := h.store.GetGuard(ctx, "G1")
	if g.CurrentBeacon == nil || *g.CurrentBeacon != "B2" || !g.LastLocationAt.Equal(h.clock.Now()) {
		t.Errorf("unexpected guard after update: %+v", g)
	}

	if n, err := h.engine.Redispatch(ctx, res.IncidentID); err != nil || n != 1 {
		t.Errorf("expected the located guard to be found, got %d (%v)", n, err)
	}
}

func TestUpdateLocation_StaleIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.guard("G1", "")

	now := h.clock.Now()
	h.engine.UpdateLocation(ctx, "G1", "B4", now)
	h.engine.UpdateLocation(ctx, "G1", "B1", now.Add(-15*time.Second))

	g, _ := h.store.GetGuard(ctx, "G1")
	if *g.CurrentBeacon != "B4" {
		t.Errorf("expected the newer report to win, got %s", *g.CurrentBeacon)
	}
}

func TestUpdateLocation_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.guard("G1", "B1")

	if err := h.engine.UpdateLocation(ctx, "", "B1", time.Time{}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for empty guard, got %v", err)
	}
	if err := h.engine.UpdateLocation(ctx, "G1", "B42", time.Time{}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for unknown beacon, got %v", err)
	}
	if err := h.engine.UpdateLocation(ctx, "ghost", "B1", time.Time{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown guard, got %v", err)
	}
}

func TestSetOnDuty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.guard("G1", "B1")

	if err := h.engine.SetOnDuty(ctx, "G1", false); err != nil {
		t.Fatalf("SetOnDuty failed: %v", err)
	}
	res := h.submit("B1", models.SignalPanic, "")
	if len(h.alerts(res.IncidentID)) != 0 {
		t.Error("off-duty guards must not be alerted")
	}

	if err := h.engine.SetOnDuty(ctx, "G1", true); err != nil {
		t.Fatalf("SetOnDuty failed: %v", err)
	}
	if n, _ := h.engine.Redispatch(ctx, res.IncidentID); n != 1 {
		t.Errorf("expected G1 to be alerted once back on duty, got %d", n)
	}

	if err := h.engine.SetOnDuty(ctx, "ghost", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
