package dispatch

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/mr1hm/guard-dispatch/internal/models"
	"github.com/mr1hm/guard-dispatch/internal/repository"
)

// lookupRecorder records which beacons the candidate search asked about, in
// order.
type lookupRecorder struct {
	*repository.SQLiteDB
	mu      sync.Mutex
	lookups [][]string
}

func (r *lookupRecorder) AvailableGuardsAt(ctx context.Context, beaconIDs []string) ([]models.Guard, error) {
	r.mu.Lock()
	ring := slices.Clone(beaconIDs)
	slices.Sort(ring)
	r.lookups = append(r.lookups, ring)
	r.mu.Unlock()
	return r.SQLiteDB.AvailableGuardsAt(ctx, beaconIDs)
}

func TestFindCandidates_RingOrder(t *testing.T) {
	h := newHarness(t)
	h.guard("G4", "B4")

	inc := h.submit("B1", models.SignalUserReport, models.PriorityLow)
	// The LOW fanout already offered the incident to G4; search again from scratch.
	rec := &lookupRecorder{SQLiteDB: h.store}
	engine, err := New(context.Background(), rec, Config{}, WithClock(h.clock.Now))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got, err := engine.FindCandidates(context.Background(), inc.IncidentID, nil, 1)
	if err != nil {
		t.Fatalf("FindCandidates failed: %v", err)
	}
	if !slices.Equal(got, []string{"G4"}) {
		t.Fatalf("expected [G4], got %v", got)
	}

	want := [][]string{{"B1"}, {"B2", "B3"}, {"B4"}}
	if len(rec.lookups) != len(want) {
		t.Fatalf("expected lookups %v, got %v", want, rec.lookups)
	}
	for i := range want {
		if !slices.Equal(rec.lookups[i], want[i]) {
			t.Errorf("lookup %d: expected %v, got %v", i, want[i], rec.lookups[i])
		}
	}
}

func TestFindCandidates_NearestFirstAndExcluded(t *testing.T) {
	h := newHarness(t)
	h.guard("G5", "B5")
	h.guard("G2", "B2")
	h.guard("G1", "B1")
	h.guard("G4", "B4")

	res := h.submit("B1", models.SignalUserReport, models.PriorityLow)

	got, err := h.engine.FindCandidates(context.Background(), res.IncidentID, []string{"G1"}, 10)
	if err != nil {
		t.Fatalf("FindCandidates failed: %v", err)
	}
	if !slices.Equal(got, []string{"G2", "G4", "G5"}) {
		t.Errorf("expected [G2 G4 G5], got %v", got)
	}

	got, _ = h.engine.FindCandidates(context.Background(), res.IncidentID, nil, 2)
	if !slices.Equal(got, []string{"G1", "G2"}) {
		t.Errorf("expected [G1 G2], got %v", got)
	}
}

func TestFindCandidates_SkipsUnavailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.guard("G1", "B1")
	h.guard("G2", "B2")
	h.guard("G3", "")
	h.store.SetGuardOnDuty(ctx, "G2", false)

	res := h.submit("B1", models.SignalUserReport, models.PriorityLow)
	a := h.alertFor(res.IncidentID, "G1")
	if _, err := h.engine.Accept(ctx, a.ID, "G1"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	// G1 is now busy, G2 is off duty and G3 has no known location.
	other := h.submit("B2", models.SignalUserReport, models.PriorityLow)
	got, err := h.engine.FindCandidates(ctx, other.IncidentID, nil, 5)
	if err != nil {
		t.Fatalf("FindCandidates failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %v", got)
	}
}

func TestDispatch_CriticalWithOnlyTwoGuards(t *testing.T) {
	h := newHarness(t)
	h.guard("G1", "B1")
	h.guard("G4", "B4")

	res := h.submit("B1", models.SignalPanic, "")

	alerts := h.alerts(res.IncidentID)
	if len(alerts) != 2 {
		t.Fatalf("expected exactly 2 alerts, got %d", len(alerts))
	}
	for i, a := range alerts {
		if a.Kind != models.AlertAssignment || a.Status != models.AlertSent {
			t.Errorf("unexpected alert %+v", a)
		}
		if a.ResponseDeadline == nil || !a.ResponseDeadline.Equal(h.clock.Now().Add(45*time.Second)) {
			t.Errorf("expected deadline now+45s, got %v", a.ResponseDeadline)
		}
		if a.Rank != i {
			t.Errorf("expected rank %d, got %d", i, a.Rank)
		}
	}
	if alerts[0].GuardID != "G1" || alerts[1].GuardID != "G4" {
		t.Errorf("expected nearest guard first, got %s then %s", alerts[0].GuardID, alerts[1].GuardID)
	}
	if got := h.incident(res.IncidentID).Status; got != models.IncidentCreated {
		t.Errorf("expected incident to stay CREATED, got %s", got)
	}
	if h.rec.notified() != 2 {
		t.Errorf("expected 2 notifications, got %d", h.rec.notified())
	}
	if h.rec.exhausted() != 0 {
		t.Error("a partial fanout is not exhaustion")
	}
}

func TestDispatch_FanoutCounts(t *testing.T) {
	cases := map[models.Priority]int{
		models.PriorityCritical: 5,
		models.PriorityHigh:     3,
		models.PriorityMedium:   2,
		models.PriorityLow:      1,
	}
	for priority, want := range cases {
		t.Run(string(priority), func(t *testing.T) {
			h := newHarness(t)
			for _, g := range []string{"G1", "G2", "G3", "G4", "G5", "G6", "G7"} {
				h.guard(g, "B2")
			}
			res := h.submit("B1", models.SignalUserReport, priority)
			if got := len(h.alerts(res.IncidentID)); got != want {
				t.Errorf("expected %d alerts, got %d", want, got)
			}
		})
	}
}

func TestDispatch_NoCandidatesReportsExhaustion(t *testing.T) {
	h := newHarness(t)

	res := h.submit("B1", models.SignalMedical, "")

	if len(h.alerts(res.IncidentID)) != 0 {
		t.Error("expected no alerts")
	}
	if got := h.incident(res.IncidentID).Status; got != models.IncidentCreated {
		t.Errorf("expected CREATED, got %s", got)
	}
	if h.rec.exhausted() != 1 {
		t.Fatalf("expected one exhaustion report, got %d", h.rec.exhausted())
	}
	if e := h.rec.exhaustions[0]; e.IncidentID != res.IncidentID || e.BeaconID != "B1" || e.Priority != models.PriorityHigh {
		t.Errorf("unexpected exhaustion: %+v", e)
	}
}

func TestDispatch_SystemWideBroadcast(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.guard("G1", "B1")
	h.guard("G2", "")
	h.guard("G3", "B5")
	h.guard("G4", "B4")
	h.store.SetGuardOnDuty(ctx, "G4", false)

	// G3 holds an assignment elsewhere; broadcasts ignore availability.
	busy := h.submit("B5", models.SignalUserReport, models.PriorityLow)
	if _, err := h.engine.Accept(ctx, h.alertFor(busy.IncidentID, "G3").ID, "G3"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	res := h.submit("B2", models.SignalEvacuation, "")
	inc := h.incident(res.IncidentID)
	if !inc.SystemWide {
		t.Fatal("expected evacuation to be system-wide")
	}

	alerts := h.alerts(res.IncidentID)
	got := statuses(alerts)
	if len(alerts) != 3 || got["G1"] == "" || got["G2"] == "" || got["G3"] == "" {
		t.Fatalf("expected broadcast to G1, G2, G3, got %v", got)
	}
	for _, a := range alerts {
		if a.Kind != models.AlertBroadcast || a.ResponseDeadline != nil {
			t.Errorf("expected deadline-free broadcast, got %+v", a)
		}
	}

	if _, err := h.engine.Accept(ctx, alerts[0].ID, alerts[0].GuardID); !errors.Is(err, ErrNotAssignment) {
		t.Errorf("expected ErrNotAssignment on accept, got %v", err)
	}
	if err := h.engine.Decline(ctx, alerts[0].ID, alerts[0].GuardID); !errors.Is(err, ErrNotAssignment) {
		t.Errorf("expected ErrNotAssignment on decline, got %v", err)
	}

	h.clock.Advance(time.Hour)
	due, _ := h.engine.DueAlerts(ctx, h.clock.Now())
	for _, a := range due {
		if a.IncidentID == res.IncidentID {
			t.Errorf("broadcast alert %s must never come due", a.ID)
		}
	}
	if assignments, _ := h.store.ListAssignments(ctx, res.IncidentID); len(assignments) != 0 {
		t.Error("broadcast must never create an assignment")
	}
}

func TestDispatch_NotifierFailureKeepsAlerts(t *testing.T) {
	h := newHarness(t)
	h.guard("G1", "B1")
	h.rec.fail = errors.New("push gateway down")

	res := h.submit("B1", models.SignalPanic, "")

	if len(h.alerts(res.IncidentID)) != 1 {
		t.Error("alerts must survive a notifier failure")
	}
	if h.rec.notified() != 1 {
		t.Error("expected a single delivery attempt")
	}
}

func TestRedispatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.submit("B1", models.SignalFire, "")
	if h.rec.exhausted() != 1 {
		t.Fatalf("expected exhaustion on the first dispatch")
	}

	h.guard("G1", "B3")
	h.guard("G2", "B4")
	n, err := h.engine.Redispatch(ctx, res.IncidentID)
	if err != nil {
		t.Fatalf("Redispatch failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 new alerts, got %d", n)
	}

	// Nobody new to ask.
	n, err = h.engine.Redispatch(ctx, res.IncidentID)
	if err != nil || n != 0 {
		t.Errorf("expected 0 alerts on a second redispatch, got %d (%v)", n, err)
	}
	h.assertNoDuplicateAlerts(res.IncidentID)

	if _, err := h.engine.Accept(ctx, h.alertFor(res.IncidentID, "G1").ID, "G1"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if _, err := h.engine.Redispatch(ctx, res.IncidentID); !errors.Is(err, ErrRaceLost) {
		t.Errorf("expected ErrRaceLost for an assigned incident, got %v", err)
	}

	h.engine.Resolve(ctx, res.IncidentID)
	if _, err := h.engine.Redispatch(ctx, res.IncidentID); !errors.Is(err, ErrIncidentClosed) {
		t.Errorf("expected ErrIncidentClosed for a resolved incident, got %v", err)
	}
}
