package proximity

import (
	"slices"
	"testing"

	"github.com/mr1hm/guard-dispatch/internal/models"
)

func beacons(ids ...string) []models.Beacon {
	out := make([]models.Beacon, len(ids))
	for i, id := range ids {
		out[i] = models.Beacon{ID: id, Active: true}
	}
	return out
}

func collect(g *Graph, origin string) []Ring {
	var rings []Ring
	for r := range g.Search(origin) {
		slices.Sort(r.Beacons)
		rings = append(rings, r)
	}
	return rings
}

func TestSearch_RingOrder(t *testing.T) {
	g, err := New(beacons("B1", "B2", "B3", "B4"), []models.ProximityEdge{
		{FromBeacon: "B1", ToBeacon: "B2", Priority: 1},
		{FromBeacon: "B1", ToBeacon: "B3", Priority: 1},
		{FromBeacon: "B1", ToBeacon: "B4", Priority: 2},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rings := collect(g, "B1")
	if len(rings) != 3 {
		t.Fatalf("expected 3 rings, got %d: %+v", len(rings), rings)
	}
	if rings[0].Level != 0 || !slices.Equal(rings[0].Beacons, []string{"B1"}) {
		t.Errorf("unexpected ring 0: %+v", rings[0])
	}
	if rings[1].Level != 1 || !slices.Equal(rings[1].Beacons, []string{"B2", "B3"}) {
		t.Errorf("unexpected ring 1: %+v", rings[1])
	}
	if rings[2].Level != 2 || !slices.Equal(rings[2].Beacons, []string{"B4"}) {
		t.Errorf("unexpected ring 2: %+v", rings[2])
	}
}

func TestSearch_MultiHopWithinRing(t *testing.T) {
	// B3 is two priority-1 hops away, so it belongs to ring 1 ahead of the
	// direct priority-2 neighbour.
	g, err := New(beacons("B1", "B2", "B3", "B4"), []models.ProximityEdge{
		{FromBeacon: "B1", ToBeacon: "B2", Priority: 1},
		{FromBeacon: "B2", ToBeacon: "B3", Priority: 1},
		{FromBeacon: "B1", ToBeacon: "B4", Priority: 2},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rings := collect(g, "B1")
	if len(rings) != 3 {
		t.Fatalf("expected 3 rings, got %+v", rings)
	}
	if !slices.Equal(rings[1].Beacons, []string{"B2", "B3"}) {
		t.Errorf("expected ring 1 [B2 B3], got %v", rings[1].Beacons)
	}
}

func TestSearch_Cycles(t *testing.T) {
	g, err := New(beacons("A", "B", "C"), []models.ProximityEdge{
		{FromBeacon: "A", ToBeacon: "B", Priority: 1},
		{FromBeacon: "B", ToBeacon: "C", Priority: 1},
		{FromBeacon: "C", ToBeacon: "A", Priority: 1},
		{FromBeacon: "B", ToBeacon: "A", Priority: 3},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	seen := map[string]int{}
	for r := range g.Search("A") {
		for _, b := range r.Beacons {
			seen[b]++
		}
	}
	for _, id := range []string{"A", "B", "C"} {
		if seen[id] != 1 {
			t.Errorf("expected %s yielded once, got %d", id, seen[id])
		}
	}
}

func TestSearch_DirectedEdges(t *testing.T) {
	g, err := New(beacons("A", "B"), []models.ProximityEdge{
		{FromBeacon: "B", ToBeacon: "A", Priority: 1},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rings := collect(g, "A")
	if len(rings) != 1 {
		t.Errorf("expected only the origin ring, got %+v", rings)
	}
}

func TestSearch_InactiveBeaconTraversedNotYielded(t *testing.T) {
	bs := beacons("A", "B", "C")
	bs[1].Active = false
	g, err := New(bs, []models.ProximityEdge{
		{FromBeacon: "A", ToBeacon: "B", Priority: 1},
		{FromBeacon: "B", ToBeacon: "C", Priority: 1},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	rings := collect(g, "A")
	if len(rings) != 2 || !slices.Equal(rings[1].Beacons, []string{"C"}) {
		t.Errorf("expected C reached through inactive B, got %+v", rings)
	}
	if g.Has("B") {
		t.Error("inactive beacon should not be reported by Has")
	}
}

func TestSearch_EarlyStopAndRestart(t *testing.T) {
	g, err := New(beacons("A", "B", "C"), []models.ProximityEdge{
		{FromBeacon: "A", ToBeacon: "B", Priority: 1},
		{FromBeacon: "A", ToBeacon: "C", Priority: 2},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	count := 0
	for range g.Search("A") {
		count++
		break
	}
	if count != 1 {
		t.Fatalf("expected to stop after first ring, got %d", count)
	}

	if rings := collect(g, "A"); len(rings) != 3 {
		t.Errorf("expected a fresh search to yield 3 rings, got %d", len(rings))
	}
}

func TestSearch_UnknownOrigin(t *testing.T) {
	g, _ := New(beacons("A"), nil)
	if rings := collect(g, "missing"); len(rings) != 0 {
		t.Errorf("expected no rings, got %+v", rings)
	}
}

func TestNew_RejectsBadEdges(t *testing.T) {
	if _, err := New(beacons("A", "B"), []models.ProximityEdge{{FromBeacon: "A", ToBeacon: "B", Priority: 0}}); err == nil {
		t.Error("expected error for priority 0")
	}
	if _, err := New(beacons("A", "B"), []models.ProximityEdge{
		{FromBeacon: "A", ToBeacon: "B", Priority: 1},
		{FromBeacon: "A", ToBeacon: "B", Priority: 2},
	}); err == nil {
		t.Error("expected error for duplicate (from,to) pair")
	}
	if _, err := New(beacons("A"), []models.ProximityEdge{{FromBeacon: "A", ToBeacon: "Z", Priority: 1}}); err == nil {
		t.Error("expected error for unknown beacon")
	}
}
