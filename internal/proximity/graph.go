// Package proximity holds the beacon adjacency graph and the ring search used
// to find the nearest responders to a beacon.
package proximity

import (
	"fmt"
	"iter"
	"slices"

	"github.com/mr1hm/guard-dispatch/internal/models"
)

type edge struct {
	to       int
	priority int
}

// Graph is an immutable arena of beacons with directed, prioritised edges.
// Build a new Graph to pick up admin changes.
type Graph struct {
	ids        []string
	active     []bool
	index      map[string]int
	out        [][]edge
	priorities []int // distinct edge priorities, ascending
}

// Ring is one step of a search: Level 0 is the origin beacon, Level k holds the
// beacons first reachable using edges of priority <= k.
type Ring struct {
	Level   int
	Beacons []string
}

func New(beacons []models.Beacon, edges []models.ProximityEdge) (*Graph, error) {
	g := &Graph{
		ids:    make([]string, 0, len(beacons)),
		active: make([]bool, 0, len(beacons)),
		index:  make(map[string]int, len(beacons)),
		out:    make([][]edge, len(beacons)),
	}

	for _, b := range beacons {
		if b.ID == "" {
			return nil, fmt.Errorf("beacon with empty id")
		}
		if _, dup := g.index[b.ID]; dup {
			return nil, fmt.Errorf("duplicate beacon %s", b.ID)
		}
		g.index[b.ID] = len(g.ids)
		g.ids = append(g.ids, b.ID)
		g.active = append(g.active, b.Active)
	}

	seen := make(map[[2]int]bool, len(edges))
	for _, e := range edges {
		from, ok := g.index[e.FromBeacon]
		if !ok {
			return nil, fmt.Errorf("edge references unknown beacon %s", e.FromBeacon)
		}
		to, ok := g.index[e.ToBeacon]
		if !ok {
			return nil, fmt.Errorf("edge references unknown beacon %s", e.ToBeacon)
		}
		if e.Priority < 1 {
			return nil, fmt.Errorf("edge %s->%s: priority must be >= 1, got %d", e.FromBeacon, e.ToBeacon, e.Priority)
		}
		key := [2]int{from, to}
		if seen[key] {
			return nil, fmt.Errorf("duplicate edge %s->%s", e.FromBeacon, e.ToBeacon)
		}
		seen[key] = true

		g.out[from] = append(g.out[from], edge{to: to, priority: e.Priority})
		if !slices.Contains(g.priorities, e.Priority) {
			g.priorities = append(g.priorities, e.Priority)
		}
	}
	slices.Sort(g.priorities)

	return g, nil
}

// Has reports whether the beacon is known and active.
func (g *Graph) Has(beaconID string) bool {
	i, ok := g.index[beaconID]
	return ok && g.active[i]
}

func (g *Graph) Len() int {
	return len(g.ids)
}

// Search yields rings outward from origin, lazily. Each beacon is yielded at
// most once, cycles are tolerated, and the sequence ends when no ring can add
// anything new. Inactive beacons are traversed but never yielded. An unknown
// origin yields nothing.
func (g *Graph) Search(origin string) iter.Seq[Ring] {
	return func(yield func(Ring) bool) {
		start, ok := g.index[origin]
		if !ok {
			return
		}

		visited := make([]bool, len(g.ids))
		visited[start] = true
		reached := []int{start}

		if g.active[start] {
			if !yield(Ring{Level: 0, Beacons: []string{origin}}) {
				return
			}
		}

		for _, level := range g.priorities {
			// Everything reached so far is closed under edges below level, so
			// expanding from it with edges <= level gives exactly the new ring.
			queue := slices.Clone(reached)
			var ring []string
			for len(queue) > 0 {
				cur := queue[0]
				queue = queue[1:]
				for _, e := range g.out[cur] {
					if e.priority > level || visited[e.to] {
						continue
					}
					visited[e.to] = true
					reached = append(reached, e.to)
					queue = append(queue, e.to)
					if g.active[e.to] {
						ring = append(ring, g.ids[e.to])
					}
				}
			}

			if len(ring) == 0 {
				continue
			}
			if !yield(Ring{Level: level, Beacons: ring}) {
				return
			}
		}
	}
}
