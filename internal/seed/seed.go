// Package seed loads the site roster (beacons, proximity edges and guards)
// from YAML and writes it to the store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mr1hm/guard-dispatch/internal/models"
	"github.com/mr1hm/guard-dispatch/internal/repository"
)

type File struct {
	Beacons []Beacon `yaml:"beacons"`
	Edges   []Edge   `yaml:"edges"`
	Guards  []Guard  `yaml:"guards"`
}

type Beacon struct {
	ID       string `yaml:"id"`
	Building string `yaml:"building,omitempty"`
	Floor    string `yaml:"floor,omitempty"`
	Label    string `yaml:"label,omitempty"`
	Active   *bool  `yaml:"active,omitempty"` // defaults to true
}

type Edge struct {
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Priority int    `yaml:"priority"`
}

type Guard struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name,omitempty"`
	Beacon string `yaml:"beacon,omitempty"`
	OnDuty bool   `yaml:"on_duty"`
}

// Store runs the roster writes as one transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(tx repository.Tx) error) error
}

type Summary struct {
	Beacons   int
	Edges     int
	NewGuards int
	Guards    int
}

func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening seed file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes and validates a seed file. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error decoding seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate reports every problem in the file at once.
func (f *File) Validate() error {
	var errs []error

	beacons := make(map[string]bool, len(f.Beacons))
	for i, b := range f.Beacons {
		switch {
		case b.ID == "":
			errs = append(errs, fmt.Errorf("beacons[%d]: id is required", i))
		case beacons[b.ID]:
			errs = append(errs, fmt.Errorf("beacons[%d]: duplicate id %s", i, b.ID))
		}
		beacons[b.ID] = true
	}

	pairs := make(map[[2]string]bool, len(f.Edges))
	for i, e := range f.Edges {
		if !beacons[e.From] {
			errs = append(errs, fmt.Errorf("edges[%d]: unknown beacon %q", i, e.From))
		}
		if !beacons[e.To] {
			errs = append(errs, fmt.Errorf("edges[%d]: unknown beacon %q", i, e.To))
		}
		if e.From == e.To {
			errs = append(errs, fmt.Errorf("edges[%d]: self loop on %s", i, e.From))
		}
		if e.Priority < 1 {
			errs = append(errs, fmt.Errorf("edges[%d]: priority must be >= 1, got %d", i, e.Priority))
		}
		pair := [2]string{e.From, e.To}
		if pairs[pair] {
			errs = append(errs, fmt.Errorf("edges[%d]: duplicate edge %s->%s", i, e.From, e.To))
		}
		pairs[pair] = true
	}

	guards := make(map[string]bool, len(f.Guards))
	for i, g := range f.Guards {
		switch {
		case g.ID == "":
			errs = append(errs, fmt.Errorf("guards[%d]: id is required", i))
		case guards[g.ID]:
			errs = append(errs, fmt.Errorf("guards[%d]: duplicate id %s", i, g.ID))
		}
		guards[g.ID] = true
		if g.Beacon != "" && !beacons[g.Beacon] {
			errs = append(errs, fmt.Errorf("guards[%d]: unknown beacon %q", i, g.Beacon))
		}
	}

	return errors.Join(errs...)
}

// Apply upserts the file in a single transaction, so a failure leaves the
// store as it was. Beacons and edges are overwritten; edges missing from the
// file are kept. Guards already in the store keep their live location and
// duty state; only their name is refreshed.
func Apply(ctx context.Context, st Store, f *File, now time.Time) (Summary, error) {
	var sum Summary
	err := st.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		sum, err = apply(ctx, tx, f, now)
		return err
	})
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func apply(ctx context.Context, tx repository.Tx, f *File, now time.Time) (Summary, error) {
	var sum Summary

	for _, b := range f.Beacons {
		active := b.Active == nil || *b.Active
		if err := tx.UpsertBeacon(ctx, models.Beacon{ID: b.ID, Building: b.Building, Floor: b.Floor, Label: b.Label, Active: active}); err != nil {
			return sum, err
		}
		sum.Beacons++
	}

	for _, e := range f.Edges {
		if err := tx.UpsertEdge(ctx, models.ProximityEdge{FromBeacon: e.From, ToBeacon: e.To, Priority: e.Priority}); err != nil {
			return sum, err
		}
		sum.Edges++
	}

	for _, g := range f.Guards {
		guard, err := tx.GetGuard(ctx, g.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			guard = &models.Guard{ID: g.ID, OnDuty: g.OnDuty}
			if g.Beacon != "" {
				beacon := g.Beacon
				guard.CurrentBeacon = &beacon
				guard.LastLocationAt = &now
			}
			sum.NewGuards++
		case err != nil:
			return sum, err
		}
		guard.Name = g.Name
		if err := tx.UpsertGuard(ctx, *guard); err != nil {
			return sum, err
		}
		sum.Guards++
	}

	return sum, nil
}
