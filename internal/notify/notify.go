// Package notify carries outbound alert notifications and candidate
// exhaustion reports to the transports that deliver them.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/guard-dispatch/internal/models"
)

type Notification struct {
	GuardID    string           `json:"guard_id"`
	IncidentID string           `json:"incident_id"`
	AlertID    string           `json:"alert_id"`
	BeaconID   string           `json:"beacon_id"`
	Priority   models.Priority  `json:"priority"`
	Kind       models.AlertKind `json:"kind"`
	Deadline   *time.Time       `json:"response_deadline,omitempty"`
	SentAt     time.Time        `json:"sent_at"`
}

// Notifier delivers a notification. Callers do not retry on error.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Exhaustion reports an incident for which no eligible guard could be found.
type Exhaustion struct {
	IncidentID string          `json:"incident_id"`
	BeaconID   string          `json:"beacon_id"`
	Priority   models.Priority `json:"priority"`
	Reason     string          `json:"reason"`
	At         time.Time       `json:"at"`
}

type Monitor interface {
	Exhausted(ctx context.Context, e Exhaustion) error
}

type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }
func (Nop) Exhausted(context.Context, Exhaustion) error { return nil }

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Monitors []Monitor

func (m Monitors) Exhausted(ctx context.Context, e Exhaustion) error {
	var errs []error
	for _, monitor := range m {
		if err := monitor.Exhausted(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
