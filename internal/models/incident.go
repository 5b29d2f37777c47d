package models

import (
	"fmt"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

var priorityRank = map[Priority]int{
	PriorityLow:      1,
	PriorityMedium:   2,
	PriorityHigh:     3,
	PriorityCritical: 4,
}

// Rank orders priorities from LOW (1) to CRITICAL (4); unknown values rank 0.
func (p Priority) Rank() int {
	return priorityRank[p]
}

func (p Priority) Valid() bool {
	return p.Rank() > 0
}

func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// MaxPriority returns the higher of a and b. Incident priority only ever moves up.
func MaxPriority(a, b Priority) Priority {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

type IncidentStatus string

const (
	IncidentCreated    IncidentStatus = "CREATED"
	IncidentAssigned   IncidentStatus = "ASSIGNED"
	IncidentInProgress IncidentStatus = "IN_PROGRESS"
	IncidentResolved   IncidentStatus = "RESOLVED"
)

// Open reports whether new signals at the beacon may still merge into the incident.
func (s IncidentStatus) Open() bool {
	return s == IncidentCreated || s == IncidentAssigned || s == IncidentInProgress
}

type Incident struct {
	ID            string
	BeaconID      string
	Status        IncidentStatus
	Priority      Priority
	SystemWide    bool // raised by a building-wide signal; fans out as BROADCAST
	FirstSignalAt time.Time
	LastSignalAt  time.Time
	ResolvedAt    *time.Time
}

// Signal is an append-only record of one report merged into an incident.
type Signal struct {
	ID         string
	IncidentID string
	Type       SignalType
	Source     string // reporting surface, e.g. "mqtt", "api", "panic-button-7"
	Priority   Priority
	CreatedAt  time.Time
}
