package models

import "time"

type AlertKind string

const (
	AlertAssignment AlertKind = "ASSIGNMENT"
	AlertBroadcast  AlertKind = "BROADCAST"
)

type AlertStatus string

const (
	AlertSent         AlertStatus = "SENT"
	AlertAccepted     AlertStatus = "ACCEPTED"
	AlertDeclined     AlertStatus = "DECLINED"
	AlertExpired      AlertStatus = "EXPIRED"
	AlertAutoDeclined AlertStatus = "AUTO_DECLINED"
)

func (s AlertStatus) Terminal() bool {
	return s != AlertSent
}

type Alert struct {
	ID               string
	IncidentID       string
	GuardID          string
	Kind             AlertKind
	Status           AlertStatus
	Rank             int // position in the search order across the incident
	SentAt           time.Time
	ResponseDeadline *time.Time // nil for BROADCAST
	ResolvedAt       *time.Time
}

// Assignment binds one guard to one incident. At most one is active per incident.
type Assignment struct {
	ID            string
	IncidentID    string
	GuardID       string
	AlertID       string
	Active        bool
	CreatedAt     time.Time
	DeactivatedAt *time.Time
}
