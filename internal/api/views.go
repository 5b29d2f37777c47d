package api

import (
	"time"

	"github.com/samber/lo"

	"github.com/mr1hm/guard-dispatch/internal/dispatch"
	"github.com/mr1hm/guard-dispatch/internal/models"
)

type IncidentView struct {
	ID            string     `json:"id"`
	BeaconID      string     `json:"beacon_id"`
	Status        string     `json:"status"`
	Priority      string     `json:"priority"`
	SystemWide    bool       `json:"system_wide"`
	FirstSignalAt time.Time  `json:"first_signal_at"`
	LastSignalAt  time.Time  `json:"last_signal_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

type SignalView struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Priority  string    `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

type AlertView struct {
	ID               string     `json:"id"`
	IncidentID       string     `json:"incident_id"`
	GuardID          string     `json:"guard_id"`
	Kind             string     `json:"kind"`
	Status           string     `json:"status"`
	Rank             int        `json:"rank"`
	SentAt           time.Time  `json:"sent_at"`
	ResponseDeadline *time.Time `json:"response_deadline,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

type AssignmentView struct {
	ID            string     `json:"id"`
	IncidentID    string     `json:"incident_id"`
	GuardID       string     `json:"guard_id"`
	AlertID       string     `json:"alert_id"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

type IncidentDetailView struct {
	IncidentView
	Signals     []SignalView     `json:"signals"`
	Alerts      []AlertView      `json:"alerts"`
	Assignments []AssignmentView `json:"assignments"`
}

func toIncidentView(i models.Incident) IncidentView {
	return IncidentView{
		ID:            i.ID,
		BeaconID:      i.BeaconID,
		Status:        string(i.Status),
		Priority:      string(i.Priority),
		SystemWide:    i.SystemWide,
		FirstSignalAt: i.FirstSignalAt,
		LastSignalAt:  i.LastSignalAt,
		ResolvedAt:    i.ResolvedAt,
	}
}

func toAlertView(a models.Alert) AlertView {
	return AlertView{
		ID:               a.ID,
		IncidentID:       a.IncidentID,
		GuardID:          a.GuardID,
		Kind:             string(a.Kind),
		Status:           string(a.Status),
		Rank:             a.Rank,
		SentAt:           a.SentAt,
		ResponseDeadline: a.ResponseDeadline,
		ResolvedAt:       a.ResolvedAt,
	}
}

func toAssignmentView(a models.Assignment) AssignmentView {
	return AssignmentView{
		ID:            a.ID,
		IncidentID:    a.IncidentID,
		GuardID:       a.GuardID,
		AlertID:       a.AlertID,
		Active:        a.Active,
		CreatedAt:     a.CreatedAt,
		DeactivatedAt: a.DeactivatedAt,
	}
}

func toIncidentViews(incidents []models.Incident) []IncidentView {
	return lo.Map(incidents, func(i models.Incident, _ int) IncidentView {
		return toIncidentView(i)
	})
}

func toDetailView(d dispatch.IncidentDetail) IncidentDetailView {
	return IncidentDetailView{
		IncidentView: toIncidentView(d.Incident),
		Signals: lo.Map(d.Signals, func(s models.Signal, _ int) SignalView {
			return SignalView{
				ID:        s.ID,
				Type:      string(s.Type),
				Source:    s.Source,
				Priority:  string(s.Priority),
				CreatedAt: s.CreatedAt,
			}
		}),
		Alerts: lo.Map(d.Alerts, func(a models.Alert, _ int) AlertView {
			return toAlertView(a)
		}),
		Assignments: lo.Map(d.Assignments, func(a models.Assignment, _ int) AssignmentView {
			return toAssignmentView(a)
		}),
	}
}
