package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/guard-dispatch/internal/dispatch"
	"github.com/mr1hm/guard-dispatch/internal/models"
	"github.com/mr1hm/guard-dispatch/internal/notify"
	"github.com/mr1hm/guard-dispatch/internal/repository"
)

// Service is the dispatch engine as seen by the HTTP layer.
type Service interface {
	Submit(ctx context.Context, in dispatch.SignalInput) (dispatch.SubmitResult, error)
	UpdateLocation(ctx context.Context, guardID, beaconID string, at time.Time) error
	SetOnDuty(ctx context.Context, guardID string, onDuty bool) error
	Accept(ctx context.Context, alertID, guardID string) (models.Assignment, error)
	Decline(ctx context.Context, alertID, guardID string) error
	Start(ctx context.Context, incidentID, guardID string) error
	Resolve(ctx context.Context, incidentID string) error
	Redispatch(ctx context.Context, incidentID string) (int, error)
	IncidentDetail(ctx context.Context, id string) (dispatch.IncidentDetail, error)
	ListIncidents(ctx context.Context, filter repository.IncidentFilter) ([]models.Incident, error)
}

type Handler struct {
	svc         Service
	broadcaster *notify.Broadcaster
	log         *slog.Logger
}

func NewHandler(svc Service, broadcaster *notify.Broadcaster) *Handler {
	return &Handler{
		svc:         svc,
		broadcaster: broadcaster,
		log:         slog.Default().With("component", "api"),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	api := r.Group("/api")
	api.POST("/signals", h.submitSignal)

	api.PUT("/guards/:id/location", h.updateLocation)
	api.PUT("/guards/:id/duty", h.setDuty)
	api.GET("/guards/:id/alerts/stream", h.streamAlerts)

	api.POST("/alerts/:id/accept", h.acceptAlert)
	api.POST("/alerts/:id/decline", h.declineAlert)

	api.GET("/incidents", h.listIncidents)
	api.GET("/incidents/:id", h.getIncident)
	api.POST("/incidents/:id/start", h.startIncident)
	api.POST("/incidents/:id/resolve", h.resolveIncident)
	api.POST("/incidents/:id/dispatch", h.redispatch)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type signalRequest struct {
	BeaconID string `json:"beacon_id" binding:"required"`
	Type     string `json:"type" binding:"required"`
	Priority string `json:"priority"`
	Source   string `json:"source"`
}

func (h *Handler) submitSignal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	typ, err := models.ParseSignalType(req.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "type"})
		return
	}
	in := dispatch.SignalInput{BeaconID: req.BeaconID, Type: typ, Source: req.Source}
	if in.Source == "" {
		in.Source = "api"
	}
	if req.Priority != "" {
		if in.Priority, err = models.ParsePriority(req.Priority); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "priority"})
			return
		}
	}

	res, err := h.svc.Submit(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"incident_id": res.IncidentID, "created": res.Created})
}

type locationRequest struct {
	BeaconID string     `json:"beacon_id" binding:"required"`
	At       *time.Time `json:"at"`
}

func (h *Handler) updateLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var at time.Time
	if req.At != nil {
		at = *req.At
	}
	if err := h.svc.UpdateLocation(c.Request.Context(), c.Param("id"), req.BeaconID, at); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type dutyRequest struct {
	OnDuty *bool `json:"on_duty" binding:"required"`
}

func (h *Handler) setDuty(c *gin.Context) {
	var req dutyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.SetOnDuty(c.Request.Context(), c.Param("id"), *req.OnDuty); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type guardRequest struct {
	GuardID string `json:"guard_id" binding:"required"`
}

func (h *Handler) acceptAlert(c *gin.Context) {
	var req guardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	asg, err := h.svc.Accept(c.Request.Context(), c.Param("id"), req.GuardID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAssignmentView(asg))
}

func (h *Handler) declineAlert(c *gin.Context) {
	var req guardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.Decline(c.Request.Context(), c.Param("id"), req.GuardID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) startIncident(c *gin.Context) {
	var req guardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.Start(c.Request.Context(), c.Param("id"), req.GuardID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) resolveIncident(c *gin.Context) {
	if err := h.svc.Resolve(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) redispatch(c *gin.Context) {
	n, err := h.svc.Redispatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts_sent": n})
}

func (h *Handler) getIncident(c *gin.Context) {
	detail, err := h.svc.IncidentDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toDetailView(detail))
}

func (h *Handler) listIncidents(c *gin.Context) {
	filter := repository.IncidentFilter{
		Limit: 20, // Default to 20 incidents if limit param not supplied
	}

	if s := c.Query("status"); s != "" {
		status := models.IncidentStatus(s)
		switch status {
		case models.IncidentCreated, models.IncidentAssigned, models.IncidentInProgress, models.IncidentResolved:
			filter.Status = &status
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + strconv.Quote(s), "field": "status"})
			return
		}
	}
	filter.BeaconID = c.Query("beacon_id")
	if s := c.Query("since"); s != "" {
		if t, err := parseSince(s); err == nil {
			filter.Since = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}

	incidents, err := h.svc.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": toIncidentViews(incidents)})
}

func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// streamAlerts holds a server-sent event stream of the guard's notifications
// open until the client goes away or the broadcaster shuts down.
func (h *Handler) streamAlerts(c *gin.Context) {
	if h.broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert stream unavailable"})
		return
	}

	guardID := c.Param("id")
	id, ch := h.broadcaster.Subscribe(guardID)
	defer h.broadcaster.Unsubscribe(id)

	h.log.Info("alert stream opened", "guard_id", guardID)
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case n, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("alert", n)
			return true
		}
	})
	h.log.Info("alert stream closed", "guard_id", guardID)
}

func (h *Handler) fail(c *gin.Context, err error) {
	var verr *dispatch.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, dispatch.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrPermission):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrRaceLost),
		errors.Is(err, dispatch.ErrAlertClosed),
		errors.Is(err, dispatch.ErrNotAssignment),
		errors.Is(err, dispatch.ErrGuardBusy),
		errors.Is(err, dispatch.ErrIncidentClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
