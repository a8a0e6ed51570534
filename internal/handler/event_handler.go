package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/circle-calendar-api/internal/dto"
	"github.com/noah-isme/circle-calendar-api/internal/models"
	"github.com/noah-isme/circle-calendar-api/internal/service"
	appErrors "github.com/noah-isme/circle-calendar-api/pkg/errors"
	"github.com/noah-isme/circle-calendar-api/pkg/response"
)

type eventLookup interface {
	Get(ctx context.Context, ref models.EventRef) (models.TimelineEntry, error)
}

type rescheduleGateway interface {
	AttemptReschedule(ctx context.Context, entry models.TimelineEntry, newStart, newEnd time.Time, actorID string) models.RescheduleResult
}

// EventHandler exposes event mutations.
type EventHandler struct {
	store   eventLookup
	gateway rescheduleGateway
}

// NewEventHandler constructs the handler.
func NewEventHandler(store eventLookup, gateway rescheduleGateway) *EventHandler {
	return &EventHandler{store: store, gateway: gateway}
}

// Reschedule godoc
// @Summary Move or resize an event
// @Description Runs one drag gesture to completion. Events the actor does not own are left untouched and reported as not applied.
// @Tags Events
// @Accept json
// @Produce json
// @Param source path string true "personal or organizational"
// @Param id path string true "Event ID"
// @Param payload body dto.RescheduleRequest true "New bounds"
// @Success 200 {object} response.Envelope
// @Router /events/{source}/{id}/schedule [patch]
func (h *EventHandler) Reschedule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	source := models.EventSource(c.Param("source"))
	if source != models.EventSourcePersonal && source != models.EventSourceOrganizational {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "source must be personal or organizational"))
		return
	}

	var req dto.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}

	entry, err := h.store.Get(c.Request.Context(), models.EventRef{Source: source, ID: c.Param("id")})
	if err != nil {
		response.Error(c, err)
		return
	}

	gesture := service.NewGesture(h.gateway)
	if err := gesture.Begin(entry); err != nil {
		response.Error(c, err)
		return
	}
	result, err := gesture.Drop(c.Request.Context(), req.Start, req.End, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
