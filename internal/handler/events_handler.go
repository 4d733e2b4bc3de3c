package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/campustest/testgate/internal/middleware"
	"github.com/campustest/testgate/internal/model"
	"github.com/campustest/testgate/internal/repository"
	"github.com/campustest/testgate/internal/response"
	"github.com/campustest/testgate/internal/service"
	"github.com/campustest/testgate/internal/validator"
)

// EventsHandler records and lists advisory session events.
type EventsHandler struct {
	eventService *service.EventService
	eventRepo    *repository.SessionEventRepository
	log          zerolog.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(eventService *service.EventService, eventRepo *repository.SessionEventRepository, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		eventService: eventService,
		eventRepo:    eventRepo,
		log:          log.With().Str("component", "events_handler").Logger(),
	}
}

// ReportEvent godoc
// POST /api/v1/session/events
// Accepts an advisory UI observation (tab blur, context menu, fullscreen
// exit) and queues it for persistence.
func (h *EventsHandler) ReportEvent(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.ProctorEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ev := model.SessionEvent{
		StudentID: claims.StudentID,
		TestID:    req.TestID,
		Type:      req.Type,
		Payload:   req.Payload,
	}
	if err := h.eventService.Record(c.Request.Context(), ev); err != nil {
		h.log.Error().Err(err).Msg("Event record failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"status": "recorded"})
}

// ListEvents godoc
// GET /api/v1/session/tests/:test_id/events
// Returns the caller's recorded events for one test, oldest first. Recent
// events may still be in the queue and not visible yet.
func (h *EventsHandler) ListEvents(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	events, err := h.eventRepo.ListByTest(c.Request.Context(), c.Param("test_id"), claims.StudentID)
	if err != nil {
		h.log.Error().Err(err).Msg("Event list failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if events == nil {
		events = []model.SessionEvent{}
	}
	response.Success(c, http.StatusOK, gin.H{"events": events})
}
