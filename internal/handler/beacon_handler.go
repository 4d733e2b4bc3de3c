package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/campustest/testgate/internal/model"
	"github.com/campustest/testgate/internal/service"
	"github.com/campustest/testgate/internal/validator"
)

// BeaconHandler accepts the unload-time answer save. The browser fires it
// via sendBeacon while the page is being torn down: no headers, no reply
// read, no retry. The gateway token therefore travels in the body and the
// handler always answers 204: an attacker learns nothing from the status,
// and the sender is gone anyway.
type BeaconHandler struct {
	authService   *service.AuthService
	beaconService *service.BeaconService
	log           zerolog.Logger
}

// NewBeaconHandler creates a new BeaconHandler.
func NewBeaconHandler(authService *service.AuthService, beaconService *service.BeaconService, log zerolog.Logger) *BeaconHandler {
	return &BeaconHandler{
		authService:   authService,
		beaconService: beaconService,
		log:           log.With().Str("component", "beacon_handler").Logger(),
	}
}

// SaveBeacon godoc
// POST /api/v1/beacon
// Queues a final best-effort answer save for asynchronous delivery.
func (h *BeaconHandler) SaveBeacon(c *gin.Context) {
	var req model.BeaconRequest
	if fields := validator.Bind(c, &req); fields != nil {
		c.Status(http.StatusNoContent)
		return
	}

	claims, err := h.authService.ValidateToken(req.Token)
	if err != nil {
		h.log.Debug().Err(err).Msg("Beacon with invalid token dropped")
		c.Status(http.StatusNoContent)
		return
	}

	up := model.AnswerUpsert{
		QuestionID: req.QuestionID,
		OptionID:   req.OptionID,
		Text:       req.Text,
	}
	if err := h.beaconService.Enqueue(c.Request.Context(), claims.StudentID, req.TestID, claims.UpstreamToken, up); err != nil {
		h.log.Error().Err(err).Msg("Beacon enqueue failed")
	}

	c.Status(http.StatusNoContent)
}
