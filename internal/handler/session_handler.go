package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/campustest/testgate/internal/middleware"
	"github.com/campustest/testgate/internal/model"
	"github.com/campustest/testgate/internal/response"
	"github.com/campustest/testgate/internal/session"
	"github.com/campustest/testgate/internal/validator"
)

// SessionHandler exposes the test-taking session over REST.
type SessionHandler struct {
	manager *session.Manager
	log     zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(manager *session.Manager, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		log:     log.With().Str("component", "session_handler").Logger(),
	}
}

// StartSession godoc
// POST /api/v1/session/tests/:test_id/start
// Opens a session for the test (idempotent per student+test). Loads the
// paper, restores prior progress and starts the countdown.
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	testID := c.Param("test_id")
	duration := time.Duration(req.DurationMinutes) * time.Minute

	sess, err := h.manager.Start(c.Request.Context(), claims.StudentID, testID, claims.UpstreamToken, duration)
	if err != nil {
		if errors.Is(err, session.ErrNoQuestions) {
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
			return
		}
		h.log.Error().Err(err).Str("test_id", testID).Msg("Session start failed")
		response.Fail(c, http.StatusBadGateway, response.ErrTestServiceDown)
		return
	}

	view, err := sess.State()
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, view)
}

// GetState godoc
// GET /api/v1/session/tests/:test_id/state
// Returns the full session view: clock, current question, answer map
// status and result when completed.
func (h *SessionHandler) GetState(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	view, err := sess.State()
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// GetPaper godoc
// GET /api/v1/session/tests/:test_id/paper
// Returns the loaded question set.
func (h *SessionHandler) GetPaper(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	questions, err := sess.Paper()
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// Answer godoc
// POST /api/v1/session/tests/:test_id/answer
// Applies one answer mutation (select, toggle or text).
func (h *SessionHandler) Answer(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := sess.Answer(req); err != nil {
		h.failSession(c, err)
		return
	}

	view, err := sess.State()
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// Navigate godoc
// POST /api/v1/session/tests/:test_id/navigate
// Moves the current question (next, previous or jump). Moving next past the
// last question starts the submission directly.
func (h *SessionHandler) Navigate(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	var err error
	switch req.Op {
	case "next":
		err = sess.Next()
	case "previous":
		err = sess.Previous()
	case "jump":
		err = sess.JumpTo(req.Index)
	}

	// A failed answer save on "next" is reported but the move itself
	// succeeded; the client sees the warning alongside the new state.
	view, verr := sess.State()
	if verr != nil {
		h.failSession(c, verr)
		return
	}

	if err != nil && !isSaveWarning(err) {
		h.failSession(c, err)
		return
	}

	body := gin.H{"state": view}
	if err != nil {
		body["warning"] = response.GetMessage(response.ErrSaveFailed)
	}
	response.Success(c, http.StatusOK, body)
}

// RequestSubmit godoc
// POST /api/v1/session/tests/:test_id/submit
// Asks to finish: running → confirming.
func (h *SessionHandler) RequestSubmit(c *gin.Context) {
	h.transition(c, func(s *session.Session) error { return s.RequestSubmit() })
}

// ConfirmSubmit godoc
// POST /api/v1/session/tests/:test_id/submit/confirm
// Confirms the submission: confirming → submitting. Also re-attempts a
// previously failed submission.
func (h *SessionHandler) ConfirmSubmit(c *gin.Context) {
	h.transition(c, func(s *session.Session) error { return s.ConfirmSubmit() })
}

// CancelSubmit godoc
// POST /api/v1/session/tests/:test_id/submit/cancel
// Dismisses the confirmation: confirming → running.
func (h *SessionHandler) CancelSubmit(c *gin.Context) {
	h.transition(c, func(s *session.Session) error { return s.CancelSubmit() })
}

// GetResult godoc
// GET /api/v1/session/tests/:test_id/result
// Returns the final scored result once the session completed.
func (h *SessionHandler) GetResult(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	view, err := sess.State()
	if err != nil {
		h.failSession(c, err)
		return
	}

	if view.Result == nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, view.Result)
}

// EndSession godoc
// DELETE /api/v1/session/tests/:test_id
// Detaches from the attempt: the session is evicted and its unsaved current
// answer is handed to the beacon queue for best-effort delivery. Server-side
// answer records and the snapshot survive, so a later start re-attaches.
func (h *SessionHandler) EndSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID := c.Param("test_id")
	if h.manager.Get(claims.StudentID, testID) == nil {
		response.Fail(c, http.StatusNotFound, response.ErrNoSession)
		return
	}

	h.manager.Evict(claims.StudentID, testID)
	response.Success(c, http.StatusOK, gin.H{"status": "detached"})
}

func (h *SessionHandler) transition(c *gin.Context, fn func(*session.Session) error) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	if err := fn(sess); err != nil {
		h.failSession(c, err)
		return
	}

	view, err := sess.State()
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// session resolves the caller's live session or writes the error response.
func (h *SessionHandler) session(c *gin.Context) (*session.Session, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	sess := h.manager.Get(claims.StudentID, c.Param("test_id"))
	if sess == nil {
		response.Fail(c, http.StatusNotFound, response.ErrNoSession)
		return nil, false
	}
	return sess, true
}

// failSession maps session errors onto the API error taxonomy.
func (h *SessionHandler) failSession(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrUnknownQuestion):
		response.Fail(c, http.StatusBadRequest, response.ErrUnknownQuestion)
	case errors.Is(err, session.ErrIndexOutOfRange):
		response.Fail(c, http.StatusBadRequest, response.ErrIndexOutOfRange)
	case errors.Is(err, session.ErrAlreadyCompleted):
		response.Fail(c, http.StatusConflict, response.ErrSessionCompleted)
	case errors.Is(err, session.ErrSubmissionInFlight):
		response.Fail(c, http.StatusConflict, response.ErrSubmitInFlight)
	case errors.Is(err, session.ErrNotConfirming):
		response.Fail(c, http.StatusConflict, response.ErrNotConfirming)
	case errors.Is(err, session.ErrNotRunning):
		response.Fail(c, http.StatusConflict, response.ErrNotRunning)
	case errors.Is(err, session.ErrSessionClosed):
		response.Fail(c, http.StatusNotFound, response.ErrNoSession)
	default:
		h.log.Error().Err(err).Msg("Session command failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// isSaveWarning reports whether the error is a remote save failure, which
// navigation treats as non-blocking.
func isSaveWarning(err error) bool {
	return err != nil &&
		!errors.Is(err, session.ErrNotRunning) &&
		!errors.Is(err, session.ErrAlreadyCompleted) &&
		!errors.Is(err, session.ErrSubmissionInFlight) &&
		!errors.Is(err, session.ErrIndexOutOfRange) &&
		!errors.Is(err, session.ErrSessionClosed)
}
