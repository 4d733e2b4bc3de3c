package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/campustest/testgate/internal/middleware"
	"github.com/campustest/testgate/internal/model"
	"github.com/campustest/testgate/internal/response"
	"github.com/campustest/testgate/internal/service"
	"github.com/campustest/testgate/internal/session"
	ws "github.com/campustest/testgate/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live session over WebSocket: clock ticks, save acks
// and state changes flow out; answer, navigate and submit actions flow in.
type WSHandler struct {
	manager      *session.Manager
	eventService *service.EventService
	log          zerolog.Logger
	upgrader     websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(manager *session.Manager, eventService *service.EventService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		manager:      manager,
		eventService: eventService,
		log:          log.With().Str("component", "ws_handler").Logger(),
		upgrader:     buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/session/tests/:test_id/stream
// Upgrades to WebSocket for the live session feed.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	testID := c.Param("test_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sess := h.manager.Get(claims.StudentID, testID)
	if sess == nil {
		ws.WriteError(conn, string(response.ErrNoSession), response.GetMessage(response.ErrNoSession))
		return
	}

	wsLog := h.log.With().
		Str("student_id", claims.StudentID).
		Str("test_id", testID).
		Logger()

	wsLog.Info().Msg("Student connected")

	// Live events are forwarded from a separate goroutine so a slow read
	// loop never blocks the outbound clock.
	events := sess.Subscribe()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range events {
			if err := ws.WriteTyped(conn, ws.SessionEnvelope{Event: ws.EventSession, Payload: ev}); err != nil {
				return
			}
		}
	}()

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, sess, &msg)
		case ws.ActionNavigate:
			h.handleNavigate(conn, sess, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(conn, sess, &msg)
		case ws.ActionEvent:
			h.handleEvent(conn, claims, testID, &msg)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		}
	}

	// Unsubscribing closes the events channel, which releases the writer.
	// The order matters: a finished session broadcasts nothing more, so
	// waiting first would park both goroutines forever.
	sess.Unsubscribe(events)
	<-writerDone
}

func (h *WSHandler) handleAnswer(conn *websocket.Conn, sess *session.Session, msg *ws.RequestPayload) {
	req := model.AnswerRequest{
		QuestionID: msg.QuestionID,
		Op:         msg.AnswerOp,
		OptionID:   msg.OptionID,
		Text:       msg.Text,
	}
	if req.QuestionID == "" || req.Op == "" {
		ws.WriteError(conn, string(response.ErrInvalidPayload), "question_id and answer_op are required")
		return
	}

	if err := sess.Answer(req); err != nil {
		h.writeSessionError(conn, err)
		return
	}
	ws.WriteTyped(conn, ws.AckResponse{Event: ws.EventAck, Action: ws.ActionAnswer})
}

func (h *WSHandler) handleNavigate(conn *websocket.Conn, sess *session.Session, msg *ws.RequestPayload) {
	var err error
	switch msg.NavigateOp {
	case "next":
		err = sess.Next()
	case "previous":
		err = sess.Previous()
	case "jump":
		err = sess.JumpTo(msg.Index)
	default:
		ws.WriteError(conn, string(response.ErrInvalidPayload), "navigate_op must be next, previous or jump")
		return
	}

	// Save failures surface as warning events; the move already happened.
	if err != nil && !isSaveWarning(err) {
		h.writeSessionError(conn, err)
		return
	}
	ws.WriteTyped(conn, ws.AckResponse{Event: ws.EventAck, Action: ws.ActionNavigate})
}

func (h *WSHandler) handleSubmit(conn *websocket.Conn, sess *session.Session, msg *ws.RequestPayload) {
	var err error
	switch msg.SubmitOp {
	case "request":
		err = sess.RequestSubmit()
	case "confirm":
		err = sess.ConfirmSubmit()
	case "cancel":
		err = sess.CancelSubmit()
	default:
		ws.WriteError(conn, string(response.ErrInvalidPayload), "submit_op must be request, confirm or cancel")
		return
	}

	if err != nil {
		h.writeSessionError(conn, err)
		return
	}
	ws.WriteTyped(conn, ws.AckResponse{Event: ws.EventAck, Action: ws.ActionSubmit})
}

func (h *WSHandler) handleEvent(conn *websocket.Conn, claims *service.Claims, testID string, msg *ws.RequestPayload) {
	if msg.EventType == "" {
		ws.WriteError(conn, string(response.ErrInvalidPayload), "event_type is required")
		return
	}

	ev := model.SessionEvent{
		StudentID: claims.StudentID,
		TestID:    testID,
		Type:      msg.EventType,
		Payload:   msg.EventPayload,
	}
	if err := h.eventService.Record(context.Background(), ev); err != nil {
		h.log.Error().Err(err).Msg("Event record failed")
		ws.WriteError(conn, string(response.ErrInternal), response.GetMessage(response.ErrInternal))
		return
	}
	ws.WriteTyped(conn, ws.AckResponse{Event: ws.EventAck, Action: ws.ActionEvent})
}

func (h *WSHandler) writeSessionError(conn *websocket.Conn, err error) {
	code := sessionErrCode(err)
	ws.WriteError(conn, string(code), response.GetMessage(code))
}

// sessionErrCode maps session errors onto the shared error taxonomy.
func sessionErrCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, session.ErrUnknownQuestion):
		return response.ErrUnknownQuestion
	case errors.Is(err, session.ErrIndexOutOfRange):
		return response.ErrIndexOutOfRange
	case errors.Is(err, session.ErrAlreadyCompleted):
		return response.ErrSessionCompleted
	case errors.Is(err, session.ErrSubmissionInFlight):
		return response.ErrSubmitInFlight
	case errors.Is(err, session.ErrNotConfirming):
		return response.ErrNotConfirming
	case errors.Is(err, session.ErrNotRunning):
		return response.ErrNotRunning
	case errors.Is(err, session.ErrSessionClosed):
		return response.ErrNoSession
	default:
		return response.ErrInternal
	}
}
