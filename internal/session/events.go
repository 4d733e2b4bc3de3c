package session

import "github.com/campustest/testgate/internal/model"

// EventType enumerates the live events a session broadcasts to subscribers
// (the WebSocket stream).
type EventType string

const (
	// EventTick is emitted once per second with the remaining time.
	EventTick EventType = "tick"
	// EventSaved acknowledges a remote answer save.
	EventSaved EventType = "saved"
	// EventWarning is a non-blocking notification (save failure, time up).
	EventWarning EventType = "warning"
	// EventState announces a lifecycle state change.
	EventState EventType = "state"
	// EventCompleted carries the final scored result.
	EventCompleted EventType = "completed"
)

// Event is one live notification from a running session.
type Event struct {
	Type             EventType          `json:"type"`
	RemainingSeconds int                `json:"remaining_seconds,omitempty"`
	QuestionID       string             `json:"question_id,omitempty"`
	State            model.SessionState `json:"state,omitempty"`
	Message          string             `json:"message,omitempty"`
	Result           *model.FinalResult `json:"result,omitempty"`
}
