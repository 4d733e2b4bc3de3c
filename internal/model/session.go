package model

import "time"

// SessionState enumerates the lifecycle states of a test-taking session.
type SessionState string

const (
	SessionStateRunning    SessionState = "running"
	SessionStateConfirming SessionState = "confirming"
	SessionStateSubmitting SessionState = "submitting"
	SessionStateCompleted  SessionState = "completed"
)

// StartSessionRequest is the payload for opening a test-taking session.
// Duration is captured by the caller before entering the session; the test
// service does not expose it on the attempt endpoints.
type StartSessionRequest struct {
	DurationMinutes int `json:"duration_minutes" binding:"required,min=1,max=480"`
}

// ExchangeTokenRequest trades a test service credential for a gateway
// session token. The gateway never verifies the upstream token itself; a
// bad one simply fails every upstream call.
type ExchangeTokenRequest struct {
	StudentID        string `json:"student_id" binding:"required"`
	TestServiceToken string `json:"test_service_token" binding:"required"`
}

// AnswerRequest mutates the answer of one question in a running session.
// Op selects the mutation: "select" (single choice), "toggle" (multi
// choice) and "text" (free text).
type AnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required"`
	Op         string `json:"op" binding:"required,oneof=select toggle text"`
	OptionID   string `json:"option_id" binding:"omitempty"`
	Text       string `json:"text" binding:"omitempty,max=10000"`
}

// NavigateRequest moves the session's current question. Op "jump" requires
// Index; "next" and "previous" ignore it.
type NavigateRequest struct {
	Op    string `json:"op" binding:"required,oneof=next previous jump"`
	Index int    `json:"index" binding:"omitempty,min=0"`
}

// BeaconRequest is the unload-time best-effort answer save. sendBeacon
// cannot set headers, so the gateway token travels in the body.
type BeaconRequest struct {
	Token      string      `json:"token" binding:"required"`
	TestID     string      `json:"test_id" binding:"required"`
	QuestionID string      `json:"question_id" binding:"required"`
	OptionID   interface{} `json:"option_id"`
	Text       *string     `json:"text"`
}

// ProctorEventRequest reports an advisory anti-cheating observation from the
// UI. These are best-effort signals, not a proctoring guarantee.
type ProctorEventRequest struct {
	TestID  string `json:"test_id" binding:"required"`
	Type    string `json:"type" binding:"required,oneof=focus_lost context_menu fullscreen_exit"`
	Payload string `json:"payload" binding:"omitempty,max=2000"`
}

// SessionEvent is one recorded proctoring/lifecycle observation.
type SessionEvent struct {
	ID         int64     `json:"id"`
	StudentID  string    `json:"student_id"`
	TestID     string    `json:"test_id"`
	Type       string    `json:"type"`
	Payload    string    `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
