package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionNavigate Action = "navigate"
	ActionSubmit   Action = "submit"
	ActionEvent    Action = "event"
	ActionPing     Action = "ping"
)

// RequestPayload is the single inbound message shape. Action selects which
// fields are meaningful; unused ones stay empty.
type RequestPayload struct {
	Action Action `json:"action"`

	// answer
	QuestionID string `json:"question_id,omitempty"`
	AnswerOp   string `json:"answer_op,omitempty"` // select | toggle | text
	OptionID   string `json:"option_id,omitempty"`
	Text       string `json:"text,omitempty"`

	// navigate
	NavigateOp string `json:"navigate_op,omitempty"` // next | previous | jump
	Index      int    `json:"index,omitempty"`

	// submit
	SubmitOp string `json:"submit_op,omitempty"` // request | confirm | cancel

	// event (advisory proctoring report)
	EventType    string `json:"event_type,omitempty"`
	EventPayload string `json:"event_payload,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError Event = "error"
	EventAck   Event = "ack"
	EventPong  Event = "pong"
)

// AckResponse confirms an inbound action was applied.
type AckResponse struct {
	Event  Event  `json:"event"`
	Action Action `json:"action"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// SessionEnvelope wraps a live session notification (tick, saved, warning,
// state, completed) for the wire. The inner payload keeps its own type tag.
type SessionEnvelope struct {
	Event   Event       `json:"event"`
	Payload interface{} `json:"payload"`
}

const EventSession Event = "session"
