package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionNavigate Action = "navigate"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// Request is one client message. Only the fields of its action are read.
type Request struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id,omitempty"`
	Option     *int   `json:"option,omitempty"`
	Direction  string `json:"direction,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────
//
// Session events (started, tick, submitted, submit_failed, left, state)
// are pushed as service.StreamEvent. The ones below answer a request.

type Event string

const (
	EventError Event = "error"
	EventPong  Event = "pong"
)

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
