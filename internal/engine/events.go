package engine

import "github.com/upl-platform/exam-portal/internal/model"

// EventType names a session lifecycle event.
type EventType string

const (
	EventStarted      EventType = "started"
	EventTick         EventType = "tick"
	EventSubmitted    EventType = "submitted"
	EventSubmitFailed EventType = "submit_failed"
	EventLeft         EventType = "left"
)

// Event is delivered to the engine observer.
type Event struct {
	Type      EventType
	SessionID string
	ExamID    string
	Remaining int
	Trigger   model.SubmitTrigger
	Result    *model.Result
	Err       error
}
