package service

import (
	"sync"

	"github.com/upl-platform/exam-portal/internal/model"
)

// StreamEventType names a message pushed to a student's live stream.
type StreamEventType string

const (
	StreamStarted      StreamEventType = "started"
	StreamTick         StreamEventType = "tick"
	StreamSubmitted    StreamEventType = "submitted"
	StreamSubmitFailed StreamEventType = "submit_failed"
	StreamLeft         StreamEventType = "left"
	StreamState        StreamEventType = "state"
)

// StreamEvent is one server-to-client push.
type StreamEvent struct {
	Event            StreamEventType     `json:"event"`
	SessionID        string              `json:"session_id,omitempty"`
	ExamID           string              `json:"exam_id,omitempty"`
	RemainingSeconds *int                `json:"remaining_seconds,omitempty"`
	Trigger          model.SubmitTrigger `json:"trigger,omitempty"`
	Result           *ResultView         `json:"result,omitempty"`
	Queued           bool                `json:"queued,omitempty"`
	Message          string              `json:"message,omitempty"`
	State            *model.SessionState `json:"state,omitempty"`
}

const subscriberBuffer = 16

// Hub fans session events out to each student's open streams.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan StreamEvent]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan StreamEvent]struct{})}
}

// Subscribe registers a stream for studentID. The caller must invoke the
// returned cancel function to avoid leaks.
func (h *Hub) Subscribe(studentID string) (<-chan StreamEvent, func()) {
	ch := make(chan StreamEvent, subscriberBuffer)

	h.mu.Lock()
	subs, ok := h.subscribers[studentID]
	if !ok {
		subs = make(map[chan StreamEvent]struct{})
		h.subscribers[studentID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[studentID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, studentID)
		}
	}
	return ch, cancel
}

// Publish delivers ev to every stream of studentID. A full stream loses its
// oldest pending event.
func (h *Hub) Publish(studentID string, ev StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[studentID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Subscribers counts the open streams of studentID.
func (h *Hub) Subscribers(studentID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[studentID])
}
