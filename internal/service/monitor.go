package service

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/upl-platform/exam-portal/internal/config"
	"github.com/upl-platform/exam-portal/internal/engine"
	"github.com/upl-platform/exam-portal/internal/model"
)

// MonitorEventType names an entry of the live exam monitor feed.
type MonitorEventType string

const (
	MonitorSnapshot         MonitorEventType = "snapshot"
	MonitorStudentStarted   MonitorEventType = "student_started"
	MonitorAnswerSaved      MonitorEventType = "answer_saved"
	MonitorStudentSubmitted MonitorEventType = "student_submitted"
	MonitorSubmitFailed     MonitorEventType = "submit_failed"
	MonitorStudentLeft      MonitorEventType = "student_left"
)

// MonitorEvent is published on the exam's monitor channel whenever a
// student's session changes.
type MonitorEvent struct {
	Type             MonitorEventType    `json:"type"`
	ExamID           string              `json:"exam_id"`
	StudentID        string              `json:"student_id,omitempty"`
	StudentName      string              `json:"student_name,omitempty"`
	Faculty          string              `json:"faculty,omitempty"`
	SessionID        string              `json:"session_id,omitempty"`
	RemainingSeconds *int                `json:"remaining_seconds,omitempty"`
	Answered         *int                `json:"answered,omitempty"`
	TotalQuestions   int                 `json:"total_questions,omitempty"`
	Score            *int                `json:"score,omitempty"`
	Trigger          model.SubmitTrigger `json:"trigger,omitempty"`
	Sessions         []LiveSession       `json:"sessions,omitempty"`
}

// LiveSession is one running session as seen by staff.
type LiveSession struct {
	StudentID        string `json:"student_id"`
	StudentName      string `json:"student_name"`
	Faculty          string `json:"faculty,omitempty"`
	ExamID           string `json:"exam_id"`
	SessionID        string `json:"session_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Answered         int    `json:"answered"`
	TotalQuestions   int    `json:"total_questions"`
}

// ActiveSessions lists the sessions running on this portal instance,
// optionally limited to one exam, ordered by student name.
func (s *PortalService) ActiveSessions(examID string) []LiveSession {
	s.mu.Lock()
	entries := make([]*studentEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]LiveSession, 0)
	for _, e := range entries {
		state := e.engine.State()
		if !state.Started || state.Exam == nil {
			continue
		}
		if examID != "" && state.Exam.ID != examID {
			continue
		}
		out = append(out, LiveSession{
			StudentID:        e.student.ID,
			StudentName:      e.student.Name,
			Faculty:          e.student.Faculty,
			ExamID:           state.Exam.ID,
			SessionID:        state.SessionID,
			RemainingSeconds: state.RemainingSeconds,
			Answered:         len(state.Answers),
			TotalQuestions:   len(state.Exam.Questions),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentName != out[j].StudentName {
			return out[i].StudentName < out[j].StudentName
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out
}

// Snapshot is the monitor feed's opening frame for one exam.
func (s *PortalService) Snapshot(examID string) MonitorEvent {
	sessions := s.ActiveSessions(examID)
	return MonitorEvent{Type: MonitorSnapshot, ExamID: examID, Sessions: sessions}
}

// monitorEventFor maps an engine event onto the monitor feed. Ticks are not
// forwarded; the feed refreshes countdowns through snapshots.
func (e *studentEntry) monitorEventFor(ev engine.Event) (MonitorEvent, bool) {
	out := MonitorEvent{
		ExamID:      ev.ExamID,
		StudentID:   e.student.ID,
		StudentName: e.student.Name,
		Faculty:     e.student.Faculty,
		SessionID:   ev.SessionID,
	}
	switch ev.Type {
	case engine.EventStarted:
		out.Type = MonitorStudentStarted
		remaining := ev.Remaining
		out.RemainingSeconds = &remaining
		if state := e.engine.State(); state.Exam != nil {
			out.TotalQuestions = len(state.Exam.Questions)
		}
	case engine.EventSubmitted, engine.EventSubmitFailed:
		out.Type = MonitorStudentSubmitted
		if ev.Type == engine.EventSubmitFailed {
			out.Type = MonitorSubmitFailed
		}
		out.Trigger = ev.Trigger
		if ev.Result != nil {
			score := ev.Result.Score
			out.Score = &score
			out.TotalQuestions = ev.Result.TotalQuestions
		}
	case engine.EventLeft:
		out.Type = MonitorStudentLeft
	default:
		return out, false
	}
	return out, ev.ExamID != ""
}

// publishMonitor pushes ev to the exam's monitor channel. Failures are
// logged and never reach the student.
func (s *PortalService) publishMonitor(ev MonitorEvent) {
	if s.opts.RDB == nil || ev.ExamID == "" {
		return
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode monitor event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	if err := s.opts.RDB.Publish(ctx, config.CacheKey.ExamMonitorChannel(ev.ExamID), raw).Err(); err != nil {
		s.log.Warn().Err(err).
			Str("exam_id", ev.ExamID).
			Str("type", string(ev.Type)).
			Msg("Failed to publish monitor event")
	}
}
