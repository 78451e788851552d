package engine

import (
	"github.com/google/uuid"
	"github.com/upl-platform/exam-portal/internal/model"
)

// StartExam opens a session for exam. The checks run in a fixed order and a
// rejection leaves the engine untouched.
func (e *Engine) StartExam(exam model.Exam) error {
	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}

	now := e.now()
	var reject *RejectionError
	switch {
	case e.exam != nil:
		reject = &RejectionError{Reason: RejectSessionActive, ExamID: exam.ID}
	case now.Before(exam.StartTime.Time):
		reject = &RejectionError{Reason: RejectNotYetOpen, ExamID: exam.ID, OpensAt: exam.StartTime.Time}
	case now.After(exam.EndTime.Time):
		reject = &RejectionError{Reason: RejectExpired, ExamID: exam.ID}
	case len(exam.Questions) == 0:
		reject = &RejectionError{Reason: RejectNoQuestions, ExamID: exam.ID}
	}
	if reject != nil {
		e.mu.Unlock()
		e.log.Info().
			Str("exam_id", exam.ID).
			Str("reason", string(reject.Reason)).
			Msg("Exam start rejected")
		return reject
	}

	held := exam.Clone()
	e.stopTimerLocked()
	e.sessionID = uuid.New().String()
	e.exam = &held
	e.started = true
	e.submitting = false
	e.index = 0
	e.remaining = int(held.EndTime.Sub(now).Seconds())
	e.answers = AnswerStore{}
	e.startTimerLocked()

	ev := Event{
		Type:      EventStarted,
		SessionID: e.sessionID,
		ExamID:    held.ID,
		Remaining: e.remaining,
	}
	e.mu.Unlock()

	e.log.Info().
		Str("exam_id", held.ID).
		Str("session_id", ev.SessionID).
		Int("remaining", ev.Remaining).
		Int("questions", len(held.Questions)).
		Msg("Exam started")
	e.emit(ev)
	return nil
}

// Navigate moves the current question index one step. It stops at both ends
// and returns the resulting index and whether it moved.
func (e *Engine) Navigate(dir model.Direction) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.exam == nil || !e.started {
		return e.index, false
	}
	last := len(e.exam.Questions) - 1
	switch {
	case dir == model.DirectionPrev && e.index > 0:
		e.index--
	case dir == model.DirectionNext && e.index < last:
		e.index++
	default:
		return e.index, false
	}
	return e.index, true
}

// SelectAnswer records option for questionID, replacing an earlier choice.
// It is a no-op returning false when no session has started.
func (e *Engine) SelectAnswer(questionID string, option int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.exam == nil || !e.started || e.submitting {
		return false, nil
	}
	for _, q := range e.exam.Questions {
		if q.ID != questionID {
			continue
		}
		if option < 0 || option >= len(q.Options) {
			return false, ErrInvalidAnswer
		}
		e.answers.Set(questionID, option)
		return true, nil
	}
	return false, ErrInvalidAnswer
}

// Leave abandons the active session without submitting. It returns false
// when there is nothing to leave or a submission is already under way.
func (e *Engine) Leave() bool {
	e.mu.Lock()
	if e.exam == nil || e.submitting {
		e.mu.Unlock()
		return false
	}
	ev := Event{Type: EventLeft, SessionID: e.sessionID, ExamID: e.exam.ID}
	e.stopTimerLocked()
	e.resetLocked()
	e.mu.Unlock()

	e.log.Info().Str("exam_id", ev.ExamID).Str("session_id", ev.SessionID).Msg("Session left")
	e.emit(ev)
	return true
}
