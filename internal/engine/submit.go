package engine

import (
	"context"

	"github.com/upl-platform/exam-portal/internal/model"
)

type pendingSubmit struct {
	sessionID string
	trigger   model.SubmitTrigger
	score     Score
	result    model.Result
}

// Submit grades the active session and transmits the result. The session
// ends whether or not transmission succeeds; on failure the built result is
// returned together with a *SubmitError. Without a session, or while another
// submission is in flight, it returns ErrNoActiveSession.
func (e *Engine) Submit(ctx context.Context, trigger model.SubmitTrigger) (*model.Result, error) {
	e.mu.Lock()
	pending := e.beginSubmitLocked(trigger)
	e.mu.Unlock()

	if pending == nil {
		return nil, ErrNoActiveSession
	}
	return e.finishSubmit(ctx, pending)
}

// beginSubmitLocked marks the session as submitting, stops the timer and
// builds the result. It returns nil when there is nothing to submit.
func (e *Engine) beginSubmitLocked(trigger model.SubmitTrigger) *pendingSubmit {
	if e.exam == nil || e.submitting {
		return nil
	}
	e.submitting = true
	e.inflight.Add(1)
	e.stopTimerLocked()

	score := ComputeScore(*e.exam, e.answers)
	now := model.NewTimestamp(e.now())
	return &pendingSubmit{
		sessionID: e.sessionID,
		trigger:   trigger,
		score:     score,
		result: model.Result{
			ExamID:         e.exam.ID,
			StudentID:      e.student.ID,
			StudentName:    e.student.Name,
			Faculty:        e.student.Faculty,
			Score:          score.Percent,
			TotalQuestions: score.Total,
			Answers:        e.answers.Snapshot(),
			SubmittedAt:    now,
			CompletedAt:    now,
		},
	}
}

func (e *Engine) finishSubmit(ctx context.Context, p *pendingSubmit) (*model.Result, error) {
	defer e.inflight.Done()

	var sendErr error
	if e.sender != nil {
		sendErr = e.sender.SendResult(ctx, p.result)
	}

	e.mu.Lock()
	if sendErr == nil {
		e.results = append(e.results, p.result)
	}
	if e.sessionID == p.sessionID {
		e.resetLocked()
	}
	e.mu.Unlock()

	result := p.result
	ev := Event{
		SessionID: p.sessionID,
		ExamID:    result.ExamID,
		Trigger:   p.trigger,
		Result:    &result,
	}

	if sendErr != nil {
		err := &SubmitError{ExamID: result.ExamID, Err: sendErr}
		e.log.Error().Err(sendErr).
			Str("exam_id", result.ExamID).
			Str("trigger", string(p.trigger)).
			Msg("Result submission failed")
		ev.Type = EventSubmitFailed
		ev.Err = err
		e.emit(ev)
		return &result, err
	}

	e.log.Info().
		Str("exam_id", result.ExamID).
		Str("trigger", string(p.trigger)).
		Int("score", result.Score).
		Int("correct", p.score.Correct).
		Int("total", p.score.Total).
		Msg("Result submitted")
	ev.Type = EventSubmitted
	e.emit(ev)
	return &result, nil
}
