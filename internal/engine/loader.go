package engine

import (
	"context"

	"github.com/upl-platform/exam-portal/internal/model"
)

// LobbyExam is an exam with its status as of the read.
type LobbyExam struct {
	model.Exam
	Status model.ExamStatus `json:"status"`
}

// Load fetches the exams of the student's faculty and the student's prior
// results. On failure both lists are emptied, the error is kept for LoadErr,
// and a *LoadError is returned. A running session is not affected.
func (e *Engine) Load(ctx context.Context, src ExamSource) error {
	exams, err := src.ListExams(ctx, e.student.Faculty)
	var results []model.Result
	if err == nil {
		results, err = src.ListResults(ctx)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.exams = nil
		e.results = nil
		e.loadErr = &LoadError{Err: err}
		e.log.Warn().Err(err).Msg("Lobby load failed")
		return e.loadErr
	}

	kept := make([]model.Exam, 0, len(exams))
	for _, exam := range exams {
		if exam.Faculty != "" && e.student.Faculty != "" && exam.Faculty != e.student.Faculty {
			continue
		}
		kept = append(kept, exam)
	}
	if results == nil {
		results = []model.Result{}
	}

	e.exams = kept
	e.results = results
	e.loadErr = nil

	e.log.Debug().
		Int("exams", len(kept)).
		Int("dropped", len(exams)-len(kept)).
		Int("results", len(results)).
		Msg("Lobby loaded")
	return nil
}

// Lobby returns the loaded exams in received order, classified against the
// engine clock at the time of the call.
func (e *Engine) Lobby() []LobbyExam {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	out := make([]LobbyExam, len(e.exams))
	for i, exam := range e.exams {
		out[i] = LobbyExam{Exam: exam, Status: StatusOf(exam, now)}
	}
	return out
}

// Results returns the prior results plus those submitted since the last load.
func (e *Engine) Results() []model.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Result{}, e.results...)
}

// LoadErr returns the last load failure, or nil.
func (e *Engine) LoadErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadErr
}

// FindExam looks an exam up in the loaded lobby.
func (e *Engine) FindExam(examID string) (model.Exam, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, exam := range e.exams {
		if exam.ID == examID {
			return exam, nil
		}
	}
	return model.Exam{}, ErrExamNotFound
}

// LoadFailed reports whether the last Load failed.
func (e *Engine) LoadFailed() bool {
	return e.LoadErr() != nil
}
