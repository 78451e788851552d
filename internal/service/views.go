package service

import (
	"github.com/upl-platform/exam-portal/internal/engine"
	"github.com/upl-platform/exam-portal/internal/model"
)

// LobbyItem is an exam as listed to a student. Questions are counted, never
// shipped, before the session starts.
type LobbyItem struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	Subject       string           `json:"subject"`
	Duration      int              `json:"duration"`
	Faculty       string           `json:"faculty,omitempty"`
	StartTime     model.Timestamp  `json:"startTime"`
	EndTime       model.Timestamp  `json:"endTime"`
	QuestionCount int              `json:"questionCount"`
	Status        model.ExamStatus `json:"status"`
}

func newLobbyItem(e engine.LobbyExam) LobbyItem {
	return LobbyItem{
		ID:            e.ID,
		Title:         e.Title,
		Subject:       e.Subject,
		Duration:      e.Duration,
		Faculty:       e.Faculty,
		StartTime:     e.StartTime,
		EndTime:       e.EndTime,
		QuestionCount: len(e.Questions),
		Status:        e.Status,
	}
}

// ResultView is a result with the figures the dashboards display.
type ResultView struct {
	model.Result
	CorrectAnswers int  `json:"correctAnswers"`
	Passed         bool `json:"passed"`
}

// NewResultView derives the correct count from the stored percentage.
func NewResultView(r model.Result, passMark int) ResultView {
	return ResultView{
		Result:         r,
		CorrectAnswers: engine.CorrectFromPercent(r.Score, r.TotalQuestions),
		Passed:         r.Score >= passMark,
	}
}

// LobbyView is the student dashboard.
type LobbyView struct {
	Exams         []LobbyItem         `json:"exams"`
	Results       []ResultView        `json:"results"`
	LoadError     string              `json:"load_error,omitempty"`
	ActiveSession *model.SessionState `json:"active_session,omitempty"`
}

// SubmitOutcome is what a manual submission produced.
type SubmitOutcome struct {
	Result ResultView `json:"result"`
	// Queued is set when delivery failed and the result waits in the outbox.
	Queued bool `json:"queued"`
}
