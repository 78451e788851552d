package model

// ExamStatus is the temporal state of an exam relative to "now".
// It is always derived from the exam window and never stored.
type ExamStatus string

const (
	ExamStatusUpcoming  ExamStatus = "upcoming"
	ExamStatusActive    ExamStatus = "active"
	ExamStatusCompleted ExamStatus = "completed"
)

// Exam is an exam definition as served by the exam backend.
type Exam struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Subject   string     `json:"subject"`
	Duration  int        `json:"duration"`
	Faculty   string     `json:"faculty,omitempty"`
	StartTime Timestamp  `json:"startTime"`
	EndTime   Timestamp  `json:"endTime"`
	Questions []Question `json:"questions"`
}

// Clone returns a deep copy so a running session never shares question
// slices with the lobby list.
func (e Exam) Clone() Exam {
	out := e
	if e.Questions != nil {
		out.Questions = make([]Question, len(e.Questions))
		for i, q := range e.Questions {
			out.Questions[i] = q
			out.Questions[i].Options = append([]string(nil), q.Options...)
		}
	}
	return out
}

// ForStudent strips the correct answers before the exam leaves the server.
func (e Exam) ForStudent() ExamForStudent {
	questions := make([]QuestionForStudent, len(e.Questions))
	for i, q := range e.Questions {
		questions[i] = QuestionForStudent{
			ID:       q.ID,
			Question: q.Question,
			Options:  q.Options,
		}
	}
	return ExamForStudent{
		ID:        e.ID,
		Title:     e.Title,
		Subject:   e.Subject,
		Duration:  e.Duration,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		Questions: questions,
	}
}

// ExamForStudent is the exam payload sent to students (no correct answers).
type ExamForStudent struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	Subject   string               `json:"subject"`
	Duration  int                  `json:"duration"`
	StartTime Timestamp            `json:"startTime"`
	EndTime   Timestamp            `json:"endTime"`
	Questions []QuestionForStudent `json:"questions"`
}
