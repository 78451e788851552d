package model

// Direction is a navigation step inside the active exam.
type Direction string

const (
	DirectionPrev Direction = "prev"
	DirectionNext Direction = "next"
)

// SessionState is a snapshot of the active exam session.
type SessionState struct {
	SessionID        string          `json:"session_id"`
	Started          bool            `json:"started"`
	Exam             *ExamForStudent `json:"exam,omitempty"`
	CurrentQuestion  int             `json:"current_question"`
	RemainingSeconds int             `json:"remaining_seconds"`
	Answers          map[string]int  `json:"answers"`
}

// NavigateRequest is the payload for moving between questions.
type NavigateRequest struct {
	Direction Direction `json:"direction" binding:"required,oneof=prev next"`
}

// SelectAnswerRequest is the payload for answering one question.
type SelectAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,max=128"`
	Option     *int   `json:"option" binding:"required,min=0"`
}
