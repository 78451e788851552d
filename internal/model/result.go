package model

// Result is the outcome of one completed exam session.
type Result struct {
	ExamID         string         `json:"examId"`
	StudentID      string         `json:"studentId"`
	StudentName    string         `json:"studentName"`
	Faculty        string         `json:"faculty,omitempty"`
	Score          int            `json:"score"`
	TotalQuestions int            `json:"totalQuestions"`
	Answers        map[string]int `json:"answers"`
	SubmittedAt    Timestamp      `json:"submittedAt"`
	CompletedAt    Timestamp      `json:"completedAt,omitempty"`
}

// SubmitTrigger records what ended a session.
type SubmitTrigger string

const (
	SubmitTriggerManual SubmitTrigger = "manual"
	SubmitTriggerTimer  SubmitTrigger = "timer"
)

// StoredResult is a Result as kept in the portal's ledger.
type StoredResult struct {
	ID        string        `json:"id"`
	Result    Result        `json:"result"`
	Trigger   SubmitTrigger `json:"trigger"`
	Delivered bool          `json:"delivered"`
	CreatedAt Timestamp     `json:"created_at"`
}
