package engine

import (
	"math"

	"github.com/upl-platform/exam-portal/internal/model"
)

// Score is the outcome of grading one exam attempt.
type Score struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

// ComputeScore awards one point per question whose stored answer equals the
// correct option. Unanswered questions count as wrong.
func ComputeScore(exam model.Exam, answers AnswerStore) Score {
	s := Score{Total: len(exam.Questions)}
	for _, q := range exam.Questions {
		if opt, ok := answers.Get(q.ID); ok && opt == q.CorrectAnswer {
			s.Correct++
		}
	}
	s.Percent = Percent(s.Correct, s.Total)
	return s
}

// Percent is round(100 * correct / total), halves rounded up. A zero total
// yields 0.
func Percent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return roundHalfUp(100 * float64(correct) / float64(total))
}

// CorrectFromPercent recovers the correct-answer count from a stored
// percentage, as result listings do. A zero total yields 0.
func CorrectFromPercent(percent, total int) int {
	if total <= 0 {
		return 0
	}
	return roundHalfUp(float64(percent) * float64(total) / 100)
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
