package engine

import (
	"time"

	"github.com/upl-platform/exam-portal/internal/model"
)

// Classify derives an exam's status from its window. Both bounds are
// inclusive for "active".
func Classify(now, start, end time.Time) model.ExamStatus {
	switch {
	case now.Before(start):
		return model.ExamStatusUpcoming
	case now.After(end):
		return model.ExamStatusCompleted
	default:
		return model.ExamStatusActive
	}
}

// StatusOf classifies exam at now.
func StatusOf(exam model.Exam, now time.Time) model.ExamStatus {
	return Classify(now, exam.StartTime.Time, exam.EndTime.Time)
}
