package engine

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors.
var (
	ErrSessionActive   = errors.New("an exam session is already active")
	ErrNotYetOpen      = errors.New("exam is not open yet")
	ErrExpired         = errors.New("exam time has expired")
	ErrNoQuestions     = errors.New("exam has no questions")
	ErrNoActiveSession = errors.New("no active exam session")
	ErrInvalidAnswer   = errors.New("invalid answer for the active exam")
	ErrExamNotFound    = errors.New("exam not found in lobby")
	ErrClosed          = errors.New("engine is closed")
)

// RejectReason says why StartExam refused an exam.
type RejectReason string

const (
	RejectSessionActive RejectReason = "session_active"
	RejectNotYetOpen    RejectReason = "not_yet_open"
	RejectExpired       RejectReason = "expired"
	RejectNoQuestions   RejectReason = "no_questions"
)

// RejectionError is returned by StartExam when a precondition fails.
// The engine state is untouched when it is returned.
type RejectionError struct {
	Reason RejectReason
	ExamID string
	// OpensAt is set for RejectNotYetOpen.
	OpensAt time.Time
}

func (e *RejectionError) Error() string {
	if e.Reason == RejectNotYetOpen {
		return fmt.Sprintf("exam %s rejected: %v (opens at %s)", e.ExamID, e.Unwrap(), e.OpensAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("exam %s rejected: %v", e.ExamID, e.Unwrap())
}

func (e *RejectionError) Unwrap() error {
	switch e.Reason {
	case RejectSessionActive:
		return ErrSessionActive
	case RejectNotYetOpen:
		return ErrNotYetOpen
	case RejectExpired:
		return ErrExpired
	default:
		return ErrNoQuestions
	}
}

// LoadError wraps a failed exam or result fetch.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return "load exams: " + e.Err.Error() }

func (e *LoadError) Unwrap() error { return e.Err }

// SubmitError wraps a failed result transmission. The session is terminated
// regardless.
type SubmitError struct {
	ExamID string
	Err    error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit result for exam %s: %v", e.ExamID, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }
