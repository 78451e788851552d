// Package engine runs one student's exam session: it loads the lobby, starts
// an exam, keeps the answer store and the countdown, and submits the result.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/upl-platform/exam-portal/internal/model"
)

// DefaultTickInterval is one countdown step.
const DefaultTickInterval = time.Second

// ExamSource lists exams and prior results for one student.
type ExamSource interface {
	ListExams(ctx context.Context, faculty string) ([]model.Exam, error)
	ListResults(ctx context.Context) ([]model.Result, error)
}

// ResultSender transmits a finished result to the results backend.
type ResultSender interface {
	SendResult(ctx context.Context, result model.Result) error
}

// TickerFunc starts a ticker and returns its channel and a release func.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Options configures an Engine. Student and Sender are required.
type Options struct {
	Student      model.Student
	Sender       ResultSender
	Now          func() time.Time
	TickInterval time.Duration
	NewTicker    TickerFunc
	// Observer receives session events. It runs without the engine lock held
	// but must not call Close.
	Observer func(Event)
	Logger   *zerolog.Logger
}

// Engine is the exam session state of a single student. It is safe for
// concurrent use; the countdown runs in its own goroutine.
type Engine struct {
	baseCtx      context.Context
	student      model.Student
	sender       ResultSender
	now          func() time.Time
	tickInterval time.Duration
	newTicker    TickerFunc
	observer     func(Event)
	log          zerolog.Logger

	mu      sync.Mutex
	exams   []model.Exam
	results []model.Result
	loadErr error
	closed  bool

	sessionID  string
	exam       *model.Exam
	started    bool
	submitting bool
	index      int
	remaining  int
	answers    AnswerStore
	timer      *countdown

	// inflight counts submissions between beginSubmitLocked and finishSubmit.
	inflight sync.WaitGroup
}

// New creates an Engine. ctx bounds timer-driven submissions.
func New(ctx context.Context, opts Options) *Engine {
	e := &Engine{
		baseCtx:      ctx,
		student:      opts.Student,
		sender:       opts.Sender,
		now:          opts.Now,
		tickInterval: opts.TickInterval,
		newTicker:    opts.NewTicker,
		observer:     opts.Observer,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.tickInterval <= 0 {
		e.tickInterval = DefaultTickInterval
	}
	if e.newTicker == nil {
		e.newTicker = realTicker
	}
	base := zerolog.Nop()
	if opts.Logger != nil {
		base = *opts.Logger
	}
	e.log = base.With().
		Str("component", "engine").
		Str("student_id", opts.Student.ID).
		Logger()
	return e
}

// Student returns the engine's owner.
func (e *Engine) Student() model.Student {
	return e.student
}

// Active reports whether an exam session is running.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exam != nil
}

// State returns a snapshot of the active session. Started is false when no
// session is running.
func (e *Engine) State() model.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := model.SessionState{
		SessionID:        e.sessionID,
		Started:          e.started,
		CurrentQuestion:  e.index,
		RemainingSeconds: e.remaining,
		Answers:          map[string]int{},
	}
	if e.exam != nil {
		paper := e.exam.ForStudent()
		state.Exam = &paper
		state.Answers = e.answers.Snapshot()
	}
	return state
}

// Close ends the engine: the countdown is stopped and released and any
// session is discarded without submission. It waits for the timer goroutine
// and for a submission already in flight until ctx is done.
func (e *Engine) Close(ctx context.Context) {
	e.mu.Lock()
	e.closed = true
	timer := e.timer
	discarded := e.exam != nil && !e.submitting
	sessionID := e.sessionID
	var examID string
	if e.exam != nil {
		examID = e.exam.ID
	}
	if discarded {
		e.resetLocked()
	}
	e.stopTimerLocked()
	e.mu.Unlock()

	if discarded {
		e.log.Info().Str("session_id", sessionID).Msg("Session discarded on close")
		e.emit(Event{Type: EventLeft, SessionID: sessionID, ExamID: examID})
	}
	if timer != nil {
		timer.Wait(ctx)
	}
	e.waitInflight(ctx)
}

func (e *Engine) waitInflight(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.log.Warn().Msg("Close gave up waiting for an in-flight submission")
	}
}

// resetLocked clears every session field.
func (e *Engine) resetLocked() {
	e.sessionID = ""
	e.exam = nil
	e.started = false
	e.submitting = false
	e.index = 0
	e.remaining = 0
	e.answers = nil
}

func (e *Engine) emit(ev Event) {
	if e.observer != nil {
		e.observer(ev)
	}
}
