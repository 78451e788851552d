package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/upl-platform/exam-portal/internal/backend"
	"github.com/upl-platform/exam-portal/internal/config"
	"github.com/upl-platform/exam-portal/internal/engine"
	"github.com/upl-platform/exam-portal/internal/model"
)

const sideEffectTimeout = 5 * time.Second

// ExamBackend is the exam backend seen through one student's token.
type ExamBackend interface {
	engine.ExamSource
	engine.ResultSender
}

// BackendFactory binds the exam backend to a bearer token.
type BackendFactory func(token string) ExamBackend

// ResultLedger records results submitted through the portal.
type ResultLedger interface {
	Create(ctx context.Context, sr *model.StoredResult) error
	MarkDelivered(ctx context.Context, id string) error
}

// PortalOptions configures a PortalService. Ledger may be nil.
type PortalOptions struct {
	Backend       BackendFactory
	Ledger        ResultLedger
	RDB           *redis.Client
	Hub           *Hub
	TickInterval  time.Duration
	LockGrace     time.Duration
	OutboxEnabled bool
	PassMark      int
	Now           func() time.Time
	NewTicker     engine.TickerFunc
	Logger        zerolog.Logger
}

// releaseLockScript deletes the guard only if this portal still owns it.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// PortalService keeps one exam engine per signed-in student.
type PortalService struct {
	baseCtx context.Context
	opts    PortalOptions
	log     zerolog.Logger

	mu      sync.Mutex
	entries map[string]*studentEntry
	closed  bool
}

type studentEntry struct {
	svc     *PortalService
	student model.Student
	engine  *engine.Engine

	mu      sync.Mutex
	token   string
	lockVal string
	queued  map[string]bool
}

// NewPortalService creates a PortalService. ctx bounds timer-driven
// submissions of every engine.
func NewPortalService(ctx context.Context, opts PortalOptions) *PortalService {
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PortalService{
		baseCtx: ctx,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "portal_service").Logger(),
		entries: make(map[string]*studentEntry),
	}
}

// Hub returns the event hub streams subscribe to.
func (s *PortalService) Hub() *Hub {
	return s.opts.Hub
}

// ─── Engine registry ─────────────────────────────────────────────────────────

func (s *PortalService) entryFor(student model.Student, token string) (*studentEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, engine.ErrClosed
	}

	if e, ok := s.entries[student.ID]; ok {
		e.setToken(token)
		return e, nil
	}

	e := &studentEntry{svc: s, student: student, token: token, queued: make(map[string]bool)}
	logger := s.opts.Logger
	e.engine = engine.New(s.baseCtx, engine.Options{
		Student:      student,
		Sender:       e,
		Now:          s.opts.Now,
		TickInterval: s.opts.TickInterval,
		NewTicker:    s.opts.NewTicker,
		Observer:     e.observe,
		Logger:       &logger,
	})
	s.entries[student.ID] = e
	s.log.Debug().Str("student_id", student.ID).Msg("Engine created")
	return e, nil
}

func (s *PortalService) existing(studentID string) (*studentEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[studentID]
	return e, ok
}

func (e *studentEntry) setToken(token string) {
	if token == "" {
		return
	}
	e.mu.Lock()
	e.token = token
	e.mu.Unlock()
}

func (e *studentEntry) currentToken() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token
}

func (e *studentEntry) backend() ExamBackend {
	return e.svc.opts.Backend(e.currentToken())
}

// SendResult forwards to the backend with the freshest token.
func (e *studentEntry) SendResult(ctx context.Context, r model.Result) error {
	return e.backend().SendResult(ctx, r)
}

// ─── Student operations ──────────────────────────────────────────────────────

// Lobby refreshes the student's exams and results. A backend failure is
// reported inside the view, not as an error.
func (s *PortalService) Lobby(ctx context.Context, student model.Student, token string) (*LobbyView, error) {
	e, err := s.entryFor(student, token)
	if err != nil {
		return nil, err
	}

	view := &LobbyView{}
	if err := e.engine.Load(ctx, e.backend()); err != nil {
		view.LoadError = err.Error()
	}

	lobby := e.engine.Lobby()
	view.Exams = make([]LobbyItem, len(lobby))
	for i, exam := range lobby {
		view.Exams[i] = newLobbyItem(exam)
	}
	results := e.engine.Results()
	view.Results = make([]ResultView, len(results))
	for i, r := range results {
		view.Results[i] = NewResultView(r, s.opts.PassMark)
	}
	if e.engine.Active() {
		state := e.engine.State()
		view.ActiveSession = &state
	}
	return view, nil
}

// StartExam opens a session on examID. The exam must be in the student's
// lobby; the lobby is loaded first when it is empty.
func (s *PortalService) StartExam(ctx context.Context, student model.Student, token, examID string) (*model.SessionState, error) {
	e, err := s.entryFor(student, token)
	if err != nil {
		return nil, err
	}

	exam, err := e.engine.FindExam(examID)
	if errors.Is(err, engine.ErrExamNotFound) {
		if loadErr := e.engine.Load(ctx, e.backend()); loadErr != nil {
			return nil, loadErr
		}
		exam, err = e.engine.FindExam(examID)
	}
	if err != nil {
		return nil, err
	}

	lockVal, err := s.acquireLock(ctx, student.ID, exam)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.lockVal = lockVal
	e.mu.Unlock()
	if err := e.engine.StartExam(exam); err != nil {
		e.releaseLock()
		return nil, err
	}

	state := e.engine.State()
	return &state, nil
}

// State returns the running session of studentID.
func (s *PortalService) State(studentID string) (*model.SessionState, error) {
	e, ok := s.existing(studentID)
	if !ok || !e.engine.Active() {
		return nil, engine.ErrNoActiveSession
	}
	state := e.engine.State()
	return &state, nil
}

// Navigate moves the current question and returns the new state.
func (s *PortalService) Navigate(studentID string, dir model.Direction) (*model.SessionState, error) {
	e, ok := s.existing(studentID)
	if !ok || !e.engine.Active() {
		return nil, engine.ErrNoActiveSession
	}
	e.engine.Navigate(dir)
	state := e.engine.State()
	return &state, nil
}

// SelectAnswer stores one answer and returns the new state.
func (s *PortalService) SelectAnswer(studentID, questionID string, option int) (*model.SessionState, error) {
	e, ok := s.existing(studentID)
	if !ok {
		return nil, engine.ErrNoActiveSession
	}
	applied, err := e.engine.SelectAnswer(questionID, option)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, engine.ErrNoActiveSession
	}
	state := e.engine.State()
	if state.Exam != nil {
		answered := len(state.Answers)
		s.publishMonitor(MonitorEvent{
			Type:           MonitorAnswerSaved,
			ExamID:         state.Exam.ID,
			StudentID:      e.student.ID,
			StudentName:    e.student.Name,
			Faculty:        e.student.Faculty,
			SessionID:      state.SessionID,
			Answered:       &answered,
			TotalQuestions: len(state.Exam.Questions),
		})
	}
	return &state, nil
}

// Submit hands the running session in. When delivery fails but the result
// was queued for retry, the outcome is returned without error.
func (s *PortalService) Submit(ctx context.Context, studentID string) (*SubmitOutcome, error) {
	e, ok := s.existing(studentID)
	if !ok {
		return nil, engine.ErrNoActiveSession
	}
	sessionID := e.engine.State().SessionID

	result, err := e.engine.Submit(ctx, model.SubmitTriggerManual)
	if result == nil {
		return nil, err
	}
	out := &SubmitOutcome{
		Result: NewResultView(*result, s.opts.PassMark),
		Queued: e.takeQueued(sessionID),
	}
	if err != nil && !out.Queued {
		return out, err
	}
	return out, nil
}

// Leave abandons the running session without submitting it.
func (s *PortalService) Leave(studentID string) error {
	e, ok := s.existing(studentID)
	if !ok || !e.engine.Leave() {
		return engine.ErrNoActiveSession
	}
	return nil
}

// Logout closes the student's engine. A running session is discarded.
func (s *PortalService) Logout(ctx context.Context, studentID string) {
	s.mu.Lock()
	e, ok := s.entries[studentID]
	delete(s.entries, studentID)
	s.mu.Unlock()

	if ok {
		e.engine.Close(ctx)
		s.log.Info().Str("student_id", studentID).Msg("Engine closed on logout")
	}
}

// Shutdown closes every engine.
func (s *PortalService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	entries := s.entries
	s.entries = make(map[string]*studentEntry)
	s.mu.Unlock()

	for _, e := range entries {
		e.engine.Close(ctx)
	}
	s.log.Info().Int("engines", len(entries)).Msg("Portal engines closed")
}

// ─── Session guard ───────────────────────────────────────────────────────────

// acquireLock claims the student's single-session guard for the exam window.
func (s *PortalService) acquireLock(ctx context.Context, studentID string, exam model.Exam) (string, error) {
	if s.opts.RDB == nil {
		return "", nil
	}
	ttl := exam.EndTime.Sub(s.opts.Now()) + s.opts.LockGrace
	if ttl <= 0 {
		ttl = time.Minute
	}

	val := uuid.New().String()
	ok, err := s.opts.RDB.SetNX(ctx, config.CacheKey.StudentActiveExamKey(studentID), val, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire session guard: %w", err)
	}
	if !ok {
		return "", &engine.RejectionError{Reason: engine.RejectSessionActive, ExamID: exam.ID}
	}
	return val, nil
}

func (s *PortalService) releaseLock(studentID, val string) {
	if s.opts.RDB == nil || val == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	key := config.CacheKey.StudentActiveExamKey(studentID)
	if err := releaseLockScript.Run(ctx, s.opts.RDB, []string{key}, val).Err(); err != nil {
		s.log.Warn().Err(err).Str("student_id", studentID).Msg("Failed to release session guard")
	}
}

func (e *studentEntry) releaseLock() {
	e.mu.Lock()
	val := e.lockVal
	e.lockVal = ""
	e.mu.Unlock()
	e.svc.releaseLock(e.student.ID, val)
}

// ─── Engine events ───────────────────────────────────────────────────────────

func (e *studentEntry) observe(ev engine.Event) {
	s := e.svc
	out := StreamEvent{SessionID: ev.SessionID, ExamID: ev.ExamID}

	switch ev.Type {
	case engine.EventStarted:
		out.Event = StreamStarted
		remaining := ev.Remaining
		out.RemainingSeconds = &remaining

	case engine.EventTick:
		out.Event = StreamTick
		remaining := ev.Remaining
		out.RemainingSeconds = &remaining

	case engine.EventLeft:
		e.releaseLock()
		out.Event = StreamLeft

	case engine.EventSubmitted, engine.EventSubmitFailed:
		delivered := ev.Type == engine.EventSubmitted
		ledgerID := e.record(ev, delivered)
		if !delivered {
			out.Queued = e.enqueue(ev, ledgerID)
			out.Message = backend.Message(ev.Err)
		}
		e.releaseLock()

		out.Event = StreamSubmitted
		if !delivered {
			out.Event = StreamSubmitFailed
		}
		out.Trigger = ev.Trigger
		if ev.Result != nil {
			view := NewResultView(*ev.Result, s.opts.PassMark)
			out.Result = &view
		}

	default:
		return
	}

	s.opts.Hub.Publish(e.student.ID, out)
	if mev, ok := e.monitorEventFor(ev); ok {
		s.publishMonitor(mev)
	}
}

func (e *studentEntry) record(ev engine.Event, delivered bool) string {
	s := e.svc
	if s.opts.Ledger == nil || ev.Result == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	sr := &model.StoredResult{Result: *ev.Result, Trigger: ev.Trigger, Delivered: delivered}
	if err := s.opts.Ledger.Create(ctx, sr); err != nil {
		s.log.Error().Err(err).
			Str("student_id", e.student.ID).
			Str("exam_id", ev.ExamID).
			Msg("Failed to record result")
		return ""
	}
	return sr.ID
}

// enqueue parks an undelivered result in the outbox. It reports whether the
// result was queued.
func (e *studentEntry) enqueue(ev engine.Event, ledgerID string) bool {
	s := e.svc
	if !s.opts.OutboxEnabled || s.opts.RDB == nil || ev.Result == nil {
		return false
	}
	token := e.currentToken()
	raw, err := json.Marshal(model.OutboxEntry{
		LedgerID:       ledgerID,
		Token:          token,
		TokenExpiresAt: tokenExpiry(token),
		Result:         *ev.Result,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode outbox entry")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	if err := s.opts.RDB.RPush(ctx, config.WorkerKey.SubmitOutboxQueue, raw).Err(); err != nil {
		s.log.Error().Err(err).Str("exam_id", ev.ExamID).Msg("Failed to queue result for retry")
		return false
	}

	if ev.Trigger == model.SubmitTriggerManual {
		e.mu.Lock()
		e.queued[ev.SessionID] = true
		e.mu.Unlock()
	}
	s.log.Info().Str("student_id", e.student.ID).Str("exam_id", ev.ExamID).Msg("Result queued for retry")
	return true
}

// tokenExpiry reads the exp claim without verifying the signature; the
// token was already validated by the request that carried it.
func tokenExpiry(token string) model.Timestamp {
	claims, err := ParseUnverified(token)
	if err != nil || claims.ExpiresAt == nil {
		return model.Timestamp{}
	}
	return model.NewTimestamp(claims.ExpiresAt.Time)
}

func (e *studentEntry) takeQueued(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.queued[sessionID]
	delete(e.queued, sessionID)
	return q
}
