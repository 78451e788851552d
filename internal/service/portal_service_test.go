package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upl-platform/exam-portal/internal/backend"
	"github.com/upl-platform/exam-portal/internal/config"
	"github.com/upl-platform/exam-portal/internal/engine"
	"github.com/upl-platform/exam-portal/internal/model"
)

var portalNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu      sync.Mutex
	exams   []model.Exam
	results []model.Result
	listErr error
	sendErr error
	sent    []model.Result
	tokens  []string
}

func (f *fakeBackend) factory(token string) ExamBackend {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	f.mu.Unlock()
	return f
}

func (f *fakeBackend) ListExams(context.Context, string) ([]model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exams, f.listErr
}

func (f *fakeBackend) ListResults(context.Context) ([]model.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results, f.listErr
}

func (f *fakeBackend) SendResult(_ context.Context, r model.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, r)
	return nil
}

func (f *fakeBackend) lastToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[len(f.tokens)-1]
}

type fakeLedger struct {
	mu        sync.Mutex
	rows      []model.StoredResult
	delivered map[string]bool
}

func (l *fakeLedger) Create(_ context.Context, sr *model.StoredResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	sr.ID = fmt.Sprintf("led-%d", len(l.rows)+1)
	l.rows = append(l.rows, *sr)
	return nil
}

func (l *fakeLedger) MarkDelivered(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.delivered == nil {
		l.delivered = map[string]bool{}
	}
	l.delivered[id] = true
	return nil
}

func (l *fakeLedger) all() []model.StoredResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.StoredResult(nil), l.rows...)
}

type ticks struct {
	mu    sync.Mutex
	chans []chan time.Time
}

func (tk *ticks) New(time.Duration) (<-chan time.Time, func()) {
	ch := make(chan time.Time)
	tk.mu.Lock()
	tk.chans = append(tk.chans, ch)
	tk.mu.Unlock()
	return ch, func() {}
}

func (tk *ticks) fire(t *testing.T, i int) {
	t.Helper()
	tk.mu.Lock()
	ch := tk.chans[i]
	tk.mu.Unlock()
	select {
	case ch <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("ticker not listening")
	}
}

type portalFixture struct {
	svc     *PortalService
	backend *fakeBackend
	ledger  *fakeLedger
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	ticks   *ticks
}

func examAt(id string, questions int) model.Exam {
	exam := model.Exam{
		ID:        id,
		Title:     "Chimie organique",
		Subject:   "Chimie",
		Duration:  60,
		Faculty:   "sciences",
		StartTime: model.NewTimestamp(portalNow.Add(-5 * time.Minute)),
		EndTime:   model.NewTimestamp(portalNow.Add(55 * time.Minute)),
	}
	for i := 0; i < questions; i++ {
		exam.Questions = append(exam.Questions, model.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			Question:      "?",
			Options:       []string{"a", "b", "c"},
			CorrectAnswer: 1,
		})
	}
	return exam
}

func newPortalFixture(t *testing.T, outbox bool) *portalFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &portalFixture{
		backend: &fakeBackend{exams: []model.Exam{examAt("exam-1", 2)}},
		ledger:  &fakeLedger{},
		mr:      mr,
		rdb:     rdb,
		ticks:   &ticks{},
	}
	f.svc = f.newService(outbox)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		f.svc.Shutdown(ctx)
	})
	return f
}

func (f *portalFixture) newService(outbox bool) *PortalService {
	return NewPortalService(context.Background(), PortalOptions{
		Backend:       f.backend.factory,
		Ledger:        f.ledger,
		RDB:           f.rdb,
		LockGrace:     time.Minute,
		OutboxEnabled: outbox,
		PassMark:      60,
		Now:           func() time.Time { return portalNow },
		NewTicker:     f.ticks.New,
		Logger:        zerolog.Nop(),
	})
}

func (f *portalFixture) guardKey() string {
	return config.CacheKey.StudentActiveExamKey(amina.ID)
}

func TestPortalLobby(t *testing.T) {
	f := newPortalFixture(t, false)
	f.backend.exams = append(f.backend.exams, examAt("exam-2", 0))
	f.backend.results = []model.Result{{ExamID: "old", Score: 75, TotalQuestions: 4}}

	view, err := f.svc.Lobby(context.Background(), amina, "tok-1")
	require.NoError(t, err)
	require.Len(t, view.Exams, 2)
	assert.Equal(t, 2, view.Exams[0].QuestionCount)
	assert.Equal(t, model.ExamStatusActive, view.Exams[0].Status)
	require.Len(t, view.Results, 1)
	assert.Equal(t, 3, view.Results[0].CorrectAnswers)
	assert.True(t, view.Results[0].Passed)
	assert.Empty(t, view.LoadError)
	assert.Nil(t, view.ActiveSession)
	assert.Equal(t, "tok-1", f.backend.lastToken())
}

func TestPortalLobbyReportsLoadFailure(t *testing.T) {
	f := newPortalFixture(t, false)
	f.backend.listErr = &backend.StatusError{Status: 503}

	view, err := f.svc.Lobby(context.Background(), amina, "tok")
	require.NoError(t, err)
	assert.NotEmpty(t, view.LoadError)
	assert.Empty(t, view.Exams)
	assert.Empty(t, view.Results)
}

func TestPortalStartTakesGuard(t *testing.T) {
	f := newPortalFixture(t, false)

	state, err := f.svc.StartExam(context.Background(), amina, "tok", "exam-1")
	require.NoError(t, err)
	assert.True(t, state.Started)
	assert.Equal(t, 55*60, state.RemainingSeconds)
	require.NotNil(t, state.Exam)
	assert.Equal(t, "exam-1", state.Exam.ID)

	assert.True(t, f.mr.Exists(f.guardKey()))
	assert.Equal(t, 56*time.Minute, f.mr.TTL(f.guardKey()))

	_, err = f.svc.StartExam(context.Background(), amina, "tok", "exam-1")
	assert.ErrorIs(t, err, engine.ErrSessionActive)
}

func TestPortalGuardSpansInstances(t *testing.T) {
	f := newPortalFixture(t, false)
	_, err := f.svc.StartExam(context.Background(), amina, "tok", "exam-1")
	require.NoError(t, err)

	other := f.newService(false)
	defer other.Shutdown(context.Background())
	_, err = other.StartExam(context.Background(), amina, "tok", "exam-1")
	assert.ErrorIs(t, err, engine.ErrSessionActive)
}

func TestPortalStartRejectionReleasesGuard(t *testing.T) {
	f := newPortalFixture(t, false)
	f.backend.exams = []model.Exam{examAt("empty", 0)}

	_, err := f.svc.StartExam(context.Background(), amina, "tok", "empty")
	assert.ErrorIs(t, err, engine.ErrNoQuestions)
	assert.False(t, f.mr.Exists(f.guardKey()))
}

func TestPortalStartUnknownExam(t *testing.T) {
	f := newPortalFixture(t, false)
	_, err := f.svc.StartExam(context.Background(), amina, "tok", "nope")
	assert.ErrorIs(t, err, engine.ErrExamNotFound)
	assert.False(t, f.mr.Exists(f.guardKey()))
}

func TestPortalAnswerAndNavigate(t *testing.T) {
	f := newPortalFixture(t, false)

	_, err := f.svc.SelectAnswer(amina.ID, "q1", 1)
	assert.ErrorIs(t, err, engine.ErrNoActiveSession)

	_, err = f.svc.StartExam(context.Background(), amina, "tok", "exam-1")
	require.NoError(t, err)

	state, err := f.svc.SelectAnswer(amina.ID, "q1", 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"q1": 1}, state.Answers)

	_, err = f.svc.SelectAnswer(amina.ID, "q1", 7)
	assert.ErrorIs(t, err, engine.ErrInvalidAnswer)

	state, err = f.svc.Navigate(amina.ID, model.DirectionNext)
	require.NoError(t, err)
	assert.Equal(t, 1, state.CurrentQuestion)

	state, err = f.svc.State(amina.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, state.CurrentQuestion)
}

func TestPortalSubmitRecordsAndReleases(t *testing.T) {
	f := newPortalFixture(t, false)
	events, cancel := f.svc.Hub().Subscribe(amina.ID)
	defer cancel()

	_, err := f.svc.StartExam(context.Background(), amina, "tok", "exam-1")
	require.NoError(t, err)
	_, err = f.svc.SelectAnswer(amina.ID, "q1", 1)
	require.NoError(t, err)

	out, err := f.svc.Submit(context.Background(), amina.ID)
	require.NoError(t, err)
	assert.False(t, out.Queued)
	assert.Equal(t, 50, out.Result.Score)
	assert.Equal(t, 1, out.Result.CorrectAnswers)
	assert.False(t, out.Result.Passed)

	rows := f.ledger.all()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Delivered)
	assert.Equal(t, model.SubmitTriggerManual, rows[0].Trigger)
	assert.False(t, f.mr.Exists(f.guardKey()))

	var last StreamEvent
	for ev := range drain(events) {
		last = ev
	}
	assert.Equal(t, StreamSubmitted, last.Event)

	_, err = f.svc.Submit(context.Background(), amina.ID)
	assert.ErrorIs(t, err, engine.ErrNoActiveSession)
}

func TestPortalSubmitFailureWithoutOutbox(t *testing.T) {
	f := newPortalFixture(t, false)
	f.backend.sendErr = &backend.StatusError{Status: 400, Message: "Examen clôturé"}

	_, err := f.svc.StartExam(context.Background(), amina, "tok", "exam-1")
	require.NoError(t, err)

	out, err := f.svc.Submit(context.Background(), amina.ID)
	var subErr *engine.SubmitError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "Examen clôturé", backend.Message(err))
	require.NotNil(t, out)
	assert.False(t, out.Queued)

	rows := f.ledger.all()
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Delivered)
	assert.False(t, f.mr.Exists(config.WorkerKey.SubmitOutboxQueue))
	assert.False(t, f.mr.Exists(f.guardKey()))
}

func TestPortalSubmitFailureQueuesToOutbox(t *testing.T) {
	f := newPortalFixture(t, true)
	f.backend.sendErr = errors.New("connection refused")

	_, err := f.svc.StartExam(context.Background(), amina, "tok-9", "exam-1")
	require.NoError(t, err)

	out, err := f.svc.Submit(context.Background(), amina.ID)
	require.NoError(t, err)
	assert.True(t, out.Queued)

	items, err := f.rdb.LRange(context.Background(), config.WorkerKey.SubmitOutboxQueue, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, items, 1)

	var entry model.OutboxEntry
	require.NoError(t, json.Unmarshal([]byte(items[0]), &entry))
	assert.Equal(t, "tok-9", entry.Token)
	assert.True(t, entry.TokenExpiresAt.IsZero())
	assert.Equal(t, "led-1", entry.LedgerID)
	assert.Equal(t, "exam-1", entry.Result.ExamID)
}

func TestPortalOutboxEntryCarriesTokenExpiry(t *testing.T) {
	f := newPortalFixture(t, true)
	f.backend.sendErr = errors.New("connection refused")
	auth := NewAuthService(&config.Config{JWTSecret: "secret", JWTExpiry: time.Hour}, nil)
	token, err := auth.IssueToken(amina)
	require.NoError(t, err)

	_, err = f.svc.StartExam(context.Background(), amina, token, "exam-1")
	require.NoError(t, err)
	_, err = f.svc.Submit(context.Background(), amina.ID)
	require.NoError(t, err)

	items, err := f.rdb.LRange(context.Background(), config.WorkerKey.SubmitOutboxQueue, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, items, 1)

	var entry model.OutboxEntry
	require.NoError(t, json.Unmarshal([]byte(items[0]), &entry))
	assert.Equal(t, token, entry.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), entry.TokenExpiresAt.Time, 5*time.Second)
}

func TestPortalTimerAutoSubmit(t *testing.T) {
	f := newPortalFixture(t, false)
	exam := examAt("short", 1)
	exam.EndTime = model.NewTimestamp(portalNow.Add(time.Second))
	f.backend.exams = []model.Exam{exam}
	events, cancel := f.svc.Hub().Subscribe(amina.ID)
	defer cancel()

	_, err := f.svc.StartExam(context.Background(), amina, "tok", "short")
	require.NoError(t, err)
	f.ticks.fire(t, 0)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Event != StreamSubmitted {
				continue
			}
			assert.Equal(t, model.SubmitTriggerTimer, ev.Trigger)
			require.Len(t, f.ledger.all(), 1)
			assert.Equal(t, model.SubmitTriggerTimer, f.ledger.all()[0].Trigger)
			return
		case <-deadline:
			t.Fatal("no submitted event")
		}
	}
}

func TestPortalLeaveAndLogout(t *testing.T) {
	f := newPortalFixture(t, false)

	_, err := f.svc.StartExam(context.Background(), amina, "tok", "exam-1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Leave(amina.ID))
	assert.False(t, f.mr.Exists(f.guardKey()))
	assert.ErrorIs(t, f.svc.Leave(amina.ID), engine.ErrNoActiveSession)

	_, err = f.svc.StartExam(context.Background(), amina, "tok", "exam-1")
	require.NoError(t, err)
	f.svc.Logout(context.Background(), amina.ID)
	assert.False(t, f.mr.Exists(f.guardKey()))
	_, err = f.svc.State(amina.ID)
	assert.ErrorIs(t, err, engine.ErrNoActiveSession)
	assert.Empty(t, f.backend.sent)
}

// drain returns the events already buffered on ch.
func drain(ch <-chan StreamEvent) <-chan StreamEvent {
	out := make(chan StreamEvent, subscriberBuffer)
	for {
		select {
		case ev := <-ch:
			out <- ev
		default:
			close(out)
			return out
		}
	}
}
