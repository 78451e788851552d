package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/upl-platform/exam-portal/internal/model"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// manualTicker hands out tick channels that tests drive by hand.
type manualTicker struct {
	mu       sync.Mutex
	chans    []chan time.Time
	released int
}

func (m *manualTicker) New(time.Duration) (<-chan time.Time, func()) {
	ch := make(chan time.Time)
	m.mu.Lock()
	m.chans = append(m.chans, ch)
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		m.released++
		m.mu.Unlock()
	}
}

func (m *manualTicker) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chans)
}

func (m *manualTicker) releasedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// fire delivers one tick on the i-th ticker. It returns false if nobody is
// listening any more.
func (m *manualTicker) fire(i int) bool {
	m.mu.Lock()
	ch := m.chans[i]
	m.mu.Unlock()
	select {
	case ch <- time.Now():
		return true
	case <-time.After(200 * time.Millisecond):
		return false
	}
}

type recordingSender struct {
	mu      sync.Mutex
	sent    []model.Result
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (s *recordingSender) SendResult(ctx context.Context, r model.Result) error {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, r)
	return s.err
}

func (s *recordingSender) results() []model.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Result(nil), s.sent...)
}

type stubSource struct {
	exams      []model.Exam
	results    []model.Result
	examsErr   error
	resultsErr error
	faculty    string
}

func (s *stubSource) ListExams(_ context.Context, faculty string) ([]model.Exam, error) {
	s.faculty = faculty
	return s.exams, s.examsErr
}

func (s *stubSource) ListResults(context.Context) ([]model.Result, error) {
	return s.results, s.resultsErr
}

var errBackendDown = errors.New("backend down")

type harness struct {
	engine *Engine
	clock  *fakeClock
	ticker *manualTicker
	sender *recordingSender
	events chan Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:  &fakeClock{now: baseTime},
		ticker: &manualTicker{},
		sender: &recordingSender{},
		events: make(chan Event, 256),
	}
	h.engine = New(context.Background(), Options{
		Student:   model.Student{ID: "stu-1", Name: "Amina Diallo", Faculty: "sciences", Role: model.RoleStudent},
		Sender:    h.sender,
		Now:       h.clock.Now,
		NewTicker: h.ticker.New,
		Observer:  func(ev Event) { h.events <- ev },
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.engine.Close(ctx)
	})
	return h
}

// waitEvent returns the next event of the given type.
func (h *harness) waitEvent(t *testing.T, typ EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func openExam(questions int) model.Exam {
	exam := model.Exam{
		ID:        "exam-1",
		Title:     "Analyse I",
		Subject:   "Mathématiques",
		Duration:  60,
		Faculty:   "sciences",
		StartTime: model.NewTimestamp(baseTime.Add(-10 * time.Minute)),
		EndTime:   model.NewTimestamp(baseTime.Add(50 * time.Minute)),
	}
	for i := 0; i < questions; i++ {
		exam.Questions = append(exam.Questions, model.Question{
			ID:            qid(i),
			Question:      "Question",
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: i % 4,
		})
	}
	return exam
}

func qid(i int) string {
	return "q" + string(rune('a'+i))
}

func requireStarted(t *testing.T, h *harness, exam model.Exam) {
	t.Helper()
	require.NoError(t, h.engine.StartExam(exam))
	h.waitEvent(t, EventStarted)
}

func (h *harness) requireReleased(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ticker.releasedCount() == n },
		2*time.Second, 5*time.Millisecond, "ticker not released")
}
