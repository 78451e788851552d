package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upl-platform/exam-portal/internal/model"
	"github.com/upl-platform/exam-portal/internal/response"
	"github.com/upl-platform/exam-portal/internal/service"
)

func TestListActiveSessions(t *testing.T) {
	f := newAPIFixture(t)
	f.engine.GET("/monitor", NewMonitorHandler(f.portal, f.rdb, zerolog.Nop()).ListActiveSessions)

	idle := model.Student{ID: "stu-9", Name: "Zoé Martin", Role: model.RoleStudent}
	do(t, f.engine, http.MethodGet, "/api/v1/student/lobby", f.token(t, idle), nil)

	tok := f.token(t, yanis)
	do(t, f.engine, http.MethodPost, "/api/v1/student/exams/exam-1/start", tok, nil)
	option := 0
	do(t, f.engine, http.MethodPut, "/api/v1/student/session/answers", tok, model.SelectAnswerRequest{QuestionID: "q1", Option: &option})

	w, env := do(t, f.engine, http.MethodGet, "/monitor", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Sessions []service.LiveSession `json:"sessions"`
		Count    int                   `json:"count"`
	}
	decodeData(t, env, &body)
	require.Equal(t, 1, body.Count)
	s := body.Sessions[0]
	assert.Equal(t, yanis.ID, s.StudentID)
	assert.Equal(t, "exam-1", s.ExamID)
	assert.Equal(t, 1, s.Answered)
	assert.Equal(t, 3, s.TotalQuestions)
	assert.Equal(t, 55*60, s.RemainingSeconds)

	w, env = do(t, f.engine, http.MethodGet, "/monitor?exam_id=other", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, env, &body)
	assert.Zero(t, body.Count)
	assert.Empty(t, body.Sessions)
}

// openMonitor connects to the live feed and decodes its data frames.
func openMonitor(t *testing.T, h http.Handler, path string) <-chan service.MonitorEvent {
	t.Helper()
	srv := httptest.NewServer(h)
	ctx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	t.Cleanup(func() {
		cancel()
		_ = resp.Body.Close()
		srv.Close()
	})

	events := make(chan service.MonitorEvent, 32)
	go func(body io.Reader) {
		defer close(events)
		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			line, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var ev service.MonitorEvent
			if json.Unmarshal([]byte(line), &ev) == nil {
				events <- ev
			}
		}
	}(resp.Body)
	return events
}

func nextMonitorEvent(t *testing.T, events <-chan service.MonitorEvent, typ service.MonitorEventType) service.MonitorEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "monitor stream closed")
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestStreamExamForwardsSessionActivity(t *testing.T) {
	f := newAPIFixture(t)
	f.engine.GET("/monitor/:exam_id", NewMonitorHandler(f.portal, f.rdb, zerolog.Nop()).StreamExam)

	tok := f.token(t, yanis)
	w, _ := do(t, f.engine, http.MethodPost, "/api/v1/student/exams/exam-1/start", tok, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	events := openMonitor(t, f.engine, "/monitor/exam-1")
	snap := nextMonitorEvent(t, events, service.MonitorSnapshot)
	assert.Equal(t, "exam-1", snap.ExamID)
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, yanis.ID, snap.Sessions[0].StudentID)

	option := 2
	do(t, f.engine, http.MethodPut, "/api/v1/student/session/answers", tok, model.SelectAnswerRequest{QuestionID: "q1", Option: &option})
	saved := nextMonitorEvent(t, events, service.MonitorAnswerSaved)
	assert.Equal(t, yanis.ID, saved.StudentID)
	require.NotNil(t, saved.Answered)
	assert.Equal(t, 1, *saved.Answered)
	assert.Equal(t, 3, saved.TotalQuestions)

	w, _ = do(t, f.engine, http.MethodPost, "/api/v1/student/session/submit", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	done := nextMonitorEvent(t, events, service.MonitorStudentSubmitted)
	assert.Equal(t, model.SubmitTriggerManual, done.Trigger)
	require.NotNil(t, done.Score)
	assert.Equal(t, 33, *done.Score)
}

func TestStreamExamSendsStartsAndDepartures(t *testing.T) {
	f := newAPIFixture(t)
	f.engine.GET("/monitor/:exam_id", NewMonitorHandler(f.portal, f.rdb, zerolog.Nop()).StreamExam)

	events := openMonitor(t, f.engine, "/monitor/exam-1")
	snap := nextMonitorEvent(t, events, service.MonitorSnapshot)
	assert.Empty(t, snap.Sessions)

	tok := f.token(t, yanis)
	do(t, f.engine, http.MethodPost, "/api/v1/student/exams/exam-1/start", tok, nil)
	started := nextMonitorEvent(t, events, service.MonitorStudentStarted)
	assert.Equal(t, yanis.Name, started.StudentName)
	require.NotNil(t, started.RemainingSeconds)
	assert.Equal(t, 55*60, *started.RemainingSeconds)

	do(t, f.engine, http.MethodDelete, "/api/v1/student/session", tok, nil)
	left := nextMonitorEvent(t, events, service.MonitorStudentLeft)
	assert.Equal(t, yanis.ID, left.StudentID)
}

func TestStreamExamRefreshesSnapshots(t *testing.T) {
	f := newAPIFixture(t)
	h := NewMonitorHandler(f.portal, f.rdb, zerolog.Nop())
	h.refreshInterval = 20 * time.Millisecond
	f.engine.GET("/monitor/:exam_id", h.StreamExam)

	events := openMonitor(t, f.engine, "/monitor/exam-1")
	nextMonitorEvent(t, events, service.MonitorSnapshot)
	nextMonitorEvent(t, events, service.MonitorSnapshot)
}

func TestStreamExamWithoutRedis(t *testing.T) {
	f := newAPIFixture(t)
	f.engine.GET("/monitor/:exam_id", NewMonitorHandler(f.portal, nil, zerolog.Nop()).StreamExam)

	w, env := do(t, f.engine, http.MethodGet, "/monitor/exam-1", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrMonitorUnavailable, env.Error.Code)
}
