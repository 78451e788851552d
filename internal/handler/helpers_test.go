package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/upl-platform/exam-portal/internal/config"
	"github.com/upl-platform/exam-portal/internal/middleware"
	"github.com/upl-platform/exam-portal/internal/model"
	"github.com/upl-platform/exam-portal/internal/response"
	"github.com/upl-platform/exam-portal/internal/service"
	"github.com/upl-platform/exam-portal/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

var (
	handlerNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	yanis = model.Student{ID: "stu-7", Name: "Yanis Benali", Faculty: "sciences", Role: model.RoleStudent}
	staff = model.Student{ID: "prof-1", Name: "Mme Roussel", Role: model.RoleTeacher}
)

type stubBackend struct {
	mu      sync.Mutex
	exams   []model.Exam
	listErr error
	sendErr error
	sent    []model.Result
}

func (b *stubBackend) factory(string) service.ExamBackend { return b }

func (b *stubBackend) ListExams(context.Context, string) ([]model.Exam, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exams, b.listErr
}

func (b *stubBackend) ListResults(context.Context) ([]model.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return nil, b.listErr
}

func (b *stubBackend) SendResult(_ context.Context, r model.Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, r)
	return nil
}

// idleTicker never fires; tests drive the session through the API.
func idleTicker(time.Duration) (<-chan time.Time, func()) {
	return make(chan time.Time), func() {}
}

func sampleExam(id string, questions int) model.Exam {
	exam := model.Exam{
		ID:        id,
		Title:     "Analyse 1",
		Subject:   "Mathématiques",
		Duration:  60,
		Faculty:   "sciences",
		StartTime: model.NewTimestamp(handlerNow.Add(-5 * time.Minute)),
		EndTime:   model.NewTimestamp(handlerNow.Add(55 * time.Minute)),
	}
	for i := 0; i < questions; i++ {
		exam.Questions = append(exam.Questions, model.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			Question:      "Combien ?",
			Options:       []string{"1", "2", "3"},
			CorrectAnswer: 2,
		})
	}
	return exam
}

type apiFixture struct {
	engine  *gin.Engine
	portal  *service.PortalService
	auth    *service.AuthService
	backend *stubBackend
	rdb     *redis.Client
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour}
	f := &apiFixture{
		auth:    service.NewAuthService(cfg, rdb),
		backend: &stubBackend{exams: []model.Exam{sampleExam("exam-1", 3)}},
		rdb:     rdb,
	}
	f.portal = service.NewPortalService(context.Background(), service.PortalOptions{
		Backend:   f.backend.factory,
		RDB:       rdb,
		LockGrace: time.Minute,
		PassMark:  60,
		Now:       func() time.Time { return handlerNow },
		NewTicker: idleTicker,
		Logger:    zerolog.Nop(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		f.portal.Shutdown(ctx)
	})

	portalHandler := NewStudentPortalHandler(f.portal, f.auth, zerolog.Nop())
	wsHandler := NewWSHandler(f.portal, zerolog.Nop(), nil)

	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	student := r.Group("/api/v1/student", middleware.RequireAuth(f.auth), middleware.RequireStudent())
	student.GET("/lobby", portalHandler.GetLobby)
	student.POST("/exams/:exam_id/start", portalHandler.StartExam)
	student.GET("/session", portalHandler.GetSession)
	student.DELETE("/session", portalHandler.LeaveSession)
	student.POST("/session/navigate", portalHandler.Navigate)
	student.PUT("/session/answers", portalHandler.SelectAnswer)
	student.POST("/session/submit", portalHandler.Submit)
	student.POST("/logout", portalHandler.Logout)
	r.GET("/ws/v1/student/session/stream", middleware.RequireAuth(f.auth), middleware.RequireStudent(), wsHandler.SessionStream)
	f.engine = r
	return f
}

func (f *apiFixture) token(t *testing.T, s model.Student) string {
	t.Helper()
	tok, err := f.auth.IssueToken(s)
	require.NoError(t, err)
	return tok
}

// envelope mirrors response.Response with a raw data payload.
type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func (b *stubBackend) delivered() []model.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Result(nil), b.sent...)
}
