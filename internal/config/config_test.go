package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"BACKEND_URL", "BACKEND_TIMEOUT_SECONDS", "TICK_INTERVAL_MS", "SUBMIT_OUTBOX_ENABLED", "PASS_MARK"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "http://localhost:3001/api", cfg.BackendURL)
	assert.Zero(t, cfg.BackendTimeout)
	assert.Equal(t, "exams/submit-exam", cfg.SubmitPath)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.False(t, cfg.OutboxEnabled)
	assert.Equal(t, 60, cfg.PassMark)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BACKEND_TIMEOUT_SECONDS", "15")
	t.Setenv("SUBMIT_OUTBOX_ENABLED", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("PASS_MARK", "not-a-number")

	cfg := Load()
	assert.Equal(t, 15*time.Second, cfg.BackendTimeout)
	assert.True(t, cfg.OutboxEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 60, cfg.PassMark)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "student:stu-9:active_exam", CacheKey.StudentActiveExamKey("stu-9"))
	assert.Equal(t, "exam:exam-1:monitor", CacheKey.ExamMonitorChannel("exam-1"))
	assert.Equal(t, "submit_results_outbox", WorkerKey.SubmitOutboxQueue)
}
