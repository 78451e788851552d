package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(&buf, "debug", "json"), "engine")
	log.Info().Str("exam_id", "e1").Msg("Exam started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "e1", line["exam_id"])
	assert.Equal(t, "info", line["level"])
	assert.Contains(t, line, "time")
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "verbose", "json")
	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
}
