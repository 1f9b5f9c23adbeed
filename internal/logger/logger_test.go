package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONCarriesRunID(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{JSON: true, Output: &buf, RunID: "run-1"})
	log.Info("resolving models")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "run-1", line["run_id"])
	assert.Equal(t, "resolving models", line["msg"])
	assert.Equal(t, "info", line["level"])
}

func TestNewGeneratesRunID(t *testing.T) {
	var buf bytes.Buffer
	New(Config{JSON: true, Output: &buf}).Info("x")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	id, _ := line["run_id"].(string)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantDebug bool
		wantInfo  bool
	}{
		{name: "default", wantInfo: true},
		{name: "debug", cfg: Config{Debug: true}, wantDebug: true, wantInfo: true},
		{name: "quiet", cfg: Config{Quiet: true}},
		{name: "debug beats quiet", cfg: Config{Debug: true, Quiet: true}, wantDebug: true, wantInfo: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.cfg.Output = &buf
			log := New(tt.cfg)
			log.Debug("debug line")
			log.Info("info line")
			log.Warn("warn line")

			out := buf.String()
			assert.Equal(t, tt.wantDebug, strings.Contains(out, "debug line"))
			assert.Equal(t, tt.wantInfo, strings.Contains(out, "info line"))
			assert.Contains(t, out, "warn line")
		})
	}
}

func TestConsoleEncoder(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Output: &buf, RunID: "abc"}).Warn("mapping not found")
	assert.Contains(t, buf.String(), "WARN")
	assert.Contains(t, buf.String(), `"run_id": "abc"`)
}
