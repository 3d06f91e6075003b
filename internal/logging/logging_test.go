package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Init(Config{Format: "json", Level: "debug", Component: "scanner", Output: &buf})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	logger.Info().Str("scan_id", "abc").Msg("scan started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scanner", entry["component"])
	assert.Equal(t, "abc", entry["scan_id"])
	assert.Equal(t, "scan started", entry["message"])
}

func TestNewAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Format: "json", Output: &buf})

	child := New("ingest")
	child.Warn().Msg("skipped file")

	assert.Contains(t, buf.String(), `"component":"ingest"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.Disabled, parseLevel("disabled"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("nonsense"))
}

func TestSelectWriterConsole(t *testing.T) {
	var buf bytes.Buffer
	w := selectWriter("console", &buf)
	_, ok := w.(zerolog.ConsoleWriter)
	assert.True(t, ok)

	// Non-file writers are never treated as terminals
	assert.Equal(t, &buf, selectWriter("auto", &buf))
}
