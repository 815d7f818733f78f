package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileJSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sockd.log")
	log, closeFn, err := New(Options{Level: "info", Format: "json", File: p, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("accepted", zap.Int("fd", 7))
	require.NoError(t, closeFn())

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "accepted", entry["msg"])
	assert.Equal(t, float64(7), entry["fd"])
}

func TestBadOptions(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	assert.Error(t, err)
	_, _, err = New(Options{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
