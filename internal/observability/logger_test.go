package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestParseLevel(t *testing.T) {
	gt.Equal(t, ParseLevel("debug"), slog.LevelDebug)
	gt.Equal(t, ParseLevel("WARN"), slog.LevelWarn)
	gt.Equal(t, ParseLevel("error"), slog.LevelError)
	gt.Equal(t, ParseLevel(""), slog.LevelInfo)
	gt.Equal(t, ParseLevel("verbose"), slog.LevelInfo)
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json")

	logger.Debug("hidden")
	logger.Info("person enrolled", "person_id", "abc")

	var rec map[string]any
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	gt.Equal(t, rec["msg"], any("person enrolled"))
	gt.Equal(t, rec["person_id"], any("abc"))
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "debug", "text").Debug("capture", "attempt", 2)
	gt.S(t, buf.String()).Contains("attempt=2")
}

func TestSetupLoggerWritesLogFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "logs", "faceid.log")
	f, err := OpenLogFile(path)
	gt.NoError(t, err)

	SetupLogger("info", "json", f).Info("service started", "port", 8000)
	gt.NoError(t, f.Close())

	// reopening appends
	f, err = OpenLogFile(path)
	gt.NoError(t, err)
	SetupLogger("info", "json", f).Info("service stopped")
	gt.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	gt.NoError(t, err)
	gt.S(t, string(data)).Contains(`"msg":"service started"`)
	gt.S(t, string(data)).Contains(`"msg":"service stopped"`)
}
