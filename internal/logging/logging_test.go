package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/plcsnmp/plcsnmp/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, config.LoggingConfig{Level: "info", Format: "json"}))

	logger.Debug("hidden")
	logger.Info("poll tick failed", "job", "MAIN.uptime")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not json: %v", err)
	}
	if entry["job"] != "MAIN.uptime" {
		t.Errorf("job = %v", entry["job"])
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plcsnmp.log")
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	logger, closer, err := New(config.LoggingConfig{Level: "info", Output: "file", FilePath: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("connected to controller")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if !strings.Contains(string(data), "connected to controller") {
		t.Errorf("log file missing message: %q", data)
	}
}

func TestNew_UnknownOutput(t *testing.T) {
	if _, _, err := New(config.LoggingConfig{Output: "syslog"}); err == nil {
		t.Fatal("expected error for unknown output")
	}
}
