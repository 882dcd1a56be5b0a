package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevelFallsBackToInfo(t *testing.T) {
	if got := parseLevel("verbose").Level(); got != zapcore.InfoLevel {
		t.Fatalf("expected info level fallback, got %s", got)
	}
	if got := parseLevel(" DEBUG ").Level(); got != zapcore.DebugLevel {
		t.Fatalf("expected debug level, got %s", got)
	}
}

func TestNewLoggerWritesToFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := NewLogger(Options{Level: "info", File: path})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("reading ingested")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"reading ingested"`) {
		t.Fatalf("expected json message in log file, got %s", data)
	}
}
