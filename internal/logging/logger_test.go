package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kuhlman-labs/jamf-redeploy/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_JSONToConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(config.LoggingConfig{Level: "info", Format: "json"}, &buf)

	logger.Info("test message", "serial_number", "C02XK1JHJG5J")

	out := buf.String()
	if !strings.Contains(out, `"msg":"test message"`) {
		t.Errorf("Expected JSON log format, got: %s", out)
	}
	if !strings.Contains(out, `"serial_number":"C02XK1JHJG5J"`) {
		t.Errorf("Expected attribute in output, got: %s", out)
	}
}

func TestNewLogger_JSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redeploy.log")
	var console bytes.Buffer

	logger, _ := NewLogger(config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		OutputFile: path,
		MaxSize:    10,
		MaxBackups: 2,
		MaxAge:     7,
	}, &console)

	logger.Info("file message")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), `"msg":"file message"`) {
		t.Errorf("Expected JSON log in file, got: %s", string(content))
	}
	if console.Len() == 0 {
		t.Error("Expected console output alongside the file")
	}
}

func TestNewLogger_TextFormatWritesPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redeploy.log")
	var console bytes.Buffer

	logger, _ := NewLogger(config.LoggingConfig{
		Level:      "debug",
		Format:     "text",
		OutputFile: path,
	}, &console)

	logger.Debug("test debug message")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "test debug message") {
		t.Errorf("Expected text log with message, got: %s", string(content))
	}
	if strings.Contains(string(content), "\x1b[") {
		t.Error("File output must not contain colour escapes")
	}
	if !strings.Contains(console.String(), "test debug message") {
		t.Errorf("Expected console output, got: %s", console.String())
	}
}

func TestNewLogger_NoFileByDefault(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	var console bytes.Buffer
	logger, _ := NewLogger(config.LoggingConfig{Level: "info"}, &console)
	logger.Info("hello")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no log files, found %d entries", len(entries))
	}
}

func TestLevelManager(t *testing.T) {
	var buf bytes.Buffer
	logger, manager := NewLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	if got := manager.GetLevel(); got != "warn" {
		t.Errorf("GetLevel() = %q, want warn", got)
	}

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got: %s", buf.String())
	}

	manager.SetDebugEnabled(true)
	if !manager.IsDebugEnabled() {
		t.Error("IsDebugEnabled() = false after SetDebugEnabled(true)")
	}
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("Expected debug output after enabling debug, got: %s", buf.String())
	}

	manager.SetDebugEnabled(false)
	if got := manager.GetLevel(); got != "warn" {
		t.Errorf("GetLevel() after disabling debug = %q, want warn", got)
	}

	manager.SetLevel("error")
	if got := manager.GetLevel(); got != "error" {
		t.Errorf("GetLevel() = %q, want error", got)
	}
}

func TestLevelManager_Nil(t *testing.T) {
	var m *LevelManager
	m.SetLevel("debug")
	m.SetDebugEnabled(true)
	if m.IsDebugEnabled() {
		t.Error("nil manager must report debug disabled")
	}
	if got := m.GetLevel(); got != "info" {
		t.Errorf("GetLevel() = %q, want info", got)
	}
}

func TestShouldUseColors_NonTerminal(t *testing.T) {
	var buf bytes.Buffer
	if shouldUseColors(&buf) {
		t.Error("shouldUseColors() = true for a buffer")
	}
}

func TestMultiHandler(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	handler1 := slog.NewTextHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler2 := slog.NewTextHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelDebug})

	multiHandler := NewMultiHandler(handler1, handler2)
	ctx := context.Background()

	if !multiHandler.Enabled(ctx, slog.LevelInfo) {
		t.Error("multiHandler.Enabled() = false, want true for info level")
	}

	record := slog.NewRecord(time.Now(), slog.LevelInfo, "test message", 0)
	if err := multiHandler.Handle(ctx, record); err != nil {
		t.Errorf("multiHandler.Handle() error = %v", err)
	}

	if buf1.Len() != 0 {
		t.Error("Warn-level handler should not receive info records")
	}
	if buf2.Len() == 0 {
		t.Error("Debug-level handler buffer is empty")
	}

	withAttrs := multiHandler.WithAttrs([]slog.Attr{slog.String("run_id", "abc")})
	if err := withAttrs.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf1.String(), "run_id=abc") {
		t.Errorf("Expected attrs to propagate, got: %s", buf1.String())
	}

	if multiHandler.WithGroup("batch") == nil {
		t.Error("multiHandler.WithGroup() returned nil")
	}
}
