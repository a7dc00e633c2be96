package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kuhlman-labs/jamf-redeploy/internal/config"
)

// LevelManager provides runtime log level control
type LevelManager struct {
	levelVar     *slog.LevelVar
	defaultLevel slog.Level
	mu           sync.RWMutex
}

// GetLevel returns the current log level as a string
func (m *LevelManager) GetLevel() string {
	if m == nil || m.levelVar == nil {
		return "info"
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return levelToString(m.levelVar.Level())
}

// SetLevel changes the log level at runtime
func (m *LevelManager) SetLevel(level string) {
	if m == nil || m.levelVar == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levelVar.Set(parseLevel(level))
}

// SetDebugEnabled enables debug logging, or restores the configured level
func (m *LevelManager) SetDebugEnabled(enabled bool) {
	if m == nil || m.levelVar == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if enabled {
		m.levelVar.Set(slog.LevelDebug)
	} else {
		m.levelVar.Set(m.defaultLevel)
	}
}

// IsDebugEnabled returns true if debug logging is currently enabled
func (m *LevelManager) IsDebugEnabled() bool {
	if m == nil || m.levelVar == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.levelVar.Level() <= slog.LevelDebug
}

func levelToString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelInfo:
		return "info"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// NewLogger builds the application logger. Console output goes to console
// (stderr when nil) so stdout stays free for command output and the MCP stdio
// transport. When OutputFile is set, records are also written to a rotating file.
func NewLogger(cfg config.LoggingConfig, console io.Writer) (*slog.Logger, *LevelManager) {
	if console == nil {
		console = os.Stderr
	}

	defaultLevel := parseLevel(cfg.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(defaultLevel)
	manager := &LevelManager{levelVar: levelVar, defaultLevel: defaultLevel}

	var fileWriter io.Writer
	if cfg.OutputFile != "" {
		fileWriter = &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		out := console
		if fileWriter != nil {
			out = io.MultiWriter(console, fileWriter)
		}
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: levelVar})
	} else {
		// Tinted console, plain text in the file
		handler = tint.NewHandler(console, &tint.Options{
			Level:   levelVar,
			NoColor: !shouldUseColors(console),
		})
		if fileWriter != nil {
			handler = NewMultiHandler(handler, slog.NewTextHandler(fileWriter, &slog.HandlerOptions{Level: levelVar}))
		}
	}

	return slog.New(handler), manager
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// isTerminal checks if the given file is a terminal (TTY)
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// shouldUseColors reports whether w is a colour-capable terminal
func shouldUseColors(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || !isTerminal(f) {
		return false
	}

	// https://no-color.org/
	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	term := os.Getenv("TERM")
	if term == "dumb" || term == "" {
		return false
	}

	return true
}

// MultiHandler writes to multiple handlers
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: newHandlers}
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithGroup(name)
	}
	return &MultiHandler{handlers: newHandlers}
}
