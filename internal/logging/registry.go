package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is a duck-typed interface satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
	Dir     string            `toml:"dir"`
	Stdout  bool              `toml:"stdout"`
	Journal bool              `toml:"journal"`
}

// Registry owns module loggers and the sinks they write to.
type Registry struct {
	config   Config
	mu       sync.Mutex
	loggers  map[string]*slog.Logger
	levels   map[string]*slog.LevelVar
	files    map[string]*os.File
	buffer   *RingBuffer
	callback LogCallback
	stdout   io.Writer
}

// New creates a registry from config. Unknown levels fall back to info.
func New(config Config) *Registry {
	return &Registry{
		config:  config,
		loggers: make(map[string]*slog.Logger),
		levels:  make(map[string]*slog.LevelVar),
		files:   make(map[string]*os.File),
		buffer:  NewRingBuffer(defaultBufferSize),
		stdout:  os.Stdout,
	}
}

// Buffer returns the ring buffer holding recent entries from all modules.
func (r *Registry) Buffer() *RingBuffer {
	return r.buffer
}

// SetLogCallback sets a callback invoked for every entry written to the buffer.
// Only loggers created after the call see the callback.
func (r *Registry) SetLogCallback(callback LogCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callback = callback
}

// Logger returns the logger for module, creating it on first use.
func (r *Registry) Logger(module string) *slog.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()

	if logger, exists := r.loggers[module]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(r.moduleLevel(module))

	logger := slog.New(r.createHandler(module, levelVar)).With("module", module)
	r.loggers[module] = logger
	r.levels[module] = levelVar
	return logger
}

// SetLevel changes a module's level at runtime. Returns false for an unknown level.
func (r *Registry) SetLevel(module, level string) bool {
	parsed := parseLevel(level)
	if parsed == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.config.Modules == nil {
		r.config.Modules = make(map[string]string)
	}
	r.config.Modules[module] = level
	if levelVar, exists := r.levels[module]; exists {
		levelVar.Set(*parsed)
	}
	return true
}

// Close flushes and closes all file sinks.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for module, f := range r.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s log: %w", module, err))
		}
		delete(r.files, module)
	}
	return errors.Join(errs...)
}

// moduleLevel resolves the effective level for module (must hold lock).
func (r *Registry) moduleLevel(module string) slog.Level {
	level := slog.LevelInfo
	if parsed := parseLevel(r.config.Level); parsed != nil {
		level = *parsed
	}
	if levelStr, exists := r.config.Modules[module]; exists {
		if parsed := parseLevel(levelStr); parsed != nil {
			level = *parsed
		}
	}
	return level
}

// createHandler builds the sink chain for one module (must hold lock).
func (r *Registry) createHandler(module string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler

	if r.config.Stdout && isStdoutAvailable() {
		handlers = append(handlers, newFormatHandler(r.config.Format, r.stdout, opts))
	}

	if r.config.Journal && IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}

	if r.config.Dir != "" {
		f, err := openLogFile(r.config.Dir, module)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		} else {
			r.files[module] = f
			handlers = append(handlers, newFormatHandler(r.config.Format, f, opts))
		}
	}

	handlers = append(handlers, NewBufferHandler(r.buffer, level, r.callback))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

func newFormatHandler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
