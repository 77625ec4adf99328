package process

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogParser parses a log line and returns the log level and message.
// Levels are "error", "fatal", "warning", "info", "debug" and "trace".
type LogParser func(line string) (level, msg string)

// ParseServerLogLevel understands the logfmt lines an inference server writes,
// e.g. `time=... level=WARN source=sched.go:123 msg="gpu not found"`.
// Lines without a level are returned as info.
func ParseServerLogLevel(line string) (level, msg string) {
	level, msg = "info", line

	if idx := strings.Index(line, "level="); idx >= 0 {
		value := line[idx+len("level="):]
		if end := strings.IndexByte(value, ' '); end >= 0 {
			value = value[:end]
		}
		switch strings.ToUpper(value) {
		case "ERROR":
			level = "error"
		case "WARN", "WARNING":
			level = "warning"
		case "DEBUG":
			level = "debug"
		case "TRACE":
			level = "trace"
		}
	} else if strings.HasPrefix(line, "Error:") {
		level = "error"
	}

	if idx := strings.Index(line, `msg="`); idx >= 0 {
		value := line[idx+len(`msg="`):]
		if end := strings.LastIndexByte(value, '"'); end >= 0 {
			msg = value[:end]
		}
	}

	return level, msg
}

// OutputLine is one line of server output.
type OutputLine struct {
	Time   time.Time `json:"time"`
	Source string    `json:"source"`
	Text   string    `json:"text"`
}

func (l OutputLine) String() string {
	return fmt.Sprintf("%s: %s", l.Source, l.Text)
}

// outputTail keeps the most recent lines written by the server.
type outputTail struct {
	mu    sync.Mutex
	lines []OutputLine
	next  int
	full  bool
}

func newOutputTail(size int) *outputTail {
	if size < 1 {
		size = 1
	}
	return &outputTail{lines: make([]OutputLine, size)}
}

func (t *outputTail) add(line OutputLine) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines[t.next] = line
	t.next = (t.next + 1) % len(t.lines)
	if t.next == 0 {
		t.full = true
	}
}

// snapshot returns lines oldest first.
func (t *outputTail) snapshot() []OutputLine {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		return append([]OutputLine(nil), t.lines[:t.next]...)
	}
	out := make([]OutputLine, 0, len(t.lines))
	out = append(out, t.lines[t.next:]...)
	return append(out, t.lines[:t.next]...)
}

func (t *outputTail) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next = 0
	t.full = false
}

// streamOutput forwards every line of reader to the logger until EOF.
// Once the handle is stopping, lines are held back for the final report.
func (m *Manager) streamOutput(h *handle, reader io.ReadCloser, source string) {
	defer reader.Close()
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		outputLines.WithLabelValues(source).Inc()
		m.tail.add(OutputLine{Time: time.Now(), Source: source, Text: line})

		if h.stopping.Load() {
			h.holdFinal(source, line)
			continue
		}

		level, msg := "info", line
		if m.opts.LogParser != nil {
			level, msg = m.opts.LogParser(line)
		}
		logLine(m.logger, level, msg, source)
	}

	if err := scanner.Err(); err != nil && !h.readersClosed.Load() {
		m.logger.Warn("Error reading output", "source", source, "error", err)
	}
}

func logLine(logger *slog.Logger, level, msg, source string) {
	switch level {
	case "fatal", "error":
		logger.Error(msg, "source", source)
	case "warning":
		logger.Warn(msg, "source", source)
	case "debug", "trace":
		logger.Debug(msg, "source", source)
	default:
		logger.Info(msg, "source", source)
	}
}
