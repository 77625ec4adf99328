package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Options configures a Manager. Zero values take the defaults noted per field.
type Options struct {
	Executable   string         // default "ollama"
	Args         []string       // default ["serve"]
	Env          []string       // KEY=VALUE pairs appended to the inherited environment
	Host         string         // default "localhost"
	Port         int            // default 11434
	WarmUp       time.Duration  // default 5s
	GracePeriod  time.Duration  // default 5s
	RestartDelay time.Duration  // default 5s
	DrainTimeout time.Duration  // default 5s
	StopSignal   syscall.Signal // default SIGTERM
	OutputTail   int            // default 50 lines

	Logger        *slog.Logger // default slog.Default()
	Clock         Clock        // default SystemClock
	OnStateChange StateChangeCallback
	LogParser     LogParser
}

func (o *Options) applyDefaults() {
	if o.Executable == "" {
		o.Executable = "ollama"
	}
	if o.Args == nil {
		o.Args = []string{"serve"}
	}
	if o.Host == "" {
		o.Host = "localhost"
	}
	if o.Port == 0 {
		o.Port = 11434
	}
	if o.WarmUp == 0 {
		o.WarmUp = 5 * time.Second
	}
	if o.GracePeriod == 0 {
		o.GracePeriod = 5 * time.Second
	}
	if o.RestartDelay == 0 {
		o.RestartDelay = 5 * time.Second
	}
	if o.DrainTimeout == 0 {
		o.DrainTimeout = 5 * time.Second
	}
	if o.StopSignal == 0 {
		o.StopSignal = syscall.SIGTERM
	}
	if o.OutputTail == 0 {
		o.OutputTail = 50
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
}

// Manager owns one external server process. At most one process handle is
// held at a time.
type Manager struct {
	opts    Options
	path    string
	lookErr error
	logger  *slog.Logger
	clock   Clock
	tail    *outputTail

	// opMu serializes Start, Stop and Restart.
	opMu sync.Mutex

	mu        sync.Mutex
	state     State
	handle    *handle
	startedAt time.Time
	exitCode  *int
	restarts  int
	lastErr   error
}

// handle is a spawned process and its output drains.
type handle struct {
	cmd        *exec.Cmd
	pid        int
	exited     chan struct{} // closed once Wait returns
	waitErr    error
	outputDone chan struct{} // receives once per output stream
	readers    []*os.File

	stopping      atomic.Bool
	readersClosed atomic.Bool

	finalMu     sync.Mutex
	finalStdout []string
	finalStderr []string
}

func (h *handle) hasExited() bool {
	select {
	case <-h.exited:
		return true
	default:
		return false
	}
}

func (h *handle) holdFinal(source, line string) {
	h.finalMu.Lock()
	defer h.finalMu.Unlock()
	if source == "stderr" {
		h.finalStderr = append(h.finalStderr, line)
	} else {
		h.finalStdout = append(h.finalStdout, line)
	}
}

func (h *handle) finalOutput() (stdout, stderr string) {
	h.finalMu.Lock()
	defer h.finalMu.Unlock()
	return strings.Join(h.finalStdout, "\n"), strings.Join(h.finalStderr, "\n")
}

func (h *handle) closeReaders() {
	h.readersClosed.Store(true)
	for _, r := range h.readers {
		_ = r.Close()
	}
}

// NewManager creates a manager. The executable is resolved here once; a
// failed lookup is reported by Start.
func NewManager(opts Options) *Manager {
	opts.applyDefaults()

	path, err := exec.LookPath(opts.Executable)
	if err != nil {
		path = opts.Executable
	}

	return &Manager{
		opts:    opts,
		path:    path,
		lookErr: err,
		logger:  opts.Logger,
		clock:   opts.Clock,
		tail:    newOutputTail(opts.OutputTail),
		state:   StateIdle,
	}
}

// Address returns host:port of the managed server.
func (m *Manager) Address() string {
	return net.JoinHostPort(m.opts.Host, strconv.Itoa(m.opts.Port))
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Info returns a snapshot of the manager.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := Info{
		State:      m.state,
		Executable: m.path,
		Address:    m.Address(),
		StartedAt:  m.startedAt,
		Restarts:   m.restarts,
		LastError:  m.lastErr,
	}
	if m.handle != nil {
		info.PID = m.handle.pid
	}
	if m.exitCode != nil {
		code := *m.exitCode
		info.ExitCode = &code
	}
	return info
}

// RecentOutput returns the last lines the server wrote, oldest first.
func (m *Manager) RecentOutput() []OutputLine {
	return m.tail.snapshot()
}

// Start runs the pre-flight checks, spawns the server and waits out the
// warm-up. The server is Running only if it is still alive afterwards.
func (m *Manager) Start() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.start()
}

// Stop terminates the server and releases its handle. Without a handle it
// does nothing, so calling it twice is safe.
func (m *Manager) Stop() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.stop()
}

// Restart stops the server, waits RestartDelay and starts it again.
func (m *Manager) Restart() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.stop(); err != nil {
		return err
	}
	m.clock.Sleep(m.opts.RestartDelay)

	m.mu.Lock()
	m.restarts++
	m.mu.Unlock()

	return m.start()
}

// EnsureRunning restarts the server when hc reports it unhealthy.
// This is a best-effort resync; it does not wait for readiness.
func (m *Manager) EnsureRunning(ctx context.Context, hc HealthChecker) error {
	if hc.IsHealthy(ctx) {
		return nil
	}
	m.logger.Warn("Server unresponsive, attempting to restart")
	return m.Restart()
}

// Run starts the server, calls fn and stops the server when fn returns,
// panics or ctx is cancelled. Stop always completes before Run returns. After
// cancellation fn is not waited for; it sees its own context cancelled.
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := m.Start(); err != nil {
		return err
	}
	defer func() {
		if stopErr := m.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}()

	if ctx.Err() != nil {
		m.logger.Info("Interrupted during startup, shutting down server")
		return ctx.Err()
	}

	bodyCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		err      error
		panicked bool
		value    any
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{panicked: true, value: r}
			}
		}()
		done <- result{err: fn(bodyCtx)}
	}()

	select {
	case res := <-done:
		if res.panicked {
			m.logger.Error("Panic while server was held, shutting down", "panic", res.value)
			panic(res.value)
		}
		return res.err
	case <-ctx.Done():
		m.logger.Info("Interrupted, shutting down server")
		return ctx.Err()
	}
}

func (m *Manager) start() error {
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()
	if h != nil {
		if !h.hasExited() {
			return newError(ErrCodeAlreadyRunning, fmt.Sprintf("server already running (pid %d)", h.pid), nil)
		}
		m.release(h)
	}

	m.transition(StateStarting, nil)
	m.logger.Info("Starting server", "executable", m.path, "args", m.opts.Args)

	if m.lookErr != nil {
		return m.fail(newError(ErrCodeExecutableNotFound,
			fmt.Sprintf("executable not found at: %s", m.opts.Executable), m.lookErr))
	}

	if m.portInUse() {
		return m.fail(newError(ErrCodePortInUse,
			fmt.Sprintf("port %d is already in use; is the server already running?", m.opts.Port), nil))
	}

	m.tail.reset()
	h, err := m.spawn()
	if err != nil {
		return m.fail(newError(ErrCodeExecutableNotFound,
			fmt.Sprintf("cannot run %s", m.path), err))
	}

	m.mu.Lock()
	m.handle = h
	m.exitCode = nil
	m.mu.Unlock()

	m.clock.Sleep(m.opts.WarmUp)

	m.mu.Lock()
	if !h.hasExited() {
		from := m.state
		m.state = StateRunning
		m.startedAt = time.Now()
		m.lastErr = nil
		m.mu.Unlock()

		serverUp.Set(1)
		serverStarts.WithLabelValues("ok").Inc()
		m.logger.Info("Server process initialized", "pid", h.pid)
		m.notify(from, StateRunning, nil)
		return nil
	}
	m.mu.Unlock()

	m.release(h)
	perr := newError(ErrCodeProcessTerminatedEarly,
		fmt.Sprintf("server process terminated unexpectedly (exit code %d)", exitCodeFromError(h.waitErr)), h.waitErr)
	for _, line := range m.tail.snapshot() {
		perr.Output = append(perr.Output, line.String())
	}
	return m.fail(perr)
}

// spawn starts the process in its own group with both output streams on pipes.
func (m *Manager) spawn() (*handle, error) {
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, err
	}

	cmd := exec.Command(m.path, m.opts.Args...)
	cmd.Env = append(os.Environ(), m.opts.Env...)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	startErr := cmd.Start()
	// The child holds its own copies of the write ends.
	stdoutW.Close()
	stderrW.Close()
	if startErr != nil {
		stdoutR.Close()
		stderrR.Close()
		return nil, startErr
	}

	h := &handle{
		cmd:        cmd,
		pid:        cmd.Process.Pid,
		exited:     make(chan struct{}),
		outputDone: make(chan struct{}, 2),
		readers:    []*os.File{stdoutR, stderrR},
	}
	m.logger.Info("Server process started", "pid", h.pid, "command", strings.Join(cmd.Args, " "))

	go func() {
		m.streamOutput(h, stdoutR, "stdout")
		h.outputDone <- struct{}{}
	}()
	go func() {
		m.streamOutput(h, stderrR, "stderr")
		h.outputDone <- struct{}{}
	}()
	go m.monitor(h)

	return h, nil
}

// monitor reaps the process and flags an exit nobody asked for.
func (m *Manager) monitor(h *handle) {
	h.waitErr = h.cmd.Wait()
	close(h.exited)

	code := exitCodeFromError(h.waitErr)

	m.mu.Lock()
	if m.handle != h {
		m.mu.Unlock()
		return
	}
	m.exitCode = &code
	if m.state != StateRunning {
		m.mu.Unlock()
		return
	}
	err := fmt.Errorf("server exited unexpectedly with code %d", code)
	m.state = StateFailed
	m.lastErr = err
	m.mu.Unlock()

	serverUp.Set(0)
	m.logger.Error("Server exited unexpectedly", "pid", h.pid, "exit_code", code)
	m.notify(StateRunning, StateFailed, err)
}

func (m *Manager) stop() error {
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()
	if h == nil {
		return nil
	}

	m.transition(StateStopping, nil)
	h.stopping.Store(true)

	mode := "exited"
	if !h.hasExited() {
		mode = "graceful"
		m.logger.Info("Stopping server", "pid", h.pid, "signal", m.opts.StopSignal.String())
		if err := signalGroup(h.pid, m.opts.StopSignal); err != nil {
			m.logger.Warn("Failed to send stop signal", "pid", h.pid, "error", err)
		}

		select {
		case <-h.exited:
			m.logger.Info("Server stopped gracefully", "pid", h.pid)
		case <-m.clock.After(m.opts.GracePeriod):
			mode = "forced"
			m.logger.Warn("Server didn't stop gracefully, forcing kill", "pid", h.pid, "grace_period", m.opts.GracePeriod)
			if err := signalGroup(h.pid, syscall.SIGKILL); err != nil {
				m.logger.Error("Failed to kill server", "pid", h.pid, "error", err)
			}
			<-h.exited
			m.logger.Warn("Server forcefully stopped", "pid", h.pid)
		}
	}

	m.release(h)
	serverUp.Set(0)
	serverStops.WithLabelValues(mode).Inc()
	m.transition(StateStopped, nil)
	return nil
}

// release waits for the output drains, reports held-back output and clears
// the handle. h must have exited.
func (m *Manager) release(h *handle) {
	h.stopping.Store(true)
	if !waitDrained(h.outputDone, m.opts.DrainTimeout) {
		m.logger.Warn("Output streams still open after exit, closing", "pid", h.pid)
		h.closeReaders()
		waitDrained(h.outputDone, m.opts.DrainTimeout)
	}

	stdout, stderr := h.finalOutput()
	if s := strings.TrimSpace(stdout); s != "" {
		m.logger.Info("Final stdout", "output", s)
	}
	if s := strings.TrimSpace(stderr); s != "" {
		m.logger.Error("Final stderr", "output", s)
	}

	code := exitCodeFromError(h.waitErr)
	m.mu.Lock()
	if m.handle == h {
		m.handle = nil
	}
	m.exitCode = &code
	m.mu.Unlock()
}

func waitDrained(outputDone <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for range 2 {
		select {
		case <-outputDone:
		case <-timer.C:
			return false
		}
	}
	return true
}

func (m *Manager) portInUse() bool {
	conn, err := net.DialTimeout("tcp", m.Address(), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (m *Manager) fail(err *Error) error {
	m.logger.Error("Error starting server", "error", err.Message, "code", err.Code)
	serverStarts.WithLabelValues(strings.ToLower(err.Code)).Inc()
	m.transition(StateFailed, err)
	return err
}

func (m *Manager) transition(to State, err error) {
	m.mu.Lock()
	from := m.state
	m.state = to
	if err != nil {
		m.lastErr = err
	}
	m.mu.Unlock()
	m.notify(from, to, err)
}

func (m *Manager) notify(from, to State, err error) {
	if from == to {
		return
	}
	m.logger.Debug("Server state changed", "from", from, "to", to)
	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(from, to, err)
	}
}

// exitCodeFromError maps a Wait error to a shell-style exit code:
// 0 for success, the exit status, or 128+signal for a signalled process.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}
