package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// ErrAlreadyRunning is returned by Start on a running manager.
var ErrAlreadyRunning = errors.New("process: already running")

// maxOutputLine bounds a single captured output line.
const maxOutputLine = 64 * 1024

// Config holds configuration for a managed subprocess.
type Config struct {
	// Name identifies the process in logs.
	Name string

	Binary string
	Args   []string

	// Env is appended to the parent environment. Nil inherits it unchanged.
	Env []string

	WorkDir string

	RestartOnFailure bool

	// RestartDelay is the first restart delay. Later attempts double it up
	// to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// StableThreshold is how long the process must run before the restart
	// counter resets.
	StableThreshold time.Duration

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// HealthCheckFunc, if set, is polled every HealthCheckInterval. After
	// HealthFailureThreshold consecutive failures the process is killed and
	// treated as crashed.
	HealthCheckFunc        func(ctx context.Context) error
	HealthCheckInterval    time.Duration
	HealthCheckTimeout     time.Duration
	HealthFailureThreshold int

	OnStart   func()
	OnStop    func(err error)
	OnRestart func(attempt int)
}

// DefaultConfig returns a Config with restarts and health checks enabled.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:                   name,
		Binary:                 binary,
		Args:                   args,
		RestartOnFailure:       true,
		RestartDelay:           5 * time.Second,
		MaxRestartDelay:        5 * time.Minute,
		MaxRestartAttempts:     10,
		StableThreshold:        2 * time.Minute,
		GracefulTimeout:        10 * time.Second,
		HealthCheckInterval:    30 * time.Second,
		HealthCheckTimeout:     5 * time.Second,
		HealthFailureThreshold: 3,
	}
}

// RecoverableError lets an exit error opt out of restarts.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether a restart should be attempted after err.
// Errors that do not implement RecoverableError are recoverable.
func IsRecoverable(err error) bool {
	var re RecoverableError
	if errors.As(err, &re) {
		return re.IsRecoverable()
	}
	return true
}

// Logger defines the logging interface for the process manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager supervises one subprocess.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	output        *sync.WaitGroup
	status        Status
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool

	stopCh chan struct{}
	done   chan struct{}
}

// NewManager creates a manager. Zero durations take DefaultConfig values.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig(cfg.Name, cfg.Binary, cfg.Args)
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = def.RestartDelay
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = def.MaxRestartDelay
	}
	if cfg.StableThreshold == 0 {
		cfg.StableThreshold = def.StableThreshold
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = def.GracefulTimeout
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = def.HealthCheckInterval
	}
	if cfg.HealthCheckTimeout == 0 {
		cfg.HealthCheckTimeout = def.HealthCheckTimeout
	}
	if cfg.HealthFailureThreshold <= 0 {
		cfg.HealthFailureThreshold = def.HealthFailureThreshold
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger. Call before Start.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// Start launches the process and a goroutine that supervises it until
// Stop or ctx cancellation.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.supervising() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.startProcess(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		close(m.done)
		m.mu.Unlock()
		return err
	}

	go m.monitor(ctx)
	return nil
}

// supervising reports whether a monitor goroutine is still live.
// Caller must hold m.mu.
func (m *Manager) supervising() bool {
	if m.status == StatusStarting {
		return true
	}
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

func (m *Manager) startProcess(ctx context.Context) error {
	m.logger.Info("starting process", "name", m.config.Name, "binary", m.config.Binary, "args", m.config.Args)

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // Binary comes from validated config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}
	if m.config.WorkDir != "" {
		cmd.Dir = m.config.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	output := &sync.WaitGroup{}
	output.Add(2)
	go m.captureOutput("stdout", stdout, output)
	go m.captureOutput("stderr", stderr, output)

	m.mu.Lock()
	m.cmd = cmd
	m.output = output
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	m.logger.Info("process started", "name", m.config.Name, "pid", cmd.Process.Pid)

	if m.config.OnStart != nil {
		m.config.OnStart()
	}
	return nil
}

// captureOutput logs the stream line by line.
func (m *Manager) captureOutput(stream string, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxOutputLine)
	for sc.Scan() {
		m.logger.Debug("process output", "name", m.config.Name, "stream", stream, "line", sc.Text())
	}
	if err := sc.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		m.logger.Debug("output stream closed", "name", m.config.Name, "stream", stream, "error", err)
		// Keep the pipe drained so the child never blocks on write.
		_, _ = io.Copy(io.Discard, r) //nolint:errcheck // Best-effort drain
	}
}

// waitForExitOrHealthFailure returns when the process exits, ctx ends, or
// the health check fails HealthFailureThreshold times in a row. In the last
// case the process is killed and the returned error wraps the final health
// error so IsRecoverable can inspect it.
func (m *Manager) waitForExitOrHealthFailure(ctx context.Context, cmd *exec.Cmd, output *sync.WaitGroup) error {
	exitCh := make(chan error, 1)
	go func() {
		// Wait closes the pipes, so drain them first.
		output.Wait()
		exitCh <- cmd.Wait()
	}()

	if m.config.HealthCheckFunc == nil {
		return <-exitCh
	}

	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case err := <-exitCh:
			return err

		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, m.config.HealthCheckTimeout)
			err := m.config.HealthCheckFunc(checkCtx)
			cancel()

			if err == nil {
				if failures > 0 {
					m.logger.Info("health check recovered", "name", m.config.Name, "previous_failures", failures)
				}
				failures = 0
				continue
			}

			failures++
			m.logger.Warn("health check failed", "name", m.config.Name, "error", err, "consecutive_failures", failures)
			if failures < m.config.HealthFailureThreshold {
				continue
			}

			m.logger.Error("health check failed repeatedly, killing process", "name", m.config.Name, "failures", failures)
			if cmd.Process != nil {
				_ = cmd.Process.Kill() //nolint:errcheck // Exit is observed on exitCh
			}
			select {
			case exitErr := <-exitCh:
				return fmt.Errorf("killed after %d failed health checks: %w (exit: %v)", failures, err, exitErr)
			case <-time.After(m.config.HealthCheckTimeout):
				return fmt.Errorf("process did not exit after kill: %w", err)
			}
		}
	}
}

// calculateBackoffDelay returns RestartDelay doubled per attempt, capped at
// MaxRestartDelay.
func (m *Manager) calculateBackoffDelay(attempt int) time.Duration {
	delay := m.config.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.config.MaxRestartDelay {
			return m.config.MaxRestartDelay
		}
	}
	return delay
}

func (m *Manager) monitor(ctx context.Context) {
	defer close(m.done)

	for {
		m.mu.RLock()
		cmd, output := m.cmd, m.output
		m.mu.RUnlock()

		err := m.waitForExitOrHealthFailure(ctx, cmd, output)
		if !m.handleExit(ctx, err) {
			return
		}
		if !m.restart(ctx) {
			return
		}
	}
}

// handleExit records an exit and reports whether a restart should follow.
func (m *Manager) handleExit(ctx context.Context, err error) bool {
	m.mu.Lock()
	stopRequested := m.stopRequested
	ranFor := time.Since(m.startTime)
	if stopRequested {
		m.status = StatusStopped
	} else {
		m.status = StatusFailed
		m.lastError = err
		if ranFor >= m.config.StableThreshold {
			m.restartCount = 0
		}
	}
	m.mu.Unlock()

	if stopRequested {
		m.logger.Info("process stopped as requested", "name", m.config.Name)
		if m.config.OnStop != nil {
			m.config.OnStop(nil)
		}
		return false
	}

	m.logger.Warn("process exited unexpectedly", "name", m.config.Name, "error", err, "ran_for", ranFor)
	if m.config.OnStop != nil {
		m.config.OnStop(err)
	}

	switch {
	case ctx.Err() != nil:
		return false
	case !m.config.RestartOnFailure:
		m.logger.Info("restart disabled, not restarting", "name", m.config.Name)
		return false
	case !IsRecoverable(err):
		m.logger.Error("unrecoverable exit, not restarting", "name", m.config.Name, "error", err)
		return false
	}
	return true
}

// restart waits out the backoff and relaunches the process, retrying
// failed launches until one succeeds or the attempt limit is hit.
func (m *Manager) restart(ctx context.Context) bool {
	for {
		m.mu.Lock()
		m.restartCount++
		attempt := m.restartCount
		stopCh := m.stopCh
		m.mu.Unlock()

		if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
			m.logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
			return false
		}

		delay := m.calculateBackoffDelay(attempt)
		m.logger.Info("restarting process", "name", m.config.Name, "attempt", attempt, "delay", delay)
		if m.config.OnRestart != nil {
			m.config.OnRestart(attempt)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-stopCh:
			timer.Stop()
			m.mu.Lock()
			m.status = StatusStopped
			m.mu.Unlock()
			return false
		case <-timer.C:
		}

		m.mu.Lock()
		stopRequested := m.stopRequested
		if stopRequested {
			m.status = StatusStopped
		}
		m.mu.Unlock()
		if stopRequested {
			return false
		}

		err := m.startProcess(ctx)
		if err == nil {
			return true
		}
		m.logger.Error("failed to restart process", "name", m.config.Name, "attempt", attempt, "error", err)
		m.mu.Lock()
		m.lastError = err
		m.mu.Unlock()
	}
}

// Stop sends SIGTERM to the process group and escalates to SIGKILL after
// GracefulTimeout. Stopping a stopped manager is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.done == nil || m.stopRequested {
		m.mu.Unlock()
		return nil
	}
	m.stopRequested = true
	close(m.stopCh)
	cmd := m.cmd
	done := m.done
	running := m.status == StatusRunning
	m.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		// Not started, or between restarts. The monitor, if any, sees
		// stopCh and exits.
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	m.logger.Info("stopping process", "name", m.config.Name, "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
	}

	select {
	case <-done:
		m.logger.Info("process stopped gracefully", "name", m.config.Name)
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL", "name", m.config.Name, "timeout", m.config.GracefulTimeout)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
	}
	<-done
	m.logger.Info("process killed", "name", m.config.Name)
	return nil
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning reports whether the process is running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the error from the last unexpected exit.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount returns consecutive restarts since the last stable run.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// Uptime returns how long the current process has run, or 0.
func (m *Manager) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusRunning {
		return 0
	}
	return time.Since(m.startTime)
}

// PID returns the process ID, or 0 if never started.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}

// Stats is a snapshot of a managed process.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns a snapshot of the process state.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:         m.config.Name,
		Status:       m.status,
		RestartCount: m.restartCount,
	}
	if m.cmd != nil && m.cmd.Process != nil {
		stats.PID = m.cmd.Process.Pid
	}
	if m.status == StatusRunning {
		stats.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}
	return stats
}
