package meshd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-mesh/internal/process"
)

const (
	// readyTimeout bounds the wait for the daemon's first pong.
	readyTimeout = 30 * time.Second

	readyPollInterval = 250 * time.Millisecond

	pidFileMode = 0600

	maxPIDFileRetries = 3

	// dStateLimit is how many consecutive checks may find the daemon in
	// uninterruptible sleep before it is treated as hung.
	dStateLimit = 3
)

var (
	// sysfsBluetooth lists HCI adapters known to the kernel.
	sysfsBluetooth = "/sys/class/bluetooth"

	pidDir         = "/var/run"
	pidFallbackDir = "/tmp"
)

// Health check layers, cheapest first.
const (
	LayerAdapter = 0
	LayerProcess = 1
	LayerDaemon  = 2
)

// HealthError is a failed health check. It implements
// process.RecoverableError so a missing adapter does not trigger restarts.
type HealthError struct {
	Layer       int
	Recoverable bool
	Err         error
}

func (e *HealthError) Error() string {
	return fmt.Sprintf("health check layer %d failed: %v", e.Layer, e.Err)
}

func (e *HealthError) Unwrap() error { return e.Err }

// IsRecoverable implements process.RecoverableError.
func (e *HealthError) IsRecoverable() bool { return e.Recoverable }

// Pinger checks the daemon end to end over the broker.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Logger defines the logging interface for the daemon manager.
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

// Manager runs graylogic-meshd under a process supervisor.
type Manager struct {
	config  Config
	process *process.Manager
	pinger  Pinger
	logger  Logger

	dStateCount atomic.Int32

	// pidFile is the path acquired at Start, removed at Stop.
	pidFile string
}

// NewManager validates cfg and fills defaults.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Binary == "" {
		cfg.Binary = defaultBinary
	}
	if cfg.Adapter == "" {
		cfg.Adapter = defaultAdapter
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = defaultHealthInterval
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid meshd config: %w", err)
	}
	return &Manager{config: cfg, logger: noopLogger{}}, nil
}

// SetLogger sets the logger.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// SetPinger sets the end-to-end check used for readiness and as the
// watchdog's last layer. Without one only local checks run.
func (m *Manager) SetPinger(p Pinger) {
	m.pinger = p
}

// Start launches the daemon and blocks until it answers a ping, or
// returns at once when the daemon is not managed.
func (m *Manager) Start(ctx context.Context) error {
	if !m.config.Managed {
		m.logger.Info("meshd management disabled, expecting external daemon")
		return nil
	}

	if err := m.checkAdapterPresent(); err != nil {
		return fmt.Errorf("starting meshd: %w", err)
	}

	args := m.config.BuildArgs()
	m.logger.Info("starting meshd", "binary", m.config.Binary, "adapter", m.config.Adapter, "args", args)

	m.process = process.NewManager(process.Config{
		Name:               "meshd",
		Binary:             m.config.Binary,
		Args:               args,
		Env:                m.config.BuildEnv(),
		RestartOnFailure:   m.config.RestartOnFailure,
		RestartDelay:       m.config.RestartDelay,
		MaxRestartAttempts: m.config.MaxRestartAttempts,
		GracefulTimeout:    m.config.GracefulTimeout,
		OnStop: func(err error) {
			if err != nil {
				m.logger.Warn("meshd process stopped", "error", err)
			}
		},
		OnRestart: func(attempt int) {
			m.dStateCount.Store(0)
			m.logger.Info("meshd restarting", "attempt", attempt)
		},
		HealthCheckInterval: m.config.HealthCheckInterval,
		HealthCheckFunc:     m.HealthCheck,
	})
	m.process.SetLogger(m.logger)

	if err := m.process.Start(ctx); err != nil {
		return fmt.Errorf("starting meshd: %w", err)
	}

	if err := m.waitForReady(ctx); err != nil {
		if stopErr := m.process.Stop(); stopErr != nil {
			m.logger.Warn("error stopping meshd after failed readiness check", "error", stopErr)
		}
		return fmt.Errorf("meshd failed to become ready: %w", err)
	}

	if pid := m.process.PID(); pid > 0 {
		if err := m.acquirePIDFile(pid, 0); err != nil {
			m.logger.Error("failed to acquire PID file, stopping duplicate instance", "error", err)
			_ = m.process.Stop() //nolint:errcheck // Already failing
			return fmt.Errorf("cannot start: %w", err)
		}
	}

	m.logger.Info("meshd ready", "adapter", m.config.Adapter, "pid", m.process.PID())
	return nil
}

// waitForReady polls the pinger until the daemon answers.
func (m *Manager) waitForReady(ctx context.Context) error {
	if m.pinger == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		if !m.process.IsRunning() && m.process.Status() != process.StatusStarting {
			if err := m.process.LastError(); err != nil {
				return fmt.Errorf("meshd exited: %w", err)
			}
			return errors.New("meshd exited unexpectedly")
		}

		if lastErr = m.pinger.HealthCheck(ctx); lastErr == nil {
			return nil
		}
		m.logger.Debug("meshd not ready", "error", lastErr)

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for meshd: %w (last error: %v)", ctx.Err(), lastErr)
		case <-ticker.C:
		}
	}
}

// Stop stops the daemon and releases its PID file.
func (m *Manager) Stop() error {
	if !m.config.Managed || m.process == nil {
		return nil
	}
	m.logger.Info("stopping meshd")
	err := m.process.Stop()
	m.removePIDFile()
	return err
}

// IsManaged reports whether this manager runs the daemon.
func (m *Manager) IsManaged() bool {
	return m.config.Managed
}

// IsRunning reports whether the daemon process is up. An unmanaged daemon
// is assumed to be running.
func (m *Manager) IsRunning() bool {
	if !m.config.Managed {
		return true
	}
	return m.process != nil && m.process.IsRunning()
}

// Stats describes the daemon.
type Stats struct {
	Managed      bool          `json:"managed"`
	Status       string        `json:"status"`
	Adapter      string        `json:"adapter"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns the daemon's current state.
func (m *Manager) Stats() Stats {
	stats := Stats{Managed: m.config.Managed, Adapter: m.config.Adapter}
	switch {
	case m.process != nil:
		ps := m.process.Stats()
		stats.Status = string(ps.Status)
		stats.PID = ps.PID
		stats.Uptime = ps.Uptime
		stats.RestartCount = ps.RestartCount
		stats.LastError = ps.LastError
	case !m.config.Managed:
		stats.Status = "external"
	default:
		stats.Status = string(process.StatusStopped)
	}
	return stats
}

// HealthCheck runs the layered checks:
//   - Layer 0: the adapter exists in sysfs. Not recoverable by restart.
//   - Layer 1: the process is not stopped, zombie or stuck in D state.
//   - Layer 2: the daemon answers a ping over the broker.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if m.config.Managed {
		if err := m.checkAdapterPresent(); err != nil {
			return &HealthError{Layer: LayerAdapter, Recoverable: false, Err: err}
		}
		if m.process != nil {
			if pid := m.process.PID(); pid > 0 {
				if err := m.checkProcessState(pid); err != nil {
					return &HealthError{Layer: LayerProcess, Recoverable: true, Err: err}
				}
			}
		}
	}
	if m.pinger != nil {
		if err := m.pinger.HealthCheck(ctx); err != nil {
			return &HealthError{Layer: LayerDaemon, Recoverable: true, Err: err}
		}
	}
	return nil
}

func (m *Manager) checkAdapterPresent() error {
	path := filepath.Join(sysfsBluetooth, m.config.Adapter)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("adapter %s not present: %w", m.config.Adapter, err)
	}
	return nil
}

// checkProcessState reads the state field of /proc/PID/stat.
func (m *Manager) checkProcessState(pid int) error {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return fmt.Errorf("cannot read process state: %w", err)
	}
	state, err := parseProcState(string(data))
	if err != nil {
		return err
	}

	switch state {
	case "T", "t":
		return fmt.Errorf("meshd process is stopped (state=%s)", state)
	case "Z":
		return fmt.Errorf("meshd process is zombie (state=%s)", state)
	case "X", "x":
		return fmt.Errorf("meshd process is dead (state=%s)", state)
	case "D":
		// Short D-state waits are normal during HCI I/O.
		n := m.dStateCount.Add(1)
		if n >= dStateLimit {
			return fmt.Errorf("meshd stuck in uninterruptible sleep (count=%d)", n)
		}
		m.logger.Debug("meshd in uninterruptible sleep", "count", n)
		return nil
	default:
		m.dStateCount.Store(0)
		return nil
	}
}

// parseProcState extracts the state from "pid (comm) state ...". The comm
// field may itself contain spaces and parentheses.
func parseProcState(stat string) (string, error) {
	i := strings.LastIndex(stat, ")")
	if i == -1 || i+2 >= len(stat) {
		return "", errors.New("invalid /proc/stat format")
	}
	fields := strings.Fields(stat[i+2:])
	if len(fields) == 0 {
		return "", errors.New("invalid /proc/stat format: no state field")
	}
	return fields[0], nil
}

func (m *Manager) pidFilePath() string {
	name := "graylogic-meshd-" + m.config.Adapter + ".pid"
	probe := filepath.Join(pidDir, name+".probe")
	if f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY, pidFileMode); err == nil {
		f.Close()
		os.Remove(probe)
		return filepath.Join(pidDir, name)
	}
	return filepath.Join(pidFallbackDir, name)
}

// acquirePIDFile claims the per-adapter PID file with O_EXCL, replacing it
// when the recorded process is gone or is not a meshd.
func (m *Manager) acquirePIDFile(pid, attempt int) error {
	if attempt >= maxPIDFileRetries {
		return fmt.Errorf("failed to acquire PID file after %d attempts", maxPIDFileRetries)
	}
	if attempt == 0 {
		m.pidFile = m.pidFilePath()
	}
	path := m.pidFile

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, pidFileMode)
	if err == nil {
		defer f.Close()
		if _, err := f.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
			os.Remove(path)
			return fmt.Errorf("writing PID file: %w", err)
		}
		m.logger.Debug("acquired PID file", "path", path, "pid", pid)
		return nil
	}
	if !os.IsExist(err) {
		return fmt.Errorf("creating PID file %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		os.Remove(path)
		return m.acquirePIDFile(pid, attempt+1)
	}
	existing, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		m.logger.Warn("removing invalid PID file", "path", path)
		os.Remove(path)
		return m.acquirePIDFile(pid, attempt+1)
	}
	if existing == pid || !m.isDaemonAlive(existing) {
		m.logger.Info("removing stale PID file", "path", path, "stale_pid", existing)
		os.Remove(path)
		return m.acquirePIDFile(pid, attempt+1)
	}
	return fmt.Errorf("another meshd already serves %s (PID %d, file %s)", m.config.Adapter, existing, path)
}

// isDaemonAlive reports whether pid is a live process running the
// configured binary.
func (m *Manager) isDaemonAlive(pid int) bool {
	if err := syscall.Kill(pid, 0); err != nil && !errors.Is(err, syscall.EPERM) {
		return false
	}
	comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return false
	}
	// comm is truncated to 15 bytes by the kernel.
	want := filepath.Base(m.config.Binary)
	if len(want) > 15 {
		want = want[:15]
	}
	return strings.TrimSpace(string(comm)) == want
}

func (m *Manager) removePIDFile() {
	if m.pidFile == "" {
		return
	}
	if err := os.Remove(m.pidFile); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to remove PID file", "path", m.pidFile, "error", err)
	}
	m.pidFile = ""
}
