package meshd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-mesh/internal/process"
)

type fakePinger struct {
	err   error
	calls int
}

func (p *fakePinger) HealthCheck(context.Context) error {
	p.calls++
	return p.err
}

// withAdapters points adapter discovery at a temp dir holding the given
// adapters.
func withAdapters(t *testing.T, names ...string) {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.Mkdir(filepath.Join(dir, n), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	prev := sysfsBluetooth
	sysfsBluetooth = dir
	t.Cleanup(func() { sysfsBluetooth = prev })
}

func withPIDDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prevDir, prevFallback := pidDir, pidFallbackDir
	pidDir, pidFallbackDir = dir, dir
	t.Cleanup(func() { pidDir, pidFallbackDir = prevDir, prevFallback })
	return dir
}

func managedConfig() Config {
	return Config{
		Managed:     true,
		BrokerURL:   "tcp://localhost:1883",
		TopicPrefix: "graylogic",
	}
}

func TestNewManager_Defaults(t *testing.T) {
	m, err := NewManager(managedConfig())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if m.config.Binary != "/usr/bin/graylogic-meshd" {
		t.Errorf("Binary = %q", m.config.Binary)
	}
	if m.config.Adapter != "hci0" {
		t.Errorf("Adapter = %q, want hci0", m.config.Adapter)
	}
	if m.config.GracefulTimeout != 10*time.Second {
		t.Errorf("GracefulTimeout = %v, want 10s", m.config.GracefulTimeout)
	}
	if m.config.HealthCheckInterval != 30*time.Second {
		t.Errorf("HealthCheckInterval = %v, want 30s", m.config.HealthCheckInterval)
	}
}

func TestNewManager_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad adapter", func(c *Config) { c.Adapter = "wlan0" }},
		{"adapter injection", func(c *Config) { c.Adapter = "hci0;reboot" }},
		{"missing broker", func(c *Config) { c.BrokerURL = "" }},
		{"broker metacharacters", func(c *Config) { c.BrokerURL = "tcp://host:1883 && id" }},
		{"username metacharacters", func(c *Config) { c.Username = "$(whoami)" }},
		{"negative attempts", func(c *Config) { c.MaxRestartAttempts = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := managedConfig()
			tt.modify(&cfg)
			if _, err := NewManager(cfg); err == nil {
				t.Error("NewManager() should reject the config")
			}
		})
	}
}

func TestNewManager_UnmanagedSkipsValidation(t *testing.T) {
	if _, err := NewManager(Config{Adapter: "not-an-adapter"}); err != nil {
		t.Errorf("NewManager() unmanaged error = %v", err)
	}
}

func TestFromSettings(t *testing.T) {
	d := config.MeshDaemonConfig{
		Managed:             true,
		Binary:              "/opt/meshd",
		Adapter:             "hci1",
		RestartOnFailure:    true,
		RestartDelaySeconds: 3,
		MaxRestartAttempts:  4,
		HealthCheckInterval: time.Minute,
	}
	var mq config.MQTTConfig
	mq.Broker.Host = "broker.local"
	mq.Broker.Port = 8883
	mq.Broker.TLS = true
	mq.Broker.ClientID = "graylogic-mesh"
	mq.Auth.Username = "mesh"
	mq.Auth.Password = "s3cret"

	cfg := FromSettings(config.MeshConfig{Daemon: d}, mq)

	if cfg.BrokerURL != "ssl://broker.local:8883" {
		t.Errorf("BrokerURL = %q", cfg.BrokerURL)
	}
	if cfg.ClientID != "graylogic-mesh-meshd" {
		t.Errorf("ClientID = %q", cfg.ClientID)
	}
	if cfg.RestartDelay != 3*time.Second {
		t.Errorf("RestartDelay = %v, want 3s", cfg.RestartDelay)
	}
	if cfg.TopicPrefix != "graylogic" {
		t.Errorf("TopicPrefix = %q", cfg.TopicPrefix)
	}
	if cfg.Adapter != "hci1" || cfg.MaxRestartAttempts != 4 || cfg.HealthCheckInterval != time.Minute {
		t.Errorf("daemon fields not copied: %+v", cfg)
	}
}

func TestFromSettings_TopicPrefix(t *testing.T) {
	var mq config.MQTTConfig
	mq.Broker.Host = "localhost"
	mq.Broker.Port = 1883

	cfg := FromSettings(config.MeshConfig{TopicPrefix: "site2/graylogic"}, mq)
	if cfg.TopicPrefix != "site2/graylogic" {
		t.Fatalf("TopicPrefix = %q, want site2/graylogic", cfg.TopicPrefix)
	}

	args := strings.Join(cfg.BuildArgs(), " ")
	if !strings.Contains(args, "--topic-prefix site2/graylogic") {
		t.Errorf("BuildArgs() = %q, want --topic-prefix site2/graylogic", args)
	}
}

func TestBuildArgs(t *testing.T) {
	cfg := managedConfig()
	cfg.Adapter = "hci0"
	cfg.ClientID = "gl-meshd"

	got := strings.Join(cfg.BuildArgs(), " ")
	want := "--adapter hci0 --broker tcp://localhost:1883 --topic-prefix graylogic --client-id gl-meshd"
	if got != want {
		t.Errorf("BuildArgs() = %q, want %q", got, want)
	}
	if env := cfg.BuildEnv(); env != nil {
		t.Errorf("BuildEnv() = %v, want nil without password", env)
	}

	cfg.Username = "mesh"
	cfg.Password = "s3cret"
	args := strings.Join(cfg.BuildArgs(), " ")
	if strings.Contains(args, "s3cret") {
		t.Error("password leaked onto the command line")
	}
	if !strings.Contains(args, "--username mesh --password-env "+PasswordEnv) {
		t.Errorf("BuildArgs() = %q, missing credentials flags", args)
	}
	env := cfg.BuildEnv()
	if len(env) != 1 || env[0] != PasswordEnv+"=s3cret" {
		t.Errorf("BuildEnv() = %v", env)
	}
}

func TestHealthError(t *testing.T) {
	inner := errors.New("no such adapter")
	err := error(&HealthError{Layer: LayerAdapter, Recoverable: false, Err: inner})

	if !errors.Is(err, inner) {
		t.Error("HealthError should unwrap to the cause")
	}
	if process.IsRecoverable(err) {
		t.Error("adapter failure should not be recoverable")
	}
	if !strings.Contains(err.Error(), "layer 0") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !process.IsRecoverable(&HealthError{Layer: LayerDaemon, Recoverable: true, Err: inner}) {
		t.Error("daemon failure should be recoverable")
	}
}

func TestHealthCheck_Unmanaged(t *testing.T) {
	m, err := NewManager(Config{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if err := m.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() without pinger error = %v", err)
	}

	p := &fakePinger{err: errors.New("ping timeout")}
	m.SetPinger(p)
	err = m.HealthCheck(context.Background())
	var he *HealthError
	if !errors.As(err, &he) || he.Layer != LayerDaemon || !he.Recoverable {
		t.Errorf("HealthCheck() = %v, want recoverable daemon layer error", err)
	}
	if p.calls != 1 {
		t.Errorf("pinger calls = %d, want 1", p.calls)
	}
}

func TestHealthCheck_Managed(t *testing.T) {
	t.Run("adapter present", func(t *testing.T) {
		withAdapters(t, "hci0")
		m, err := NewManager(managedConfig())
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		m.SetPinger(&fakePinger{})
		if err := m.HealthCheck(context.Background()); err != nil {
			t.Errorf("HealthCheck() error = %v", err)
		}
	})

	t.Run("adapter missing", func(t *testing.T) {
		withAdapters(t, "hci1")
		m, err := NewManager(managedConfig())
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		p := &fakePinger{}
		m.SetPinger(p)

		err = m.HealthCheck(context.Background())
		var he *HealthError
		if !errors.As(err, &he) || he.Layer != LayerAdapter || he.Recoverable {
			t.Errorf("HealthCheck() = %v, want unrecoverable adapter error", err)
		}
		if p.calls != 0 {
			t.Error("pinger should not run when the adapter is missing")
		}
	})
}

func TestStart_Unmanaged(t *testing.T) {
	m, err := NewManager(Config{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Errorf("Start() unmanaged error = %v", err)
	}
	if !m.IsRunning() || m.IsManaged() {
		t.Errorf("unmanaged: running=%v managed=%v", m.IsRunning(), m.IsManaged())
	}
	if s := m.Stats(); s.Status != "external" {
		t.Errorf("Stats().Status = %q, want external", s.Status)
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() unmanaged error = %v", err)
	}
}

func TestStart_MissingAdapter(t *testing.T) {
	withAdapters(t)
	m, err := NewManager(managedConfig())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail without the adapter")
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true after failed Start()")
	}
	if s := m.Stats(); s.Status != "stopped" || !s.Managed {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestStart_ExitsBeforeReady(t *testing.T) {
	withAdapters(t, "hci0")
	withPIDDir(t)
	cfg := managedConfig()
	cfg.Binary = "/bin/false"
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	m.SetPinger(&fakePinger{err: errors.New("no pong")})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Start(ctx); err == nil {
		t.Fatal("Start() should fail when the daemon exits before answering")
	}
}

func TestParseProcState(t *testing.T) {
	tests := []struct {
		stat    string
		want    string
		wantErr bool
	}{
		{"1234 (graylogic-meshd) S 1 1234", "S", false},
		{"99 (odd) name) (x) D 1 99", "D", false},
		{"garbage", "", true},
		{"1 (x)", "", true},
	}
	for _, tt := range tests {
		got, err := parseProcState(tt.stat)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseProcState(%q) error = %v, wantErr %v", tt.stat, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseProcState(%q) = %q, want %q", tt.stat, got, tt.want)
		}
	}
}

func TestCheckProcessState_Self(t *testing.T) {
	m, err := NewManager(Config{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if err := m.checkProcessState(os.Getpid()); err != nil {
		t.Errorf("checkProcessState(self) error = %v", err)
	}
}

func TestAcquirePIDFile(t *testing.T) {
	t.Run("fresh", func(t *testing.T) {
		dir := withPIDDir(t)
		m, _ := NewManager(Config{Adapter: "hci0"})

		if err := m.acquirePIDFile(4242, 0); err != nil {
			t.Fatalf("acquirePIDFile() error = %v", err)
		}
		data, err := os.ReadFile(filepath.Join(dir, "graylogic-meshd-hci0.pid"))
		if err != nil {
			t.Fatalf("read PID file: %v", err)
		}
		if strings.TrimSpace(string(data)) != "4242" {
			t.Errorf("PID file = %q, want 4242", data)
		}

		m.removePIDFile()
		if _, err := os.Stat(filepath.Join(dir, "graylogic-meshd-hci0.pid")); !os.IsNotExist(err) {
			t.Error("PID file not removed")
		}
	})

	t.Run("replaces garbage", func(t *testing.T) {
		dir := withPIDDir(t)
		path := filepath.Join(dir, "graylogic-meshd-hci0.pid")
		if err := os.WriteFile(path, []byte("not-a-pid\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		m, _ := NewManager(Config{Adapter: "hci0"})
		if err := m.acquirePIDFile(4242, 0); err != nil {
			t.Errorf("acquirePIDFile() error = %v", err)
		}
	})

	t.Run("replaces other process", func(t *testing.T) {
		dir := withPIDDir(t)
		path := filepath.Join(dir, "graylogic-meshd-hci0.pid")
		// The test binary is alive but is not a meshd.
		if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		m, _ := NewManager(Config{Adapter: "hci0", Binary: "/usr/bin/graylogic-meshd"})
		if err := m.acquirePIDFile(4242, 0); err != nil {
			t.Errorf("acquirePIDFile() error = %v", err)
		}
	})

	t.Run("rejects live daemon", func(t *testing.T) {
		dir := withPIDDir(t)
		path := filepath.Join(dir, "graylogic-meshd-hci0.pid")
		if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		self, err := os.Executable()
		if err != nil {
			t.Skipf("os.Executable: %v", err)
		}
		comm, err := os.ReadFile("/proc/self/comm")
		if err != nil || !strings.HasPrefix(filepath.Base(self), strings.TrimSpace(string(comm))) {
			t.Skip("cannot match /proc comm to the test binary")
		}
		m, _ := NewManager(Config{Adapter: "hci0", Binary: self})
		if err := m.acquirePIDFile(4242, 0); err == nil {
			t.Error("acquirePIDFile() should refuse while the recorded daemon is alive")
		}
	})
}
