package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-mesh/internal/bridges/blemesh"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_MESH_CONFIG", path)
	return path
}

func baseConfig(dbPath string, port int) string {
	return `
site:
  id: test-site

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: ` + strconv.Itoa(port) + `
    client_id: "test-mesh"
    tls: false
  qos: 1
  reconnect:
    initial_delay: 1
    max_delay: 5
    max_attempts: 1

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

mesh:
  beacon_timeout: 1s
  node_added_timeout: 1s
  tick_interval: 1s
  request_timeout: 1s
`
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_MESH_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("run() error = %v, want config load failure", err)
	}
}

func TestRun_MissingDatabasePath(t *testing.T) {
	writeConfig(t, baseConfig("", 1883))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

func TestRun_InvalidDeviceUUID(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mesh.db")
	writeConfig(t, baseConfig(dbPath, 1883)+"  device_uuid: not-a-uuid\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "device_uuid") {
		t.Fatalf("run() error = %v, want device_uuid validation failure", err)
	}
}

func TestRun_BrokerUnreachable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mesh.db")
	writeConfig(t, baseConfig(dbPath, 19999))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail without a broker")
	}
	if !strings.Contains(err.Error(), "MQTT") {
		t.Errorf("run() error = %v, want MQTT connection failure", err)
	}
	// Migrations ran before the broker was contacted.
	if _, statErr := os.Stat(dbPath); statErr != nil {
		t.Errorf("database not created: %v", statErr)
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GRAYLOGIC_MESH_CONFIG", "")
	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	t.Setenv("GRAYLOGIC_MESH_CONFIG", "/etc/graylogic/mesh.yaml")
	if path := getConfigPath(); path != "/etc/graylogic/mesh.yaml" {
		t.Errorf("getConfigPath() = %q", path)
	}
}

// stubMQTT satisfies blemesh.MQTTClient without a broker.
type stubMQTT struct{}

func (stubMQTT) Publish(string, []byte, byte, bool) error           { return nil }
func (stubMQTT) Subscribe(string, byte, func(string, []byte)) error { return nil }
func (stubMQTT) Unsubscribe(string) error                           { return nil }
func (stubMQTT) IsConnected() bool                                  { return true }

func newTestDeps(t *testing.T) (*config.Config, *database.DB, *blemesh.Bridge) {
	t.Helper()
	path := writeConfig(t, baseConfig(filepath.Join(t.TempDir(), "mesh.db"), 1883))
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	db, err := database.Open(context.Background(), database.Config{Path: cfg.Database.Path, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	bridge, err := blemesh.New(blemesh.Options{MQTTClient: stubMQTT{}})
	if err != nil {
		t.Fatalf("blemesh.New() error = %v", err)
	}
	return cfg, db, bridge
}

func TestNewEngine(t *testing.T) {
	cfg, db, bridge := newTestDeps(t)
	cfg.Mesh.DeviceUUID = "6f1c1a52-3b0e-4c4d-9a43-2f0c2b6b7d11"

	engine, err := newEngine(cfg, db, bridge, nil, nil, logging.Default())
	if err != nil {
		t.Fatalf("newEngine() error = %v", err)
	}
	if engine.Status().Running {
		t.Error("engine should not run before Start")
	}
}

func TestNewEngine_RejectsBadSettings(t *testing.T) {
	cfg, db, bridge := newTestDeps(t)
	cfg.Mesh.SelfAddress = 0xC000

	if _, err := newEngine(cfg, db, bridge, nil, nil, logging.Default()); err == nil {
		t.Error("newEngine() should reject a group self address")
	}
}
