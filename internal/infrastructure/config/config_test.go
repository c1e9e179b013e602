package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
mesh:
  net_idx: 0
  app_idx: 2
  self_address: 1
  device_uuid: "dddd0000-0000-4000-8000-000000000000"
  beacon_timeout: 3s
  tick_interval: 1s
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Mesh.AppIdx != 2 {
		t.Errorf("Mesh.AppIdx = %d, want 2", cfg.Mesh.AppIdx)
	}
	if cfg.Mesh.BeaconTimeout != 3*time.Second {
		t.Errorf("Mesh.BeaconTimeout = %v, want 3s", cfg.Mesh.BeaconTimeout)
	}
	// Not set in the file, so the default survives.
	if cfg.Mesh.NodeAddedTimeout != 10*time.Second {
		t.Errorf("Mesh.NodeAddedTimeout = %v, want 10s", cfg.Mesh.NodeAddedTimeout)
	}
	if cfg.Mesh.TickInterval != time.Second {
		t.Errorf("Mesh.TickInterval = %v, want 1s", cfg.Mesh.TickInterval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
mesh:
  self_address: 0
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	// All problems are reported together.
	for _, want := range []string{"site.id", "mesh.self_address"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid broker port", mutate: func(c *Config) { c.MQTT.Broker.Port = 70000 }, wantErr: true},
		{name: "influx without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{name: "net index too wide", mutate: func(c *Config) { c.Mesh.NetIdx = 0x1000 }, wantErr: true},
		{name: "app index too wide", mutate: func(c *Config) { c.Mesh.AppIdx = 0xFFFF }, wantErr: true},
		{name: "group self address", mutate: func(c *Config) { c.Mesh.SelfAddress = 0xC000 }, wantErr: true},
		{name: "bad device uuid", mutate: func(c *Config) { c.Mesh.DeviceUUID = "not-a-uuid" }, wantErr: true},
		{name: "zero beacon timeout", mutate: func(c *Config) { c.Mesh.BeaconTimeout = 0 }, wantErr: true},
		{name: "negative tick", mutate: func(c *Config) { c.Mesh.TickInterval = -time.Second }, wantErr: true},
		{name: "nested topic prefix", mutate: func(c *Config) { c.Mesh.TopicPrefix = "site2/graylogic" }, wantErr: false},
		{name: "empty topic prefix", mutate: func(c *Config) { c.Mesh.TopicPrefix = "" }, wantErr: true},
		{name: "wildcard topic prefix", mutate: func(c *Config) { c.Mesh.TopicPrefix = "graylogic/#" }, wantErr: true},
		{name: "trailing slash topic prefix", mutate: func(c *Config) { c.Mesh.TopicPrefix = "graylogic/" }, wantErr: true},
		{
			name: "managed daemon without binary",
			mutate: func(c *Config) {
				c.Mesh.Daemon.Managed = true
				c.Mesh.Daemon.Binary = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_MESH_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_MESH_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_MESH_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_MESH_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_MESH_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_MESH_ADAPTER", "hci1")
	t.Setenv("GRAYLOGIC_MESH_EXPOSE_KEYS", "true")
	t.Setenv("GRAYLOGIC_MESH_TOPIC_PREFIX", "site2")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Mesh.Daemon.Adapter != "hci1" {
		t.Errorf("Mesh.Daemon.Adapter = %q, want %q", cfg.Mesh.Daemon.Adapter, "hci1")
	}
	if !cfg.Mesh.ExposeKeys {
		t.Error("Mesh.ExposeKeys = false, want true")
	}
	if cfg.Mesh.TopicPrefix != "site2" {
		t.Errorf("Mesh.TopicPrefix = %q, want %q", cfg.Mesh.TopicPrefix, "site2")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Mesh.SelfAddress != 0x0001 {
		t.Errorf("defaultConfig Mesh.SelfAddress = %#04x, want 0x0001", cfg.Mesh.SelfAddress)
	}
	if got := cfg.Mesh.SessionBound(); got != 20*time.Second {
		t.Errorf("SessionBound() = %v, want 20s", got)
	}
	if cfg.Mesh.TickInterval != 5*time.Second {
		t.Errorf("defaultConfig Mesh.TickInterval = %v, want 5s", cfg.Mesh.TickInterval)
	}
	if cfg.Mesh.TopicPrefix != "graylogic" {
		t.Errorf("defaultConfig Mesh.TopicPrefix = %q, want graylogic", cfg.Mesh.TopicPrefix)
	}
}
