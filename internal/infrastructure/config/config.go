package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic mesh provisioner.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Mesh     MeshConfig     `yaml:"mesh"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MeshConfig contains the provisioning engine settings.
type MeshConfig struct {
	// NetIdx is the global index of the network key all nodes join.
	NetIdx uint16 `yaml:"net_idx"`

	// AppIdx is the global index of the application key bound to models.
	AppIdx uint16 `yaml:"app_idx"`

	// SelfAddress is the unicast address of the provisioner itself.
	// Default: 0x0001
	SelfAddress uint16 `yaml:"self_address"`

	// DeviceUUID identifies the provisioner during self-provisioning.
	// If empty a random UUID is generated at every start.
	DeviceUUID string `yaml:"device_uuid"`

	// CompanyID is reported in the local composition data.
	CompanyID uint16 `yaml:"company_id"`

	// BeaconTimeout is how long one session waits for an unprovisioned beacon.
	// Default: 10s
	BeaconTimeout time.Duration `yaml:"beacon_timeout"`

	// NodeAddedTimeout is how long one session waits for admission to complete.
	// Default: 10s
	NodeAddedTimeout time.Duration `yaml:"node_added_timeout"`

	// TickInterval is the fixed delay between the end of one tick and the
	// start of the next.
	// Default: 5s
	TickInterval time.Duration `yaml:"tick_interval"`

	// RequestTimeout bounds each call to the radio daemon.
	// Default: 5s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// TopicPrefix is the root of the request, response, event and health
	// topics shared with the radio daemon.
	// Default: graylogic
	TopicPrefix string `yaml:"topic_prefix"`

	// ExposeKeys logs network and application keys in hex at start-up.
	// Never enable this outside a development bench.
	ExposeKeys bool `yaml:"expose_keys"`

	// Daemon contains radio daemon management settings.
	Daemon MeshDaemonConfig `yaml:"daemon"`
}

// MeshDaemonConfig contains settings for managing the radio daemon that
// owns the Bluetooth adapter and speaks the mesh stack.
type MeshDaemonConfig struct {
	// Managed indicates whether the provisioner should manage the daemon lifecycle.
	// If false, the daemon is expected to be running externally.
	Managed bool `yaml:"managed"`

	// Binary is the path to the daemon executable.
	// Default: "/usr/bin/graylogic-meshd"
	Binary string `yaml:"binary"`

	// Adapter is the HCI adapter the daemon opens.
	// Default: "hci0"
	Adapter string `yaml:"adapter"`

	// RestartOnFailure enables automatic restart if the daemon crashes.
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// RestartDelaySeconds is the time to wait before restarting (in seconds).
	// Default: 5
	RestartDelaySeconds int `yaml:"restart_delay_seconds"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	// Default: 10
	MaxRestartAttempts int `yaml:"max_restart_attempts"`

	// HealthCheckInterval is how often to ping the daemon over MQTT.
	// Default: 30s
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_MESH_SECTION_KEY
// For example: GRAYLOGIC_MESH_DATABASE_PATH, GRAYLOGIC_MESH_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-mesh.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-mesh",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Mesh: MeshConfig{
			SelfAddress:      0x0001,
			BeaconTimeout:    10 * time.Second,
			NodeAddedTimeout: 10 * time.Second,
			TickInterval:     5 * time.Second,
			RequestTimeout:   5 * time.Second,
			TopicPrefix:      "graylogic",
			Daemon: MeshDaemonConfig{
				Binary:              "/usr/bin/graylogic-meshd",
				Adapter:             "hci0",
				RestartOnFailure:    true,
				RestartDelaySeconds: 5,
				MaxRestartAttempts:  10,
				HealthCheckInterval: 30 * time.Second,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_MESH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_MESH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MESH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MESH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MESH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_MESH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Mesh
	if v := os.Getenv("GRAYLOGIC_MESH_DEVICE_UUID"); v != "" {
		cfg.Mesh.DeviceUUID = v
	}
	if v := os.Getenv("GRAYLOGIC_MESH_TOPIC_PREFIX"); v != "" {
		cfg.Mesh.TopicPrefix = v
	}
	if v := os.Getenv("GRAYLOGIC_MESH_ADAPTER"); v != "" {
		cfg.Mesh.Daemon.Adapter = v
	}
	if v := os.Getenv("GRAYLOGIC_MESH_EXPOSE_KEYS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Mesh.ExposeKeys = b
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	errs = append(errs, c.Mesh.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Key indexes are 12 bits wide on the air.
const maxKeyIndex = 0x0FFF

func (m *MeshConfig) validate() []string {
	var errs []string

	if m.NetIdx > maxKeyIndex {
		errs = append(errs, "mesh.net_idx must be at most 0x0fff")
	}
	if m.AppIdx > maxKeyIndex {
		errs = append(errs, "mesh.app_idx must be at most 0x0fff")
	}
	if m.SelfAddress == 0 || m.SelfAddress > 0x7FFF {
		errs = append(errs, "mesh.self_address must be a unicast address (0x0001-0x7fff)")
	}
	if m.DeviceUUID != "" {
		if _, err := uuid.Parse(m.DeviceUUID); err != nil {
			errs = append(errs, "mesh.device_uuid is not a valid UUID")
		}
	}
	if m.BeaconTimeout <= 0 {
		errs = append(errs, "mesh.beacon_timeout must be positive")
	}
	if m.NodeAddedTimeout <= 0 {
		errs = append(errs, "mesh.node_added_timeout must be positive")
	}
	if m.TickInterval <= 0 {
		errs = append(errs, "mesh.tick_interval must be positive")
	}
	if m.RequestTimeout <= 0 {
		errs = append(errs, "mesh.request_timeout must be positive")
	}
	switch {
	case m.TopicPrefix == "":
		errs = append(errs, "mesh.topic_prefix is required")
	case strings.ContainsAny(m.TopicPrefix, "+#") ||
		strings.HasPrefix(m.TopicPrefix, "/") || strings.HasSuffix(m.TopicPrefix, "/"):
		errs = append(errs, "mesh.topic_prefix must be a plain topic path without wildcards")
	}
	if m.Daemon.Managed && m.Daemon.Binary == "" {
		errs = append(errs, "mesh.daemon.binary is required when the daemon is managed")
	}

	return errs
}

// SessionBound returns the longest time one provisioning session may block.
func (m *MeshConfig) SessionBound() time.Duration {
	return m.BeaconTimeout + m.NodeAddedTimeout
}
