package meshd

import (
	"fmt"
	"regexp"
	"time"

	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/mqtt"
)

// Defaults applied by NewManager to zero fields.
const (
	defaultBinary          = "/usr/bin/graylogic-meshd"
	defaultAdapter         = "hci0"
	defaultGracefulTimeout = 10 * time.Second
	defaultHealthInterval  = 30 * time.Second
)

// PasswordEnv carries the broker password to the daemon. Passwords never
// appear on the command line where ps can see them.
const PasswordEnv = "GRAYLOGIC_MESHD_MQTT_PASSWORD"

// Config holds graylogic-meshd settings.
type Config struct {
	// Managed starts and supervises the daemon. When false an external
	// daemon is expected to be serving the adapter already.
	Managed bool

	Binary  string
	Adapter string

	// BrokerURL is where the daemon connects, e.g. tcp://localhost:1883.
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// TopicPrefix is the root of the daemon's request and event topics.
	TopicPrefix string

	RestartOnFailure   bool
	RestartDelay       time.Duration
	MaxRestartAttempts int
	GracefulTimeout    time.Duration

	HealthCheckInterval time.Duration
}

// FromSettings builds a Config from the mesh and broker sections of the
// provisioner configuration. The daemon shares the provisioner's topic root.
func FromSettings(mc config.MeshConfig, m config.MQTTConfig) Config {
	d := mc.Daemon
	prefix := mc.TopicPrefix
	if prefix == "" {
		prefix = mqtt.TopicPrefix
	}

	scheme := "tcp"
	if m.Broker.TLS {
		scheme = "ssl"
	}
	clientID := m.Broker.ClientID
	if clientID != "" {
		clientID += "-meshd"
	}
	return Config{
		Managed:             d.Managed,
		Binary:              d.Binary,
		Adapter:             d.Adapter,
		BrokerURL:           fmt.Sprintf("%s://%s:%d", scheme, m.Broker.Host, m.Broker.Port),
		ClientID:            clientID,
		Username:            m.Auth.Username,
		Password:            m.Auth.Password,
		TopicPrefix:         prefix,
		RestartOnFailure:    d.RestartOnFailure,
		RestartDelay:        time.Duration(d.RestartDelaySeconds) * time.Second,
		MaxRestartAttempts:  d.MaxRestartAttempts,
		HealthCheckInterval: d.HealthCheckInterval,
	}
}

var (
	adapterPattern = regexp.MustCompile(`^hci[0-9]{1,3}$`)

	// Values passed as arguments must not carry shell metacharacters.
	safeArgPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-./:]+$`)
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if !c.Managed {
		return nil
	}
	if c.Binary == "" {
		return fmt.Errorf("meshd binary path is required")
	}
	if !adapterPattern.MatchString(c.Adapter) {
		return fmt.Errorf("adapter %q must look like hci0", c.Adapter)
	}
	if c.BrokerURL == "" {
		return fmt.Errorf("broker url is required")
	}
	for name, v := range map[string]string{
		"broker_url":   c.BrokerURL,
		"client_id":    c.ClientID,
		"username":     c.Username,
		"topic_prefix": c.TopicPrefix,
	} {
		if v != "" && !safeArgPattern.MatchString(v) {
			return fmt.Errorf("%s contains invalid characters", name)
		}
	}
	if c.MaxRestartAttempts < 0 {
		return fmt.Errorf("max_restart_attempts must not be negative")
	}
	return nil
}

// BuildArgs constructs the daemon command line.
func (c *Config) BuildArgs() []string {
	args := []string{
		"--adapter", c.Adapter,
		"--broker", c.BrokerURL,
	}
	if c.TopicPrefix != "" {
		args = append(args, "--topic-prefix", c.TopicPrefix)
	}
	if c.ClientID != "" {
		args = append(args, "--client-id", c.ClientID)
	}
	if c.Username != "" {
		args = append(args, "--username", c.Username, "--password-env", PasswordEnv)
	}
	return args
}

// BuildEnv returns extra environment for the daemon.
func (c *Config) BuildEnv() []string {
	if c.Password == "" {
		return nil
	}
	return []string{PasswordEnv + "=" + c.Password}
}
