// Gray Logic Mesh - autonomous BLE mesh provisioner
//
// graylogic-mesh creates a mesh network on first start, provisions its own
// radio into it, then loops forever: every tick it configures nodes that
// joined earlier and admits at most one new unprovisioned device.
//
// The radio is reached through graylogic-meshd over MQTT. The daemon is
// either supervised by this process or run externally.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-mesh/migrations"

	"github.com/nerrad567/gray-logic-mesh/internal/bridges/blemesh"
	"github.com/nerrad567/gray-logic-mesh/internal/cdb"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
	"github.com/nerrad567/gray-logic-mesh/internal/meshd"
	"github.com/nerrad567/gray-logic-mesh/internal/provisioner"
	"github.com/nerrad567/gray-logic-mesh/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the provisioner together and blocks until ctx is cancelled.
// Deferred teardown runs in reverse start order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Mesh",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	bridge, err := startBridge(ctx, cfg, mqttClient, log)
	if err != nil {
		return fmt.Errorf("starting mesh bridge: %w", err)
	}
	defer func() {
		log.Info("stopping mesh bridge")
		bridge.Stop()
	}()

	daemon, err := startDaemon(ctx, cfg, bridge, log)
	if err != nil {
		return fmt.Errorf("starting meshd: %w", err)
	}
	defer func() {
		if stopErr := daemon.Stop(); stopErr != nil {
			log.Error("error stopping meshd", "error", stopErr)
		}
	}()

	engine, err := newEngine(cfg, db, bridge, mqttClient, influxClient, log)
	if err != nil {
		return fmt.Errorf("creating provisioner: %w", err)
	}

	if startErr := engine.Start(ctx); startErr != nil {
		return fmt.Errorf("starting provisioner: %w", startErr)
	}
	defer func() {
		log.Info("stopping provisioner")
		engine.Stop()
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient, bridge); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, provisioning",
		"site", cfg.Site.ID,
		"self_address", mesh.Address(cfg.Mesh.SelfAddress),
		"tick_interval", cfg.Mesh.TickInterval,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Gray Logic Mesh stopped")
	return nil
}

// getConfigPath returns GRAYLOGIC_MESH_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_MESH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every dependency is reachable. influxClient may be
// nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, bridge *blemesh.Bridge) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if err := bridge.HealthCheck(ctx); err != nil {
		return fmt.Errorf("meshd: %w", err)
	}
	return nil
}

// startBridge subscribes the daemon bridge before anything calls the radio.
func startBridge(ctx context.Context, cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) (*blemesh.Bridge, error) {
	bridge, err := blemesh.New(blemesh.Options{
		MQTTClient:     &mqttBridgeAdapter{client: mqttClient},
		RequestTimeout: cfg.Mesh.RequestTimeout,
		TopicPrefix:    cfg.Mesh.TopicPrefix,
		Logger:         log.Component("blemesh"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("subscribing: %w", err)
	}
	log.Info("mesh bridge started", "request_timeout", cfg.Mesh.RequestTimeout)
	return bridge, nil
}

// startDaemon starts graylogic-meshd when managed and waits until it
// answers through the bridge. An external daemon is left alone.
func startDaemon(ctx context.Context, cfg *config.Config, bridge *blemesh.Bridge, log *logging.Logger) (*meshd.Manager, error) {
	manager, err := meshd.NewManager(meshd.FromSettings(cfg.Mesh, cfg.MQTT))
	if err != nil {
		return nil, err
	}
	manager.SetLogger(log.Component("meshd"))
	manager.SetPinger(bridge)

	if err := manager.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("meshd available",
		"managed", manager.IsManaged(),
		"adapter", cfg.Mesh.Daemon.Adapter,
	)
	return manager, nil
}

// newEngine builds the configuration database and the provisioning engine
// with telemetry attached.
func newEngine(cfg *config.Config, db *database.DB, bridge *blemesh.Bridge, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) (*provisioner.Engine, error) {
	self := mesh.Address(cfg.Mesh.SelfAddress)

	store := cdb.New(cdb.NewSQLiteStore(db.DB), self)
	store.SetLogger(log.Component("cdb"))

	pcfg := provisioner.Config{
		NetIdx:           mesh.KeyIndex(cfg.Mesh.NetIdx),
		AppIdx:           mesh.KeyIndex(cfg.Mesh.AppIdx),
		SelfAddress:      self,
		CompanyID:        cfg.Mesh.CompanyID,
		BeaconTimeout:    cfg.Mesh.BeaconTimeout,
		NodeAddedTimeout: cfg.Mesh.NodeAddedTimeout,
		TickInterval:     cfg.Mesh.TickInterval,
		ExposeKeys:       cfg.Mesh.ExposeKeys,
	}
	if cfg.Mesh.DeviceUUID != "" {
		id, err := mesh.ParseUUID(cfg.Mesh.DeviceUUID)
		if err != nil {
			return nil, fmt.Errorf("mesh.device_uuid: %w", err)
		}
		pcfg.DeviceUUID = id
	}

	recOpts := telemetry.Options{
		SiteID: cfg.Site.ID,
		Logger: log.Component("telemetry"),
	}
	if mqttClient != nil {
		recOpts.Events = mqttClient
	}
	if influxClient != nil {
		recOpts.Metrics = influxClient
	}

	return provisioner.New(provisioner.Options{
		Config:   pcfg,
		DB:       store,
		Radio:    bridge,
		Observer: telemetry.New(recOpts),
		Logger:   log.Component("provisioner"),
	})
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. Bridge handlers do not return errors.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements blemesh.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements blemesh.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements blemesh.MQTTClient.
func (a *mqttBridgeAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

// IsConnected implements blemesh.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
