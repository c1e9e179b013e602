package provisioner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-mesh/internal/cdb"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// Logger defines the logging interface used by the engine.
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

// Config holds the engine's addressing and timing.
type Config struct {
	NetIdx      mesh.KeyIndex
	AppIdx      mesh.KeyIndex
	SelfAddress mesh.Address
	DeviceUUID  mesh.UUID
	CompanyID   uint16

	// BeaconTimeout bounds AWAIT_BEACON.
	BeaconTimeout time.Duration
	// NodeAddedTimeout bounds AWAIT_ADMITTED.
	NodeAddedTimeout time.Duration
	// TickInterval is the delay between the end of a tick and the next.
	TickInterval time.Duration

	// ExposeKeys logs key material in hex at start-up.
	ExposeKeys bool
}

// DefaultConfig returns the production timing: 10s waits, 5s between ticks.
func DefaultConfig() Config {
	return Config{
		SelfAddress:      0x0001,
		BeaconTimeout:    10 * time.Second,
		NodeAddedTimeout: 10 * time.Second,
		TickInterval:     5 * time.Second,
	}
}

func (c Config) validate() error {
	switch {
	case !c.SelfAddress.IsUnicast():
		return fmt.Errorf("%w: self address %s is not unicast", ErrInvalidConfig, c.SelfAddress)
	case c.NetIdx.Validate() != nil, c.AppIdx.Validate() != nil:
		return fmt.Errorf("%w: key index out of range", ErrInvalidConfig)
	case c.BeaconTimeout <= 0, c.NodeAddedTimeout <= 0, c.TickInterval <= 0:
		return fmt.Errorf("%w: timeouts and tick interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// Options configures a new Engine.
type Options struct {
	Config   Config
	DB       *cdb.DB
	Radio    Radio
	Observer Observer
	Logger   Logger
}

// Status is a point-in-time view of the engine for health reporting.
type Status struct {
	Running  bool
	Ticks    uint64
	LastTick TickReport
}

// Engine is the autonomous provisioner. One worker goroutine runs ticks
// back to back with a fixed delay between them, for as long as the
// engine is running. Each tick configures every unconfigured node and
// then runs one provisioning session.
//
// Radio callbacks only post into two single-value slots; all database
// writes happen on the worker goroutine.
type Engine struct {
	cfg      Config
	db       *cdb.DB
	radio    Radio
	observer Observer
	logger   Logger

	beacons  *slot[mesh.Beacon]
	admitted *slot[mesh.NodeAdded]

	// tickMu serialises RunTick so the worker and tests never overlap.
	tickMu sync.Mutex

	mu       sync.RWMutex
	running  bool
	ticks    uint64
	lastTick TickReport

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	now     func() time.Time
	onPhase func(Phase)
}

// New creates an engine. Nothing runs until Start.
func New(opts Options) (*Engine, error) {
	if opts.DB == nil {
		return nil, ErrNilDB
	}
	if opts.Radio == nil {
		return nil, ErrNilRadio
	}
	if err := opts.Config.validate(); err != nil {
		return nil, err
	}
	if opts.Config.DeviceUUID == (mesh.UUID{}) {
		opts.Config.DeviceUUID = uuid.New()
	}

	e := &Engine{
		cfg:      opts.Config,
		db:       opts.DB,
		radio:    opts.Radio,
		observer: opts.Observer,
		logger:   opts.Logger,
		beacons:  newSlot[mesh.Beacon](),
		admitted: newSlot[mesh.NodeAdded](),
		now:      time.Now,
	}
	if e.observer == nil {
		e.observer = noopObserver{}
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}
	return e, nil
}

// Start brings the network up and launches the worker.
//
// It loads the configuration database, creates the network and
// application key on first run (a stored network is reused), provisions
// the local device and records it as a node. Any failure here is fatal
// and returned.
//
// Parameters:
//   - ctx: Bounds start-up; the worker runs until Stop
//
// Returns:
//   - error: If the network cannot be brought up
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()

	if err := e.bringUp(ctx); err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return err
	}

	e.radio.SetEventSink(e)

	workerCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go e.loop(workerCtx)

	e.logger.Info("provisioner started",
		"self", e.cfg.SelfAddress,
		"net_idx", e.netIdx(),
		"app_idx", e.cfg.AppIdx,
		"tick_interval", e.cfg.TickInterval,
	)
	return nil
}

// Stop cancels the worker and waits for it to exit. An in-flight wait
// is abandoned.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		cancel := e.cancel
		e.mu.Unlock()
		if cancel == nil {
			return
		}

		cancel()
		e.wg.Wait()

		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		e.logger.Info("provisioner stopped")
	})
}

// Status returns a snapshot of the engine's progress.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{Running: e.running, Ticks: e.ticks, LastTick: e.lastTick}
}

// OnUnprovisionedBeacon implements mesh.EventSink.
func (e *Engine) OnUnprovisionedBeacon(b mesh.Beacon) {
	e.beacons.post(b)
}

// OnNodeAdded implements mesh.EventSink.
func (e *Engine) OnNodeAdded(ev mesh.NodeAdded) {
	e.admitted.post(ev)
}

// RunTick runs one tick: the configuration pass, then one session.
func (e *Engine) RunTick(ctx context.Context) TickReport {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.mu.Lock()
	e.ticks++
	seq := e.ticks
	e.mu.Unlock()

	report := TickReport{Seq: seq, Started: e.now()}
	report.Pass = e.configurePass(ctx)

	s := &session{e: e}
	report.Session = s.run(ctx)
	report.Duration = e.now().Sub(report.Started)

	e.mu.Lock()
	e.lastTick = report
	e.mu.Unlock()

	e.observer.TickCompleted(report)
	e.logger.Debug("tick complete",
		"seq", seq,
		"visited", report.Pass.Visited,
		"configured", report.Pass.Configured,
		"failed", report.Pass.Failed,
		"session", report.Session.Outcome,
		"duration", report.Duration,
	)
	return report
}

// loop is the scheduler. The next tick is always scheduled TickInterval
// after the previous one finishes, whatever its outcome.
func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		e.safeTick(ctx)
		timer.Reset(e.cfg.TickInterval)
	}
}

// safeTick keeps the scheduler alive if a tick panics.
func (e *Engine) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tick panicked", "panic", r)
		}
	}()
	e.RunTick(ctx)
}

func (e *Engine) bringUp(ctx context.Context) error {
	if err := e.db.Load(ctx); err != nil {
		return fmt.Errorf("loading configuration database: %w", err)
	}
	if err := e.setupNetwork(ctx); err != nil {
		return err
	}
	return e.provisionSelf(ctx)
}

func (e *Engine) setupNetwork(ctx context.Context) error {
	netKey, err := mesh.NewKey()
	if err != nil {
		return err
	}

	err = e.db.Create(ctx, e.cfg.NetIdx, netKey)
	switch {
	case errors.Is(err, cdb.ErrAlreadyExists):
		e.logger.Info("using stored network")
	case err != nil:
		return fmt.Errorf("creating network: %w", err)
	default:
		e.logger.Info("network created", "net_idx", e.cfg.NetIdx)
	}

	network, err := e.db.Network()
	if err != nil {
		return err
	}
	if network.NetIdx != e.cfg.NetIdx {
		e.logger.Warn("configured net_idx differs from stored network, using stored",
			"configured", e.cfg.NetIdx,
			"stored", network.NetIdx,
		)
	}

	// The app key is written separately from the network, so a start that
	// failed between the two leaves a network without one.
	_, err = e.db.AppKey(e.cfg.AppIdx)
	switch {
	case err == nil:
	case errors.Is(err, cdb.ErrAppKeyNotFound):
		appKey, err := mesh.NewKey()
		if err != nil {
			return err
		}
		if err := e.db.AddAppKey(ctx, network.NetIdx, e.cfg.AppIdx, appKey); err != nil {
			return fmt.Errorf("creating app key: %w", err)
		}
		e.logger.Info("app key created", "net_idx", network.NetIdx, "app_idx", e.cfg.AppIdx)
	default:
		return fmt.Errorf("reading app key: %w", err)
	}

	if e.cfg.ExposeKeys {
		e.exposeKeys()
	}
	return nil
}

// netIdx is the stored network's key index. The configured index only
// applies when the network is created.
func (e *Engine) netIdx() mesh.KeyIndex {
	if n, err := e.db.Network(); err == nil {
		return n.NetIdx
	}
	return e.cfg.NetIdx
}

func (e *Engine) exposeKeys() {
	if n, err := e.db.Network(); err == nil {
		e.logger.Warn("exposing network key", "net_idx", n.NetIdx, "net_key", n.NetKey.Hex())
	}
	if k, err := e.db.AppKey(e.cfg.AppIdx); err == nil {
		e.logger.Warn("exposing app key", "app_idx", k.AppIdx, "app_key", k.Key.Hex())
	}
}

// provisionSelf joins the local device to the network and makes sure it
// has a node record so the walker configures it.
func (e *Engine) provisionSelf(ctx context.Context) error {
	network, err := e.db.Network()
	if err != nil {
		return err
	}
	devKey, err := mesh.NewKey()
	if err != nil {
		return err
	}

	err = e.radio.ProvisionLocal(ctx, mesh.LocalProvisioning{
		NetIdx:  network.NetIdx,
		NetKey:  network.NetKey,
		IVIndex: network.IVIndex,
		Address: e.cfg.SelfAddress,
		DevKey:  devKey,
		UUID:    e.cfg.DeviceUUID,
	})
	switch {
	case errors.Is(err, mesh.ErrAlreadyProvisioned):
		e.logger.Info("local device already provisioned", "addr", e.cfg.SelfAddress)
	case err != nil:
		return fmt.Errorf("provisioning local device: %w", err)
	default:
		e.logger.Info("local device provisioned", "addr", e.cfg.SelfAddress)
	}

	if _, err := e.db.Node(e.cfg.SelfAddress); errors.Is(err, cdb.ErrNodeNotFound) {
		err := e.db.AddNode(ctx, &cdb.Node{
			Address:     e.cfg.SelfAddress,
			UUID:        e.cfg.DeviceUUID,
			NetIdx:      network.NetIdx,
			NumElements: 1,
		})
		if err != nil {
			return fmt.Errorf("recording local node: %w", err)
		}
	}
	return nil
}
