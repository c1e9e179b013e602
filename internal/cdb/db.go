package cdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// Logger defines the logging interface used by the DB.
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

// DB is the configuration database: the network context, application
// keys and node records, cached in memory and written through to a Store.
//
// The provisioning worker is the only writer. Other goroutines may read
// through Snapshot, Node and Stats; they always receive copies.
type DB struct {
	store Store
	self  mesh.Address

	mu      sync.RWMutex
	network *Network
	appKeys map[mesh.KeyIndex]AppKey
	nodes   map[mesh.Address]*Node

	logger Logger
	now    func() time.Time
}

// New creates an empty database backed by store. self is the unicast
// address of the local device; its node record is configured locally.
func New(store Store, self mesh.Address) *DB {
	return &DB{
		store:   store,
		self:    self,
		appKeys: make(map[mesh.KeyIndex]AppKey),
		nodes:   make(map[mesh.Address]*Node),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the database.
func (db *DB) SetLogger(logger Logger) {
	db.logger = logger
}

// Load replaces the cache with the contents of the store.
// A store without a network is not an error.
func (db *DB) Load(ctx context.Context) error {
	network, err := db.store.LoadNetwork(ctx)
	if err != nil && !errors.Is(err, ErrNoNetwork) {
		return fmt.Errorf("loading network: %w", err)
	}
	keys, err := db.store.ListAppKeys(ctx)
	if err != nil {
		return fmt.Errorf("loading app keys: %w", err)
	}
	nodes, err := db.store.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("loading nodes: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.network = network
	db.appKeys = make(map[mesh.KeyIndex]AppKey, len(keys))
	for _, k := range keys {
		db.appKeys[k.AppIdx] = k
	}
	db.nodes = make(map[mesh.Address]*Node, len(nodes))
	for _, n := range nodes {
		db.nodes[n.Address] = n.DeepCopy()
	}

	db.logger.Info("configuration database loaded",
		"network", network != nil,
		"app_keys", len(keys),
		"nodes", len(nodes),
	)
	return nil
}

// Create establishes the network context with netKey.
//
// If a network already exists it returns ErrAlreadyExists and leaves the
// stored key untouched.
func (db *DB) Create(ctx context.Context, netIdx mesh.KeyIndex, netKey mesh.Key) error {
	if err := netIdx.Validate(); err != nil {
		return err
	}

	db.mu.RLock()
	exists := db.network != nil
	db.mu.RUnlock()
	if exists {
		return ErrAlreadyExists
	}

	n := &Network{NetIdx: netIdx, NetKey: netKey, CreatedAt: db.now()}
	if err := db.store.SaveNetwork(ctx, n); err != nil {
		return err
	}

	db.mu.Lock()
	db.network = n
	db.mu.Unlock()
	return nil
}

// Network returns a copy of the network context.
func (db *DB) Network() (Network, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.network == nil {
		return Network{}, ErrNoNetwork
	}
	return *db.network, nil
}

// AddAppKey stores an application key bound to netIdx.
func (db *DB) AddAppKey(ctx context.Context, netIdx, appIdx mesh.KeyIndex, key mesh.Key) error {
	if err := appIdx.Validate(); err != nil {
		return err
	}

	db.mu.RLock()
	network := db.network
	_, exists := db.appKeys[appIdx]
	db.mu.RUnlock()

	if network == nil || network.NetIdx != netIdx {
		return fmt.Errorf("%w: net_idx %d", ErrNoNetwork, netIdx)
	}
	if exists {
		return ErrAppKeyExists
	}

	k := AppKey{AppIdx: appIdx, NetIdx: netIdx, Key: key, CreatedAt: db.now()}
	if err := db.store.SaveAppKey(ctx, k); err != nil {
		return err
	}

	db.mu.Lock()
	db.appKeys[appIdx] = k
	db.mu.Unlock()
	return nil
}

// AppKey returns the application key stored at appIdx.
func (db *DB) AppKey(appIdx mesh.KeyIndex) (AppKey, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	k, ok := db.appKeys[appIdx]
	if !ok {
		return AppKey{}, ErrAppKeyNotFound
	}
	return k, nil
}

// AddNode records a newly admitted node. Its element range must not
// overlap any existing node.
func (db *DB) AddNode(ctx context.Context, n *Node) error {
	if err := n.validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidNode, n.Address)
	}

	node := n.DeepCopy()
	if node.NumElements == 0 {
		node.NumElements = 1
	}
	if node.AddedAt.IsZero() {
		node.AddedAt = db.now()
	}

	db.mu.RLock()
	for _, existing := range db.nodes {
		if existing.Owns(node.Address) || node.Owns(existing.Address) {
			db.mu.RUnlock()
			return fmt.Errorf("%w: %s overlaps node %s", ErrAddressInUse, node.Address, existing.Address)
		}
	}
	db.mu.RUnlock()

	if err := db.store.SaveNode(ctx, node); err != nil {
		return err
	}

	db.mu.Lock()
	db.nodes[node.Address] = node
	db.mu.Unlock()
	return nil
}

// Node returns a copy of the node whose primary address is addr.
func (db *DB) Node(addr mesh.Address) (*Node, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	n, ok := db.nodes[addr]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return n.DeepCopy(), nil
}

// ForEach visits every node matching match, in address order, until the
// visitor returns IterStop. A nil match visits all nodes.
//
// The visitor receives copies taken before iteration starts, so it may
// call MarkConfigured and other writers without deadlocking.
func (db *DB) ForEach(match func(*Node) bool, visit func(*Node) IterAction) {
	for _, n := range db.sortedCopies() {
		if match != nil && !match(n) {
			continue
		}
		if visit(n) == IterStop {
			return
		}
	}
}

// MarkConfigured sets the node's configured flag and persists it.
// The flag never reverts; marking a configured node again is a no-op.
func (db *DB) MarkConfigured(ctx context.Context, addr mesh.Address) error {
	db.mu.RLock()
	n, ok := db.nodes[addr]
	var updated *Node
	if ok && !n.Configured {
		updated = n.DeepCopy()
	}
	db.mu.RUnlock()

	if !ok {
		return ErrNodeNotFound
	}
	if updated == nil {
		return nil
	}

	now := db.now()
	updated.Configured = true
	updated.ConfiguredAt = &now
	if err := db.store.SaveNode(ctx, updated); err != nil {
		return err
	}

	db.mu.Lock()
	db.nodes[addr] = updated
	db.mu.Unlock()
	return nil
}

// SetComposition stores the composition fetched from a node.
//
// The node's element count follows the composition. Growing it into
// another node's unicast range fails with ErrAddressInUse and leaves the
// record unchanged.
func (db *DB) SetComposition(ctx context.Context, addr mesh.Address, comp *mesh.Composition) error {
	db.mu.RLock()
	n, ok := db.nodes[addr]
	var updated *Node
	if ok {
		updated = n.DeepCopy()
		updated.Composition = comp
		if comp != nil && len(comp.Elements) > 0 {
			updated.NumElements = uint8(len(comp.Elements))
		}
		if updated.NumElements > n.NumElements {
			for _, other := range db.nodes {
				if other.Address != addr && updated.Owns(other.Address) {
					db.mu.RUnlock()
					return fmt.Errorf("%w: %s with %d elements overlaps node %s",
						ErrAddressInUse, addr, updated.NumElements, other.Address)
				}
			}
		}
	}
	db.mu.RUnlock()

	if !ok {
		return ErrNodeNotFound
	}

	updated = updated.DeepCopy()
	if err := db.store.SaveNode(ctx, updated); err != nil {
		return err
	}

	db.mu.Lock()
	db.nodes[addr] = updated
	db.mu.Unlock()
	return nil
}

// IsSelf reports whether addr is the local device.
func (db *DB) IsSelf(addr mesh.Address) bool {
	return addr == db.self
}

// Self returns the local device's unicast address.
func (db *DB) Self() mesh.Address {
	return db.self
}

// NextAddress returns the lowest primary address above the local device
// with room for numElements consecutive unicast addresses.
func (db *DB) NextAddress(numElements int) (mesh.Address, error) {
	if numElements < 1 {
		numElements = 1
	}

	nodes := db.sortedCopies()
	candidate := int(db.self) + 1
	for _, n := range nodes {
		if int(n.LastAddress()) < candidate {
			continue
		}
		if candidate+numElements-1 < int(n.Address) {
			break
		}
		candidate = int(n.LastAddress()) + 1
	}

	if candidate+numElements-1 > int(mesh.AddrUnicastMax) {
		return mesh.AddrUnassigned, ErrAddressSpaceExhausted
	}
	return mesh.Address(candidate), nil
}

// Snapshot returns copies of every node in address order.
func (db *DB) Snapshot() []*Node {
	return db.sortedCopies()
}

// Stats summarises the database contents.
func (db *DB) Stats() Stats {
	db.mu.RLock()
	defer db.mu.RUnlock()

	s := Stats{
		HasNetwork: db.network != nil,
		AppKeys:    len(db.appKeys),
		Nodes:      len(db.nodes),
	}
	for _, n := range db.nodes {
		if n.Configured {
			s.Configured++
		} else {
			s.Unconfigured++
		}
	}
	return s
}

func (db *DB) sortedCopies() []*Node {
	db.mu.RLock()
	out := make([]*Node, 0, len(db.nodes))
	for _, n := range db.nodes {
		out = append(out, n.DeepCopy())
	}
	db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
