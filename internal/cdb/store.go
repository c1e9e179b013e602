package cdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// Store persists the configuration database.
// This abstraction allows the engine to be tested without SQLite.
type Store interface {
	// LoadNetwork returns the stored network, or ErrNoNetwork.
	LoadNetwork(ctx context.Context) (*Network, error)

	// SaveNetwork writes the network context.
	SaveNetwork(ctx context.Context, n *Network) error

	// ListAppKeys returns every stored application key.
	ListAppKeys(ctx context.Context) ([]AppKey, error)

	// SaveAppKey inserts or replaces an application key.
	SaveAppKey(ctx context.Context, k AppKey) error

	// ListNodes returns every node ordered by address.
	ListNodes(ctx context.Context) ([]*Node, error)

	// SaveNode inserts or updates a node record.
	SaveNode(ctx context.Context, n *Node) error
}

// SQLiteStore implements Store on the tables created by the
// network and nodes migrations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store over an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// LoadNetwork returns the first stored network context.
func (s *SQLiteStore) LoadNetwork(ctx context.Context) (*Network, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT net_idx, net_key, iv_index, created_at
		FROM network
		ORDER BY net_idx
		LIMIT 1`)

	var (
		n         Network
		key       []byte
		createdAt string
	)
	if err := row.Scan(&n.NetIdx, &key, &n.IVIndex, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoNetwork
		}
		return nil, fmt.Errorf("querying network: %w", err)
	}

	var err error
	if n.NetKey, err = mesh.KeyFromBytes(key); err != nil {
		return nil, fmt.Errorf("decoding network key: %w", err)
	}
	n.CreatedAt = parseTime(createdAt)
	return &n, nil
}

// SaveNetwork writes the network context.
func (s *SQLiteStore) SaveNetwork(ctx context.Context, n *Network) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO network (net_idx, net_key, iv_index, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(net_idx) DO UPDATE SET iv_index = excluded.iv_index`,
		n.NetIdx, n.NetKey[:], n.IVIndex, formatTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving network: %w", err)
	}
	return nil
}

// ListAppKeys returns every stored application key.
func (s *SQLiteStore) ListAppKeys(ctx context.Context) ([]AppKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT app_idx, net_idx, app_key, created_at
		FROM app_keys
		ORDER BY app_idx`)
	if err != nil {
		return nil, fmt.Errorf("querying app keys: %w", err)
	}
	defer rows.Close()

	var keys []AppKey
	for rows.Next() {
		var (
			k         AppKey
			raw       []byte
			createdAt string
		)
		if err := rows.Scan(&k.AppIdx, &k.NetIdx, &raw, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning app key: %w", err)
		}
		if k.Key, err = mesh.KeyFromBytes(raw); err != nil {
			return nil, fmt.Errorf("decoding app key %d: %w", k.AppIdx, err)
		}
		k.CreatedAt = parseTime(createdAt)
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating app keys: %w", err)
	}
	return keys, nil
}

// SaveAppKey inserts or replaces an application key.
func (s *SQLiteStore) SaveAppKey(ctx context.Context, k AppKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_keys (app_idx, net_idx, app_key, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(app_idx) DO UPDATE SET net_idx = excluded.net_idx, app_key = excluded.app_key`,
		k.AppIdx, k.NetIdx, k.Key[:], formatTime(k.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving app key: %w", err)
	}
	return nil
}

// ListNodes returns every node ordered by address.
func (s *SQLiteStore) ListNodes(ctx context.Context) ([]*Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, uuid, net_idx, num_elements, configured,
			composition, added_at, configured_at
		FROM nodes
		ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}
	return nodes, nil
}

// SaveNode inserts or updates a node record.
// The schema refuses to clear a configured flag.
func (s *SQLiteStore) SaveNode(ctx context.Context, n *Node) error {
	var comp sql.NullString
	if n.Composition != nil {
		b, err := json.Marshal(n.Composition)
		if err != nil {
			return fmt.Errorf("encoding composition: %w", err)
		}
		comp = sql.NullString{String: string(b), Valid: true}
	}

	var configuredAt sql.NullString
	if n.ConfiguredAt != nil {
		configuredAt = sql.NullString{String: formatTime(*n.ConfiguredAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes (address, uuid, net_idx, num_elements, configured,
			composition, added_at, configured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			uuid = excluded.uuid,
			net_idx = excluded.net_idx,
			num_elements = excluded.num_elements,
			configured = excluded.configured,
			composition = excluded.composition,
			configured_at = excluded.configured_at`,
		n.Address, n.UUID.String(), n.NetIdx, n.NumElements, boolToInt(n.Configured),
		comp, formatTime(n.AddedAt), configuredAt,
	)
	if err != nil {
		return fmt.Errorf("saving node %s: %w", n.Address, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var (
		n            Node
		rawUUID      string
		configured   int
		comp         sql.NullString
		addedAt      string
		configuredAt sql.NullString
	)
	if err := row.Scan(&n.Address, &rawUUID, &n.NetIdx, &n.NumElements, &configured,
		&comp, &addedAt, &configuredAt); err != nil {
		return nil, fmt.Errorf("scanning node: %w", err)
	}

	id, err := uuid.Parse(rawUUID)
	if err != nil {
		return nil, fmt.Errorf("node %s: parsing uuid: %w", n.Address, err)
	}
	n.UUID = id
	n.Configured = configured != 0
	n.AddedAt = parseTime(addedAt)

	if configuredAt.Valid {
		t := parseTime(configuredAt.String)
		n.ConfiguredAt = &t
	}
	if comp.Valid {
		var c mesh.Composition
		if err := json.Unmarshal([]byte(comp.String), &c); err != nil {
			return nil, fmt.Errorf("node %s: decoding composition: %w", n.Address, err)
		}
		n.Composition = &c
	}
	return &n, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s) //nolint:errcheck // Format is controlled
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
