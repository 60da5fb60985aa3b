// Package snapshot persists built graphs to a local sqlite cache so a
// previously loaded dataset can be reopened without re-reading its
// partitions. The cache is optional; the ingestion core works without it.
package snapshot

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alvmarrod/reperio/graph"
)

// Store is a sqlite-backed graph cache.
type Store struct {
	db *sql.DB
}

// Info describes one cached graph.
type Info struct {
	Name    string
	Kind    string
	Nodes   int
	Edges   int
	SavedAt time.Time
}

// NewStore opens or creates the cache database at dbPath and initializes the
// schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return store, nil
}

// initSchema creates tables if they don't exist
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS datasets (
		name TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		saved_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS nodes (
		dataset TEXT NOT NULL,
		key TEXT NOT NULL,
		attrs TEXT NOT NULL,
		PRIMARY KEY (dataset, key),
		FOREIGN KEY (dataset) REFERENCES datasets(name) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS edges (
		dataset TEXT NOT NULL,
		from_key TEXT NOT NULL,
		to_key TEXT NOT NULL,
		attrs TEXT NOT NULL,
		PRIMARY KEY (dataset, from_key, to_key),
		FOREIGN KEY (dataset) REFERENCES datasets(name) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_dataset ON nodes(dataset);
	CREATE INDEX IF NOT EXISTS idx_edges_dataset ON edges(dataset);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveGraph caches a graph under name, replacing any previous snapshot with
// that name.
func (s *Store) SaveGraph(name, kind string, g *graph.Graph) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM nodes WHERE dataset = ?",
		"DELETE FROM edges WHERE dataset = ?",
		"DELETE FROM datasets WHERE name = ?",
	} {
		if _, err := tx.Exec(stmt, name); err != nil {
			return fmt.Errorf("failed to clear previous snapshot: %w", err)
		}
	}

	if _, err := tx.Exec("INSERT INTO datasets (name, kind) VALUES (?, ?)", name, kind); err != nil {
		return fmt.Errorf("failed to insert dataset row: %w", err)
	}

	insertNode, err := tx.Prepare("INSERT INTO nodes (dataset, key, attrs) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer insertNode.Close()

	var saveErr error
	g.Nodes(func(n *graph.Node) bool {
		attrs, err := json.Marshal(n.Attributes)
		if err != nil {
			saveErr = fmt.Errorf("failed to encode attributes of node %s: %w", n.Key, err)
			return false
		}
		if _, err := insertNode.Exec(name, n.Key, string(attrs)); err != nil {
			saveErr = fmt.Errorf("failed to insert node %s: %w", n.Key, err)
			return false
		}
		return true
	})
	if saveErr != nil {
		return saveErr
	}

	insertEdge, err := tx.Prepare("INSERT INTO edges (dataset, from_key, to_key, attrs) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer insertEdge.Close()

	g.Edges(func(e *graph.Edge) bool {
		attrs, err := json.Marshal(e.Attributes)
		if err != nil {
			saveErr = fmt.Errorf("failed to encode attributes of edge %s -> %s: %w", e.From, e.To, err)
			return false
		}
		if _, err := insertEdge.Exec(name, e.From, e.To, string(attrs)); err != nil {
			saveErr = fmt.Errorf("failed to insert edge %s -> %s: %w", e.From, e.To, err)
			return false
		}
		return true
	})
	if saveErr != nil {
		return saveErr
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadGraph restores a cached graph by name, returning nil if no snapshot
// with that name exists. Numeric attribute values come back as float64, the
// way JSON decodes them.
func (s *Store) LoadGraph(name string) (*graph.Graph, error) {
	var kind string
	err := s.db.QueryRow("SELECT kind FROM datasets WHERE name = ?", name).Scan(&kind)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up snapshot: %w", err)
	}

	g := graph.New()

	rows, err := s.db.Query("SELECT key, attrs FROM nodes WHERE dataset = ?", name)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		var attrs graph.Attributes
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return nil, fmt.Errorf("failed to decode attributes of node %s: %w", key, err)
		}
		g.UpsertNode(key, attrs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	edgeRows, err := s.db.Query("SELECT from_key, to_key, attrs FROM edges WHERE dataset = ?", name)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var from, to, raw string
		if err := edgeRows.Scan(&from, &to, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		var attrs graph.Attributes
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return nil, fmt.Errorf("failed to decode attributes of edge %s -> %s: %w", from, to, err)
		}
		g.UpsertEdge(from, to, attrs)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}

	return g, nil
}

// ListGraphs describes all cached graphs.
func (s *Store) ListGraphs() ([]Info, error) {
	rows, err := s.db.Query(`
		SELECT d.name, d.kind, d.saved_at,
		       (SELECT COUNT(*) FROM nodes n WHERE n.dataset = d.name),
		       (SELECT COUNT(*) FROM edges e WHERE e.dataset = d.name)
		FROM datasets d
		ORDER BY d.name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.Name, &info.Kind, &info.SavedAt, &info.Nodes, &info.Edges); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot info: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return infos, nil
}

// Close closes the cache database.
func (s *Store) Close() error {
	return s.db.Close()
}
