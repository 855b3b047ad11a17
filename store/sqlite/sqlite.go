/*
Package sqlite provides a SQLite-backed implementation of the store backend.

PURPOSE:
  Implements hstore.Backend (and the hstore.Ranger pushdown capability)
  using SQLite. The hierarchical tree is flattened into one table keyed
  by path; a document is one row, a collection is every row under a
  path prefix.

INTERFACES IMPLEMENTED:
  hstore.Backend: get/set/merge/delete/subscribe
  hstore.Ranger:  single-field equality/range pushdown via json_extract

KEY TABLE:
  nodes(path TEXT PRIMARY KEY, value TEXT NOT NULL)
    value is the document JSON. Descendant rows under a document path are
    replaced wholesale on Set - a document owns its subtree.

PUSHDOWN:
  QueryRange orders by json_extract(value, '$.<field>') ascending and
  applies equality/range bounds in SQL. Anything beyond a single field
  (multi-field filters, substring search) is the query engine's job.

CONCURRENCY:
  WAL mode for reader/writer concurrency. Merge is a read-modify-write
  inside a database transaction, but there is NO cross-call version
  check: two clients racing on one document are last-writer-wins.

SUBSCRIPTIONS:
  Change notifications are in-process only, delivered through the shared
  hstore notifier hub after each successful write.

USAGE:
  backend, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer backend.Close()
  client, err := hstore.NewDefault(backend)

SEE ALSO:
  - hstore/types.go: Backend contract
  - hstore/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/keel/invoice-engine/hstore"
)

// Store implements hstore.Backend using SQLite.
type Store struct {
	db       *sql.DB
	notifier *hstore.Notifier
}

// New creates a SQLite store at dbPath. Use ":memory:" for an in-memory
// database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, notifier: hstore.NewNotifier()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close cancels subscriptions and closes the database.
func (s *Store) Close() error {
	s.notifier.Close()
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		path  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BACKEND
// =============================================================================

func (s *Store) Get(ctx context.Context, path string) (hstore.Value, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM nodes WHERE path = ?`, path).Scan(&raw)
	switch {
	case err == nil:
		value, derr := decode(raw)
		if derr != nil {
			return nil, false, derr
		}
		return value, true, nil
	case err != sql.ErrNoRows:
		return nil, false, transport(err)
	}

	// No exact row: materialize the subtree under path, one nested map
	// per descendant document.
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, value FROM nodes WHERE path LIKE ? ORDER BY path`, path+"/%")
	if err != nil {
		return nil, false, transport(err)
	}
	defer rows.Close()

	tree := make(hstore.Value)
	found := false
	for rows.Next() {
		var childPath, childRaw string
		if err := rows.Scan(&childPath, &childRaw); err != nil {
			return nil, false, transport(err)
		}
		value, derr := decode(childRaw)
		if derr != nil {
			return nil, false, derr
		}
		insert(tree, strings.Split(childPath[len(path)+1:], "/"), value)
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, false, transport(err)
	}
	if !found {
		return nil, false, nil
	}
	return tree, true, nil
}

func (s *Store) Set(ctx context.Context, path string, value hstore.Value) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return transport(err)
	}
	defer tx.Rollback()

	// A document owns its subtree: replacing the node drops descendants.
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE path LIKE ?`, path+"/%"); err != nil {
		return transport(err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO nodes(path, value) VALUES(?, ?)
		 ON CONFLICT(path) DO UPDATE SET value = excluded.value`, path, string(raw)); err != nil {
		return transport(err)
	}
	if err := tx.Commit(); err != nil {
		return transport(err)
	}

	s.publish(path)
	return nil
}

func (s *Store) Merge(ctx context.Context, path string, value hstore.Value) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return transport(err)
	}
	defer tx.Rollback()

	current := make(hstore.Value)
	var raw string
	err = tx.QueryRowContext(ctx, `SELECT value FROM nodes WHERE path = ?`, path).Scan(&raw)
	switch {
	case err == nil:
		if current, err = decode(raw); err != nil {
			return err
		}
	case err != sql.ErrNoRows:
		return transport(err)
	}

	for k, v := range value {
		current[k] = v
	}
	merged, err := json.Marshal(current)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO nodes(path, value) VALUES(?, ?)
		 ON CONFLICT(path) DO UPDATE SET value = excluded.value`, path, string(merged)); err != nil {
		return transport(err)
	}
	if err := tx.Commit(); err != nil {
		return transport(err)
	}

	s.publish(path)
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM nodes WHERE path = ? OR path LIKE ?`, path, path+"/%")
	if err != nil {
		return transport(err)
	}
	s.publish(path)
	return nil
}

func (s *Store) Subscribe(path string, fn func(hstore.Snapshot)) (cancel func()) {
	return s.notifier.Subscribe(path, fn)
}

func (s *Store) publish(changedPath string) {
	s.notifier.Publish(changedPath, func(watched string) hstore.Snapshot {
		value, exists, _ := s.Get(context.Background(), watched)
		return hstore.Snapshot{Path: watched, Value: value, Exists: exists}
	})
}

// =============================================================================
// RANGER - Single-field pushdown
// =============================================================================

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// QueryRange returns the direct children of collectionPath matching q,
// ordered ascending by the OrderBy field (or by key when OrderBy is
// empty, which approximates insertion order for pushed ids).
func (s *Store) QueryRange(ctx context.Context, collectionPath string, q hstore.RangeQuery) ([]hstore.KeyedValue, error) {
	var (
		where = []string{`path LIKE ?`, `path NOT LIKE ?`}
		args  = []any{collectionPath + "/%", collectionPath + "/%/%"}
		order = `path ASC`
	)

	if q.OrderBy != "" {
		if !fieldPattern.MatchString(q.OrderBy) {
			return nil, fmt.Errorf("invalid order field %q", q.OrderBy)
		}
		field := fmt.Sprintf(`json_extract(value, '$.%s')`, q.OrderBy)
		order = field + ` ASC`
		if q.EqualTo != nil {
			where = append(where, field+` = ?`)
			args = append(args, q.EqualTo)
		}
		if q.StartAt != nil {
			where = append(where, field+` >= ?`)
			args = append(args, q.StartAt)
		}
		if q.EndAt != nil {
			where = append(where, field+` <= ?`)
			args = append(args, q.EndAt)
		}
	}

	stmt := `SELECT path, value FROM nodes WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + order
	if q.Limit > 0 {
		stmt += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, transport(err)
	}
	defer rows.Close()

	var out []hstore.KeyedValue
	for rows.Next() {
		var path, raw string
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, transport(err)
		}
		value, derr := decode(raw)
		if derr != nil {
			return nil, derr
		}
		out = append(out, hstore.KeyedValue{
			Key:   path[len(collectionPath)+1:],
			Value: value,
		})
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func decode(raw string) (hstore.Value, error) {
	var value hstore.Value
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("corrupt node value: %w", err)
	}
	return value, nil
}

// insert places value into tree at the nested position given by segments.
func insert(tree hstore.Value, segments []string, value hstore.Value) {
	node := tree
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = map[string]any(value)
}

// transport classifies database-level failures as transport errors so
// callers can decide whether to retry.
func transport(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", hstore.ErrUnreachable, err)
}
