// Package session persists the global bindings of a REPL between runs.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"

	_ "modernc.org/sqlite"

	"eva/interpreter-go/pkg/runtime"
)

const schema = `CREATE TABLE IF NOT EXISTS bindings (
	name  TEXT PRIMARY KEY,
	kind  TEXT NOT NULL,
	value TEXT NOT NULL
)`

// Store is a sqlite-backed record of one global environment.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the session database at path. ":memory:" keeps
// the record in process.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("session: empty path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database location the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Save replaces the stored record with the bindings held directly in env.
func (s *Store) Save(ctx context.Context, env *runtime.Environment) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("session: store is closed")
	}
	if env == nil {
		return fmt.Errorf("session: nil environment")
	}
	snapshot := env.Snapshot()
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bindings`); err != nil {
		return fmt.Errorf("session: clear bindings: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO bindings (name, kind, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("session: prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, name := range names {
		kind, text := encodeValue(snapshot[name])
		if _, err := stmt.ExecContext(ctx, name, kind, text); err != nil {
			return fmt.Errorf("session: save %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: commit: %w", err)
	}
	return nil
}

// Restore defines every stored binding in env and reports how many were
// restored.
func (s *Store) Restore(ctx context.Context, env *runtime.Environment) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("session: store is closed")
	}
	if env == nil {
		return 0, fmt.Errorf("session: nil environment")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name, kind, value FROM bindings ORDER BY name`)
	if err != nil {
		return 0, fmt.Errorf("session: query bindings: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var name, kind, text string
		if err := rows.Scan(&name, &kind, &text); err != nil {
			return count, fmt.Errorf("session: scan binding: %w", err)
		}
		val, err := decodeValue(kind, text)
		if err != nil {
			return count, fmt.Errorf("session: binding %s: %w", name, err)
		}
		env.Define(name, val)
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("session: read bindings: %w", err)
	}
	return count, nil
}

func encodeValue(v runtime.Value) (string, string) {
	switch val := v.(type) {
	case runtime.NumberValue:
		return runtime.KindNumber.String(), strconv.FormatFloat(val.Val, 'g', -1, 64)
	case runtime.StringValue:
		return runtime.KindString.String(), val.Val
	case runtime.BoolValue:
		return runtime.KindBool.String(), strconv.FormatBool(val.Val)
	default:
		return runtime.KindNil.String(), ""
	}
}

func decodeValue(kindName, text string) (runtime.Value, error) {
	kind, ok := runtime.ParseKind(kindName)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kindName)
	}
	switch kind {
	case runtime.KindNumber:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", text, err)
		}
		return runtime.NumberValue{Val: f}, nil
	case runtime.KindString:
		return runtime.StringValue{Val: text}, nil
	case runtime.KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q: %w", text, err)
		}
		return runtime.BoolValue{Val: b}, nil
	default:
		return runtime.Nil, nil
	}
}
