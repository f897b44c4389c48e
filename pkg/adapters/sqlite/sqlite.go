// Package sqlite provides the SQLite storage backend. All entities share one
// entity_properties table keyed by (entity, namespace, name), with
// JSON-encoded values.
//
// The backend is persistent and concurrency-safe: Store runs inside one SQL
// transaction and SetAtomic holds its transaction across the
// read-compute-write. Transactions begin with an immediate write lock, so
// concurrent writers on separate handles to the same file queue on the busy
// timeout instead of losing updates or failing with SQLITE_BUSY.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/cascadekit/cascade/pkg/core"
)

// Open opens (or creates) the database at path and runs the schema
// migration. Use ":memory:" for an ephemeral database.
//
// Every transaction starts as BEGIN IMMEDIATE, claiming the write lock up
// front; a writer that finds the file locked by another handle waits up to
// the busy timeout rather than failing mid-transaction.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection per handle keeps pool members from contending with
	// each other for the write lock.
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	query := `
    CREATE TABLE IF NOT EXISTS entity_properties (
        entity    TEXT NOT NULL,
        namespace TEXT NOT NULL,
        name      TEXT NOT NULL,
        value     JSON NOT NULL,
        PRIMARY KEY (entity, namespace, name)
    );`
	if _, err := db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("migrate entity_properties: %w", err)
	}
	return nil
}

// ListEntities returns the names of all entities with stored properties.
func ListEntities(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT entity FROM entity_properties ORDER BY entity`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Factory returns the core.StorageFactory binding entities to one database.
func Factory(db *sql.DB) core.StorageFactory {
	return func(entityName string) (core.Storage, error) {
		if entityName == "" {
			return nil, errors.New("sqlite storage: empty entity name")
		}
		return &Storage{db: db, name: entityName}, nil
	}
}

// Storage is the SQLite-backed core.Storage for one entity.
type Storage struct {
	db   *sql.DB
	name string
}

var _ core.Storage = (*Storage)(nil)

func encode(v core.Value) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode property value: %w", err)
	}
	return string(raw), nil
}

func decode(raw string) (core.Value, error) {
	var v core.Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode property value: %w", err)
	}
	return v, nil
}

func (s *Storage) Load(ctx context.Context) (map[string]core.Value, map[string]core.Value, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT namespace, name, value FROM entity_properties WHERE entity = ?`, s.name)
	if err != nil {
		return nil, nil, fmt.Errorf("load entity %q: %w", s.name, err)
	}
	defer func() { _ = rows.Close() }()

	props := map[string]core.Value{}
	ext := map[string]core.Value{}
	for rows.Next() {
		var ns, name, raw string
		if err := rows.Scan(&ns, &name, &raw); err != nil {
			return nil, nil, err
		}
		v, err := decode(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("property %q: %w", name, err)
		}
		if core.Namespace(ns) == core.NamespaceExtended {
			ext[name] = v
		} else {
			props[name] = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return props, ext, nil
}

const upsertQuery = `
    INSERT INTO entity_properties (entity, namespace, name, value)
    VALUES (?, ?, ?, ?)
    ON CONFLICT (entity, namespace, name) DO UPDATE SET value = excluded.value`

func (s *Storage) Store(ctx context.Context, batch core.Batch) error {
	if batch.Empty() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin store batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range append(append([]core.Property{}, batch.Inserts...), batch.Updates...) {
		raw, err := encode(p.Value)
		if err != nil {
			return fmt.Errorf("property %q: %w", p.Name, err)
		}
		if _, err := tx.ExecContext(ctx, upsertQuery, s.name, string(p.Namespace), p.Name, raw); err != nil {
			return fmt.Errorf("upsert %q: %w", p.Name, err)
		}
	}
	for _, p := range batch.Deletes {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM entity_properties WHERE entity = ? AND namespace = ? AND name = ?`,
			s.name, string(p.Namespace), p.Name); err != nil {
			return fmt.Errorf("delete %q: %w", p.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit store batch: %w", err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, name string, ns core.Namespace) (core.Value, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM entity_properties WHERE entity = ? AND namespace = ? AND name = ?`,
		s.name, string(ns), name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.PropertyNotFoundError{Entity: s.name, Property: name, Namespace: ns}
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", name, err)
	}
	return decode(raw)
}

func (s *Storage) Set(ctx context.Context, prop core.Property) (core.Value, error) {
	raw, err := encode(prop.Value)
	if err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin set: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	old, err := readCurrent(ctx, tx, s.name, prop.Name, prop.Namespace)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, upsertQuery, s.name, string(prop.Namespace), prop.Name, raw); err != nil {
		return nil, fmt.Errorf("upsert %q: %w", prop.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit set: %w", err)
	}
	return old, nil
}

func (s *Storage) SetAtomic(ctx context.Context, name string, fn core.ComputeFn, ns core.Namespace) (core.Value, core.Value, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin set atomic: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	old, err := readCurrent(ctx, tx, s.name, name, ns)
	if err != nil {
		return nil, nil, err
	}
	newValue := fn(old)
	raw, err := encode(newValue)
	if err != nil {
		return nil, nil, err
	}
	if _, err := tx.ExecContext(ctx, upsertQuery, s.name, string(ns), name, raw); err != nil {
		return nil, nil, fmt.Errorf("upsert %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit set atomic: %w", err)
	}
	return newValue, old, nil
}

// readCurrent reads a property inside a transaction; absence is (nil, nil).
func readCurrent(ctx context.Context, tx *sql.Tx, entity, name string, ns core.Namespace) (core.Value, error) {
	var raw string
	err := tx.QueryRowContext(ctx,
		`SELECT value FROM entity_properties WHERE entity = ? AND namespace = ? AND name = ?`,
		entity, string(ns), name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", name, err)
	}
	return decode(raw)
}

func (s *Storage) Delete(ctx context.Context, name string, ns core.Namespace) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entity_properties WHERE entity = ? AND namespace = ? AND name = ?`,
		s.name, string(ns), name)
	if err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &core.PropertyNotFoundError{Entity: s.name, Property: name, Namespace: ns}
	}
	return nil
}

func (s *Storage) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM entity_properties WHERE entity = ?`, s.name); err != nil {
		return fmt.Errorf("flush entity %q: %w", s.name, err)
	}
	return nil
}

func (s *Storage) IsPersistent() bool      { return true }
func (s *Storage) IsConcurrencySafe() bool { return true }
