package materialize

import (
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/mattn/go-sqlite3"

	"github.com/skiffdb/skiff/store"
	"github.com/skiffdb/skiff/value"
)

// tableNamePattern restricts mirrored table names to identifiers that are
// safe to interpolate into DDL.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Mirror maintains read-only SQLite copies of workspace tables.
type Mirror struct {
	db      *sql.DB
	cancels []func()
}

// Open creates or opens the mirror database at path. Applies the required
// pragmas; idempotent.
func Open(path string) (*Mirror, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to mirror database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY on concurrent observer callbacks.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return &Mirror{db: db}, nil
}

// Close unsubscribes all observers and closes the database.
func (m *Mirror) Close() error {
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// DB returns the underlying sql.DB for queries. Consumers must treat the
// mirror as read-only; writes belong to the workspace accessors.
func (m *Mirror) DB() *sql.DB {
	return m.db
}

// MirrorTable starts mirroring one table: a full sync of the currently
// valid rows, then incremental updates per change notification. Returns
// after the initial sync completes.
func (m *Mirror) MirrorTable(t *store.Table) error {
	name := t.Definition().Name()
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("mirror table %q: name is not a safe SQL identifier", name)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id  TEXT PRIMARY KEY,
		row TEXT NOT NULL
	)`, name)
	if _, err := m.db.Exec(ddl); err != nil {
		return fmt.Errorf("mirror table %q: %w", name, err)
	}

	if err := m.fullSync(name, t); err != nil {
		return err
	}

	cancel := t.Observe(func(ids []string) {
		// Re-get affected ids; the notification carries no diffs.
		for _, id := range ids {
			if err := m.applyRow(name, t.Get(id)); err != nil {
				// The mirror is advisory; a failed row is retried on the
				// next notification touching the id.
				continue
			}
		}
	})
	m.cancels = append(m.cancels, cancel)
	return nil
}

// fullSync replaces the mirrored contents with the table's current valid
// rows in one SQLite transaction.
func (m *Mirror) fullSync(name string, t *store.Table) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("mirror table %q: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %q`, name)); err != nil {
		return fmt.Errorf("mirror table %q: %w", name, err)
	}
	for _, row := range t.GetAllValid() {
		id, _ := row.ID()
		data, err := value.MarshalCanonical(row)
		if err != nil {
			return fmt.Errorf("mirror table %q row %q: %w", name, id, err)
		}
		if _, err := tx.Exec(
			fmt.Sprintf(`INSERT INTO %q (id, row) VALUES (?, ?)`, name),
			id, string(data),
		); err != nil {
			return fmt.Errorf("mirror table %q row %q: %w", name, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mirror table %q: %w", name, err)
	}
	return nil
}

// applyRow upserts a valid row and deletes anything else.
func (m *Mirror) applyRow(name string, res store.GetResult) error {
	if res.Status != store.StatusValid {
		_, err := m.db.Exec(fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, name), res.ID)
		return err
	}

	data, err := value.MarshalCanonical(res.Row)
	if err != nil {
		return err
	}
	_, err = m.db.Exec(
		fmt.Sprintf(`INSERT INTO %q (id, row) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET row = excluded.row`, name),
		res.ID, string(data),
	)
	return err
}

// Rows returns the mirrored (id, canonical JSON) pairs of a table in id
// order. Convenience for consumers and tests.
func (m *Mirror) Rows(name string) (map[string]string, error) {
	if !tableNamePattern.MatchString(name) {
		return nil, fmt.Errorf("mirror rows %q: name is not a safe SQL identifier", name)
	}
	rows, err := m.db.Query(fmt.Sprintf(`SELECT id, row FROM %q ORDER BY id`, name))
	if err != nil {
		return nil, fmt.Errorf("mirror rows %q: %w", name, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("mirror rows %q: %w", name, err)
		}
		out[id] = data
	}
	return out, rows.Err()
}
