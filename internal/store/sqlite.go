// ABOUTME: SQLite implementation of the Store interface
// ABOUTME: Opens the database, creates the schema and applies column migrations

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverModernC = "sqlite"  // modernc.org/sqlite, pure Go
	DriverCGO     = "sqlite3" // github.com/mattn/go-sqlite3, needs cgo
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path using the pure Go driver.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return Open(DriverModernC, path, nil)
}

// Open creates a SQLite store with an explicit driver name.
// An empty driver selects DriverModernC. Pass nil logger for default.
func Open(driver, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if driver == "" {
		driver = DriverModernC
	}
	if driver != DriverModernC && driver != DriverCGO {
		return nil, fmt.Errorf("unknown sqlite driver %q", driver)
	}

	inMemory := path == ":memory:"
	if !inMemory {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	if !inMemory {
		// Enable WAL mode for better concurrent performance
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if err := s.createIndexes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS pushes (
			push_id     TEXT PRIMARY KEY,
			alert       TEXT,
			payload     BLOB NOT NULL,
			-- unix seconds plus the nanosecond offset within that second,
			-- so every time.Time round-trips and orders correctly
			received_at    INTEGER NOT NULL,
			received_nanos INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS attributes (
			scope      TEXT NOT NULL,
			name       TEXT NOT NULL,
			value_json TEXT NOT NULL,
			updated_at INTEGER NOT NULL,

			PRIMARY KEY (scope, name),
			CHECK (scope IN ('channel', 'named_user'))
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table    string
		column   string
		apply    string
		backfill string
	}{
		{
			// Early databases stored only the push id, alert and payload.
			table:  "pushes",
			column: "received_at",
			apply:  `ALTER TABLE pushes ADD COLUMN received_at INTEGER NOT NULL DEFAULT 0`,
		},
		{
			// received_at used to hold unix nanoseconds. Split it into floored
			// seconds and a non-negative nanosecond offset.
			table:    "pushes",
			column:   "received_nanos",
			apply:    `ALTER TABLE pushes ADD COLUMN received_nanos INTEGER NOT NULL DEFAULT 0`,
			backfill: `UPDATE pushes SET
				received_nanos = ((received_at % 1000000000) + 1000000000) % 1000000000,
				received_at = (received_at - ((received_at % 1000000000) + 1000000000) % 1000000000) / 1000000000`,
		},
		{
			table:  "settings",
			column: "updated_at",
			apply:  `ALTER TABLE settings ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		if m.backfill != "" {
			if _, err := s.db.Exec(m.backfill); err != nil {
				return fmt.Errorf("backfilling %s.%s: %w", m.table, m.column, err)
			}
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// createIndexes runs after migrations so indexed columns exist on old databases.
func (s *SQLiteStore) createIndexes() error {
	_, err := s.db.Exec(`
		DROP INDEX IF EXISTS idx_pushes_received_at;
		CREATE INDEX IF NOT EXISTS idx_pushes_received ON pushes(received_at, received_nanos);
	`)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// nullString returns nil for nil pointers, otherwise the string
func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
