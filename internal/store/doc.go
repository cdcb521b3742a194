// Package store provides persistent storage for debugkit using SQLite.
//
// # Architecture
//
// The package is interface driven:
//
//   - PushStore: received push notifications (insert-if-absent, lookup, list, age delete)
//   - SettingsStore: persisted key/value settings such as the push storage window
//   - AttributeStore: channel and named user attributes written by actions
//
// Store embeds all three. SQLiteStore and MockStore implement it.
//
// # Data Models
//
//   - PushRecord: one received push (ID, optional alert, raw JSON payload, receipt time)
//   - Attribute: a string or numeric value keyed by scope and name
//
// Push receipt times are stored as unix nanoseconds so ordering and cutoff
// comparisons happen in SQL without parsing.
//
// # SQLite Configuration
//
// Two drivers are supported:
//
//   - "sqlite" (modernc.org/sqlite): pure Go, the default
//   - "sqlite3" (github.com/mattn/go-sqlite3): requires cgo
//
// File databases run with:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// ":memory:" databases are pinned to a single connection.
//
// # Error Handling
//
// The store always returns errors; it never logs and swallows. ErrNotFound is
// returned by point lookups. Deciding which failures are fatal belongs to callers
// (see package retention).
//
// # Testing
//
// Use NewMockStore() for unit tests. MockStore.FailWith injects a persistence
// failure into every operation.
//
// Use NewSQLiteStore(filepath.Join(t.TempDir(), "test.db")) for integration tests.
package store
