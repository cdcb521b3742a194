// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers push persistence, ordering, age deletion, settings and attributes

package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("postgres", filepath.Join(t.TempDir(), "test.db"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sqlite driver")
}

func TestOpen_UsesGivenLogger(t *testing.T) {
	var info, quiet bytes.Buffer

	st, err := Open("", filepath.Join(t.TempDir(), "info.db"), slog.New(slog.NewTextHandler(&info, nil)))
	require.NoError(t, err)
	require.NoError(t, st.Close())
	assert.Contains(t, info.String(), "SQLite store initialized")
	assert.Contains(t, info.String(), "component=store")

	warnOnly := slog.New(slog.NewTextHandler(&quiet, &slog.HandlerOptions{Level: slog.LevelWarn}))
	st, err = Open("", filepath.Join(t.TempDir(), "quiet.db"), warnOnly)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	assert.Empty(t, quiet.String())
}

func TestOpen_InMemory(t *testing.T) {
	store, err := Open("", ":memory:", nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	inserted, err := store.InsertPush(ctx, newPush("mem-1", time.Now()))
	require.NoError(t, err)
	assert.True(t, inserted)

	exists, err := store.PushExists(ctx, "mem-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNewSQLiteStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	_, err = first.InsertPush(ctx, newPush("push-1", time.Now()))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// Schema creation and migrations must be idempotent
	second, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer second.Close()

	exists, err := second.PushExists(ctx, "push-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInsertAndGetPush(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	alert := "Hello from the push"
	received := time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.UTC)
	rec := &PushRecord{
		ID:         "push-abc",
		Alert:      &alert,
		Payload:    json.RawMessage(`{"aps":{"alert":"Hello from the push"},"^a":{"channel":{"set":{"tier":"gold"}}}}`),
		ReceivedAt: received,
	}

	inserted, err := store.InsertPush(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err := store.GetPush(ctx, "push-abc")
	require.NoError(t, err)
	assert.Equal(t, "push-abc", got.ID)
	require.NotNil(t, got.Alert)
	assert.Equal(t, alert, *got.Alert)
	assert.JSONEq(t, string(rec.Payload), string(got.Payload))
	assert.True(t, received.Equal(got.ReceivedAt), "received_at should round-trip with nanosecond precision")
}

func TestInsertPush_NilAlertAndPayload(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	_, err := store.InsertPush(ctx, &PushRecord{ID: "silent", ReceivedAt: time.Now()})
	require.NoError(t, err)

	got, err := store.GetPush(ctx, "silent")
	require.NoError(t, err)
	assert.Nil(t, got.Alert)
	assert.Equal(t, "", got.AlertText())
	assert.JSONEq(t, `{}`, string(got.Payload))
}

func TestInsertPush_EmptyID(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.InsertPush(context.Background(), &PushRecord{ReceivedAt: time.Now()})
	assert.Error(t, err)
}

func TestInsertPush_DuplicateIsNoop(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	first := newPush("dup", time.Now().Add(-time.Hour))
	first.Alert = strPtr("first")

	inserted, err := store.InsertPush(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	second := newPush("dup", time.Now())
	second.Alert = strPtr("second")
	inserted, err = store.InsertPush(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := store.CountPushes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// The original record is never mutated
	got, err := store.GetPush(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, "first", got.AlertText())
}

func TestInsertPush_ConcurrentDuplicates(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.InsertPush(ctx, newPush("race", time.Now()))
			if err != nil {
				t.Errorf("InsertPush: %v", err)
				return
			}
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
}

func TestGetPush_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetPush(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPushExists(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	exists, err := store.PushExists(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.InsertPush(ctx, newPush("p1", time.Now()))
	require.NoError(t, err)

	exists, err = store.PushExists(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestListPushes_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC()

	// Insert out of order
	for _, offset := range []int{3, 0, 4, 1, 2} {
		rec := newPush(fmt.Sprintf("push-%d", offset), base.Add(time.Duration(offset)*time.Minute))
		_, err := store.InsertPush(ctx, rec)
		require.NoError(t, err)
	}

	pushes, err := store.ListPushes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pushes, 5)

	for i, want := range []string{"push-4", "push-3", "push-2", "push-1", "push-0"} {
		assert.Equal(t, want, pushes[i].ID)
	}
}

func TestListPushes_Limit(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC()
	for i := range 5 {
		_, err := store.InsertPush(ctx, newPush(fmt.Sprintf("push-%d", i), base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	pushes, err := store.ListPushes(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pushes, 2)
	assert.Equal(t, "push-4", pushes[0].ID)
	assert.Equal(t, "push-3", pushes[1].ID)
}

func TestListPushes_Empty(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	pushes, err := store.ListPushes(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, pushes)
}

func TestDeletePushesBefore(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	cutoff := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertPush(ctx, newPush("old", cutoff.Add(-time.Nanosecond)))
	require.NoError(t, err)
	_, err = store.InsertPush(ctx, newPush("boundary", cutoff))
	require.NoError(t, err)
	_, err = store.InsertPush(ctx, newPush("new", cutoff.Add(time.Hour)))
	require.NoError(t, err)

	deleted, err := store.DeletePushesBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	exists, err := store.PushExists(ctx, "old")
	require.NoError(t, err)
	assert.False(t, exists)

	for _, id := range []string{"boundary", "new"} {
		exists, err := store.PushExists(ctx, id)
		require.NoError(t, err)
		assert.True(t, exists, "%s should survive", id)
	}
}

func TestPushes_TimestampsOutsideNanosecondRange(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	times := map[string]time.Time{
		"zero":    {},
		"1600":    time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC),
		"1969":    time.Date(1969, 12, 31, 23, 59, 59, 250000000, time.UTC),
		"2026":    time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
		"2500":    time.Date(2500, 6, 1, 0, 0, 0, 1, time.UTC),
		"max-ish": time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC),
	}
	for id, at := range times {
		_, err := store.InsertPush(ctx, newPush(id, at))
		require.NoError(t, err)
	}

	for id, want := range times {
		got, err := store.GetPush(ctx, id)
		require.NoError(t, err)
		assert.True(t, want.Equal(got.ReceivedAt), "%s: got %v, want %v", id, got.ReceivedAt, want)
	}

	pushes, err := store.ListPushes(ctx, 0)
	require.NoError(t, err)
	var ids []string
	for _, p := range pushes {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"max-ish", "2500", "2026", "1969", "1600", "zero"}, ids)

	deleted, err := store.DeletePushesBefore(ctx, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	count, err := store.CountPushes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestDeletePushesBefore_SubsecondCutoff(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	cutoff := time.Date(1969, 12, 31, 23, 59, 59, 500000000, time.UTC)

	_, err := store.InsertPush(ctx, newPush("before", cutoff.Add(-time.Nanosecond)))
	require.NoError(t, err)
	_, err = store.InsertPush(ctx, newPush("at", cutoff))
	require.NoError(t, err)

	deleted, err := store.DeletePushesBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	exists, err := store.PushExists(ctx, "at")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOpen_MigratesNanosecondTimestamps(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")
	ctx := context.Background()

	legacy, err := sql.Open(DriverModernC, dbPath)
	require.NoError(t, err)
	_, err = legacy.Exec(`
		CREATE TABLE pushes (
			push_id     TEXT PRIMARY KEY,
			alert       TEXT,
			payload     BLOB NOT NULL,
			received_at INTEGER NOT NULL
		);
		CREATE INDEX idx_pushes_received_at ON pushes(received_at);
	`)
	require.NoError(t, err)

	recent := time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.UTC)
	beforeEpoch := time.Date(1969, 12, 31, 23, 59, 59, 250000000, time.UTC)
	_, err = legacy.Exec(`INSERT INTO pushes (push_id, payload, received_at) VALUES (?, ?, ?), (?, ?, ?)`,
		"recent", []byte(`{}`), recent.UnixNano(),
		"before-epoch", []byte(`{}`), beforeEpoch.UnixNano())
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	got, err := store.GetPush(ctx, "recent")
	require.NoError(t, err)
	assert.True(t, recent.Equal(got.ReceivedAt), "got %v", got.ReceivedAt)

	got, err = store.GetPush(ctx, "before-epoch")
	require.NoError(t, err)
	assert.True(t, beforeEpoch.Equal(got.ReceivedAt), "got %v", got.ReceivedAt)

	// A second open must not convert the values again
	require.NoError(t, store.Close())
	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err = reopened.GetPush(ctx, "recent")
	require.NoError(t, err)
	assert.True(t, recent.Equal(got.ReceivedAt), "got %v", got.ReceivedAt)
}

func TestDeletedPushCanBeReinserted(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	old := time.Now().Add(-72 * time.Hour)
	_, err := store.InsertPush(ctx, newPush("again", old))
	require.NoError(t, err)

	_, err = store.DeletePushesBefore(ctx, time.Now())
	require.NoError(t, err)

	inserted, err := store.InsertPush(ctx, newPush("again", time.Now()))
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestSettings(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	_, err := store.GetSetting(ctx, "push_storage_days")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SetSetting(ctx, "push_storage_days", "7"))
	v, err := store.GetSetting(ctx, "push_storage_days")
	require.NoError(t, err)
	assert.Equal(t, "7", v)

	require.NoError(t, store.SetSetting(ctx, "push_storage_days", "3"))
	v, err = store.GetSetting(ctx, "push_storage_days")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
}

func TestAttributes_SetAndRemove(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	editor := store.EditAttributes(ScopeChannel)
	editor.SetString("tier", "gold")
	editor.SetNumber("visits", 12)
	editor.SetString("stale", "x")
	require.NoError(t, editor.Apply(ctx))

	editor = store.EditAttributes(ScopeChannel)
	editor.Remove("stale")
	editor.SetString("tier", "platinum")
	require.NoError(t, editor.Apply(ctx))

	attrs, err := store.ListAttributes(ctx, ScopeChannel)
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, "tier", attrs[0].Name)
	assert.Equal(t, "platinum", attrs[0].Value)
	assert.Equal(t, "visits", attrs[1].Name)
	assert.Equal(t, float64(12), attrs[1].Value)

	named, err := store.ListAttributes(ctx, ScopeNamedUser)
	require.NoError(t, err)
	assert.Empty(t, named)
}

func TestAttributes_UnknownScope(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	editor := store.EditAttributes(AttributeScope("device"))
	editor.SetString("a", "b")
	assert.Error(t, editor.Apply(context.Background()))
}

func TestSQLiteStore_ClosedReturnsErrors(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())

	_, err := store.ListPushes(context.Background(), 0)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

// newTestStore creates a new SQLite store in a temporary directory
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	return store
}

func newPush(id string, receivedAt time.Time) *PushRecord {
	return &PushRecord{
		ID:         id,
		Payload:    json.RawMessage(`{"aps":{}}`),
		ReceivedAt: receivedAt,
	}
}

func strPtr(s string) *string {
	return &s
}
