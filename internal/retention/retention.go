// ABOUTME: Retention store for received pushes: insert-once, lookup, newest-first listing
// ABOUTME: Prunes pushes older than the storage window and logs-and-swallows storage errors

package retention

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/2389/debugkit/internal/notify"
	"github.com/2389/debugkit/internal/store"
)

const (
	// DefaultStorageDays is both the default window and its floor.
	DefaultStorageDays = 2

	// StorageDaysSetting is the settings key holding the window.
	StorageDaysSetting = "push_storage_days"
)

// Backend is the persistence the retention store needs.
type Backend interface {
	store.PushStore
	store.SettingsStore
}

// Policy describes how long pushes are kept.
type Policy struct {
	WindowDays int
}

// ClampWindowDays returns days, or DefaultStorageDays when days is below the floor.
func ClampWindowDays(days int) int {
	if days < DefaultStorageDays {
		return DefaultStorageDays
	}
	return days
}

// Cutoff returns the instant before which pushes are pruned: the start of
// now's calendar day, in now's location, minus WindowDays days.
func (p Policy) Cutoff(now time.Time) time.Time {
	y, m, d := now.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return startOfDay.AddDate(0, 0, -ClampWindowDays(p.WindowDays))
}

// Store keeps received pushes for a bounded number of days.
//
// It never returns storage errors: failures are logged and callers see an
// empty or partial result. A Store has no locking of its own; the backend is
// expected to make insert-if-absent atomic.
type Store struct {
	backend  Backend
	delegate notify.Delegate
	logger   *slog.Logger
}

// New creates a retention store. delegate and logger may be nil.
func New(backend Backend, delegate notify.Delegate, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:  backend,
		delegate: delegate,
		logger:   logger.With("component", "retention"),
	}
}

// Insert stores rec unless a push with the same ID exists, and notifies the
// delegate exactly once when it does store it. Returns whether it stored rec.
func (s *Store) Insert(ctx context.Context, rec store.PushRecord) bool {
	if rec.ID == "" {
		s.logger.Error("refusing to store push without id")
		return false
	}

	inserted, err := s.backend.InsertPush(ctx, &rec)
	if err != nil {
		s.logger.Error("storing push", "op", "insert", "push_id", rec.ID, "error", err)
		return false
	}
	if !inserted {
		s.logger.Debug("push already stored", "push_id", rec.ID)
		return false
	}

	s.logger.Debug("stored push", "push_id", rec.ID)
	if s.delegate != nil {
		s.delegate.PushAdded(rec)
	}
	return true
}

// Exists reports whether a push with the ID is stored.
func (s *Store) Exists(ctx context.Context, id string) bool {
	exists, err := s.backend.PushExists(ctx, id)
	if err != nil {
		s.logger.Error("checking push", "op", "exists", "push_id", id, "error", err)
		return false
	}
	return exists
}

// Get returns a stored push.
func (s *Store) Get(ctx context.Context, id string) (store.PushRecord, bool) {
	rec, err := s.backend.GetPush(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("fetching push", "op", "get", "push_id", id, "error", err)
		}
		return store.PushRecord{}, false
	}
	return *rec, true
}

// ListAll returns every stored push, newest first.
func (s *Store) ListAll(ctx context.Context) []store.PushRecord {
	return s.List(ctx, 0)
}

// List returns up to limit pushes, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) []store.PushRecord {
	recs, err := s.backend.ListPushes(ctx, limit)
	if err != nil {
		s.logger.Error("listing pushes", "op", "list", "error", err)
		return []store.PushRecord{}
	}

	out := make([]store.PushRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, *r)
	}
	return out
}

// Prune deletes every push received before the policy cutoff for now and
// returns how many were removed.
func (s *Store) Prune(ctx context.Context, now time.Time) int64 {
	policy := s.Policy(ctx)
	cutoff := policy.Cutoff(now)

	s.logger.Info("deleting pushes older than storage window",
		"storage_days", policy.WindowDays,
		"cutoff", cutoff)

	n, err := s.backend.DeletePushesBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("pruning pushes", "op", "prune", "cutoff", cutoff, "error", err)
		return 0
	}
	if n > 0 {
		s.logger.Info("pruned pushes", "count", n)
	}
	return n
}

// Policy returns the effective retention policy.
func (s *Store) Policy(ctx context.Context) Policy {
	return Policy{WindowDays: s.StorageDays(ctx)}
}

// StorageDays returns the persisted window. Missing, unparsable or
// below-floor values yield DefaultStorageDays.
func (s *Store) StorageDays(ctx context.Context) int {
	raw, err := s.backend.GetSetting(ctx, StorageDaysSetting)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("reading storage days", "op", "get_setting", "error", err)
		}
		return DefaultStorageDays
	}

	days, err := strconv.Atoi(raw)
	if err != nil {
		s.logger.Warn("ignoring unparsable storage days", "value", raw)
		return DefaultStorageDays
	}
	return ClampWindowDays(days)
}

// SetStorageDays persists days as given and returns the effective window.
// A value below the floor is stored but reads back as the default. When the
// save fails, saved is false and effective is the window still in force.
func (s *Store) SetStorageDays(ctx context.Context, days int) (effective int, saved bool) {
	if err := s.backend.SetSetting(ctx, StorageDaysSetting, strconv.Itoa(days)); err != nil {
		s.logger.Error("saving storage days", "op", "set_setting", "error", err)
		return s.StorageDays(ctx), false
	}
	return ClampWindowDays(days), true
}
