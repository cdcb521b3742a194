// ABOUTME: Store interfaces and data types for debugkit persistence
// ABOUTME: Defines PushRecord, Attribute and the interfaces backed by SQLite or memory

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// PushRecord is the persisted representation of one received push notification.
// Records are never mutated after insert.
type PushRecord struct {
	ID         string
	Alert      *string // nil when the push had no alert text
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// AlertText returns the alert or an empty string.
func (p *PushRecord) AlertText() string {
	if p.Alert == nil {
		return ""
	}
	return *p.Alert
}

// AttributeScope identifies who an attribute belongs to.
type AttributeScope string

const (
	ScopeChannel   AttributeScope = "channel"
	ScopeNamedUser AttributeScope = "named_user"
)

// Valid reports whether the scope is one the store knows about.
func (s AttributeScope) Valid() bool {
	return s == ScopeChannel || s == ScopeNamedUser
}

// Attribute is a single persisted attribute value.
// Value is a string or a float64.
type Attribute struct {
	Scope     AttributeScope
	Name      string
	Value     any
	UpdatedAt time.Time
}

// PushStore persists received pushes.
type PushStore interface {
	// InsertPush writes rec unless a push with the same ID exists.
	// inserted reports whether a row was written.
	InsertPush(ctx context.Context, rec *PushRecord) (inserted bool, err error)
	PushExists(ctx context.Context, id string) (bool, error)
	GetPush(ctx context.Context, id string) (*PushRecord, error)
	// ListPushes returns pushes newest first. limit <= 0 returns all of them.
	ListPushes(ctx context.Context, limit int) ([]*PushRecord, error)
	// DeletePushesBefore removes every push received strictly before cutoff.
	DeletePushesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountPushes(ctx context.Context) (int64, error)
}

// SettingsStore is a small persisted key/value table for process-wide settings.
type SettingsStore interface {
	// GetSetting returns ErrNotFound when the key was never written.
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// AttributeEditor batches attribute mutations until Apply.
type AttributeEditor interface {
	SetString(name, value string)
	SetNumber(name string, value float64)
	Remove(name string)
	Apply(ctx context.Context) error
}

// AttributeStore persists channel and named user attributes.
type AttributeStore interface {
	EditAttributes(scope AttributeScope) AttributeEditor
	ListAttributes(ctx context.Context, scope AttributeScope) ([]*Attribute, error)
}

// Store is everything debugkit persists.
type Store interface {
	PushStore
	SettingsStore
	AttributeStore

	// Close releases any resources held by the store
	Close() error
}

// attributeMutation is one queued editor operation.
type attributeMutation struct {
	name   string
	value  any
	remove bool
}
