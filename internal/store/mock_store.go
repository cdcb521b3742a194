// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject persistence failures

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MockStore)(nil)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu         sync.RWMutex
	pushes     map[string]*PushRecord                   // keyed by push ID
	settings   map[string]string                        // keyed by setting key
	attributes map[AttributeScope]map[string]*Attribute // scope -> name -> attribute
	failWith   error                                    // returned by every operation when set
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		pushes:     make(map[string]*PushRecord),
		settings:   make(map[string]string),
		attributes: make(map[AttributeScope]map[string]*Attribute),
	}
}

// FailWith makes every subsequent operation return err. Pass nil to recover.
func (m *MockStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// InsertPush stores a copy of rec unless the ID is taken.
func (m *MockStore) InsertPush(ctx context.Context, rec *PushRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return false, m.failWith
	}
	if rec.ID == "" {
		return false, fmt.Errorf("inserting push: empty id")
	}
	if _, ok := m.pushes[rec.ID]; ok {
		return false, nil
	}

	m.pushes[rec.ID] = copyPush(rec)
	return true, nil
}

// PushExists reports whether the ID is stored.
func (m *MockStore) PushExists(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failWith != nil {
		return false, m.failWith
	}
	_, ok := m.pushes[id]
	return ok, nil
}

// GetPush retrieves a push by ID.
func (m *MockStore) GetPush(ctx context.Context, id string) (*PushRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failWith != nil {
		return nil, m.failWith
	}
	p, ok := m.pushes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPush(p), nil
}

// ListPushes returns pushes newest first, ties ordered by ID like SQLiteStore.
func (m *MockStore) ListPushes(ctx context.Context, limit int) ([]*PushRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failWith != nil {
		return nil, m.failWith
	}

	pushes := make([]*PushRecord, 0, len(m.pushes))
	for _, p := range m.pushes {
		pushes = append(pushes, copyPush(p))
	}

	sort.Slice(pushes, func(i, j int) bool {
		if !pushes[i].ReceivedAt.Equal(pushes[j].ReceivedAt) {
			return pushes[i].ReceivedAt.After(pushes[j].ReceivedAt)
		}
		return pushes[i].ID < pushes[j].ID
	})

	if limit > 0 && len(pushes) > limit {
		pushes = pushes[:limit]
	}
	return pushes, nil
}

// DeletePushesBefore removes pushes received strictly before cutoff.
func (m *MockStore) DeletePushesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return 0, m.failWith
	}

	var n int64
	for id, p := range m.pushes {
		if p.ReceivedAt.Before(cutoff) {
			delete(m.pushes, id)
			n++
		}
	}
	return n, nil
}

// CountPushes returns the number of stored pushes.
func (m *MockStore) CountPushes(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failWith != nil {
		return 0, m.failWith
	}
	return int64(len(m.pushes)), nil
}

// GetSetting returns a stored setting or ErrNotFound.
func (m *MockStore) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failWith != nil {
		return "", m.failWith
	}
	v, ok := m.settings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// SetSetting stores a setting.
func (m *MockStore) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}
	m.settings[key] = value
	return nil
}

// mockAttributeEditor queues mutations for a MockStore scope.
type mockAttributeEditor struct {
	store     *MockStore
	scope     AttributeScope
	mutations []attributeMutation
}

// EditAttributes returns an editor for the given scope.
func (m *MockStore) EditAttributes(scope AttributeScope) AttributeEditor {
	return &mockAttributeEditor{store: m, scope: scope}
}

func (e *mockAttributeEditor) SetString(name, value string) {
	e.mutations = append(e.mutations, attributeMutation{name: name, value: value})
}

func (e *mockAttributeEditor) SetNumber(name string, value float64) {
	e.mutations = append(e.mutations, attributeMutation{name: name, value: value})
}

func (e *mockAttributeEditor) Remove(name string) {
	e.mutations = append(e.mutations, attributeMutation{name: name, remove: true})
}

func (e *mockAttributeEditor) Apply(ctx context.Context) error {
	m := e.store
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}
	if !e.scope.Valid() {
		return fmt.Errorf("applying attributes: unknown scope %q", e.scope)
	}

	attrs, ok := m.attributes[e.scope]
	if !ok {
		attrs = make(map[string]*Attribute)
		m.attributes[e.scope] = attrs
	}

	now := time.Now().UTC()
	for _, mut := range e.mutations {
		if mut.remove {
			delete(attrs, mut.name)
			continue
		}
		attrs[mut.name] = &Attribute{Scope: e.scope, Name: mut.name, Value: mut.value, UpdatedAt: now}
	}
	e.mutations = nil
	return nil
}

// ListAttributes returns copies of the scope's attributes ordered by name.
func (m *MockStore) ListAttributes(ctx context.Context, scope AttributeScope) ([]*Attribute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failWith != nil {
		return nil, m.failWith
	}

	var attrs []*Attribute
	for _, a := range m.attributes[scope] {
		attrCopy := *a
		attrs = append(attrs, &attrCopy)
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name < attrs[j].Name })
	return attrs, nil
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}

func copyPush(p *PushRecord) *PushRecord {
	c := *p
	if p.Alert != nil {
		a := *p.Alert
		c.Alert = &a
	}
	if p.Payload != nil {
		c.Payload = append(json.RawMessage(nil), p.Payload...)
	}
	return &c
}
