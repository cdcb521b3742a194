// ABOUTME: SQLite persistence for channel and named user attributes
// ABOUTME: Editors queue set/remove mutations and apply them in one transaction

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// sqliteAttributeEditor queues mutations for one scope.
type sqliteAttributeEditor struct {
	store     *SQLiteStore
	scope     AttributeScope
	mutations []attributeMutation
}

// EditAttributes returns an editor for the given scope. Nothing is written until Apply.
func (s *SQLiteStore) EditAttributes(scope AttributeScope) AttributeEditor {
	return &sqliteAttributeEditor{store: s, scope: scope}
}

func (e *sqliteAttributeEditor) SetString(name, value string) {
	e.mutations = append(e.mutations, attributeMutation{name: name, value: value})
}

func (e *sqliteAttributeEditor) SetNumber(name string, value float64) {
	e.mutations = append(e.mutations, attributeMutation{name: name, value: value})
}

func (e *sqliteAttributeEditor) Remove(name string) {
	e.mutations = append(e.mutations, attributeMutation{name: name, remove: true})
}

// Apply writes the queued mutations in order. The queue is cleared on success.
func (e *sqliteAttributeEditor) Apply(ctx context.Context) error {
	if !e.scope.Valid() {
		return fmt.Errorf("applying attributes: unknown scope %q", e.scope)
	}
	if len(e.mutations) == 0 {
		return nil
	}

	tx, err := e.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixNano()
	for _, m := range e.mutations {
		if m.remove {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM attributes WHERE scope = ? AND name = ?`,
				string(e.scope), m.name,
			); err != nil {
				return fmt.Errorf("removing attribute %q: %w", m.name, err)
			}
			continue
		}

		valueJSON, err := json.Marshal(m.value)
		if err != nil {
			return fmt.Errorf("encoding attribute %q: %w", m.name, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attributes (scope, name, value_json, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(scope, name) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
		`, string(e.scope), m.name, string(valueJSON), now); err != nil {
			return fmt.Errorf("setting attribute %q: %w", m.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing attributes: %w", err)
	}

	e.store.logger.Debug("applied attribute edits", "scope", e.scope, "count", len(e.mutations))
	e.mutations = nil
	return nil
}

// ListAttributes returns the attributes of a scope ordered by name.
func (s *SQLiteStore) ListAttributes(ctx context.Context, scope AttributeScope) ([]*Attribute, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, value_json, updated_at
		FROM attributes
		WHERE scope = ?
		ORDER BY name ASC
	`, string(scope))
	if err != nil {
		return nil, fmt.Errorf("querying attributes: %w", err)
	}
	defer rows.Close()

	var attrs []*Attribute
	for rows.Next() {
		var (
			attr      = Attribute{Scope: scope}
			valueJSON string
			updatedAt int64
		)
		if err := rows.Scan(&attr.Name, &valueJSON, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning attribute row: %w", err)
		}
		if err := json.Unmarshal([]byte(valueJSON), &attr.Value); err != nil {
			return nil, fmt.Errorf("decoding attribute %q: %w", attr.Name, err)
		}
		attr.UpdatedAt = time.Unix(0, updatedAt).UTC()
		attrs = append(attrs, &attr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attribute rows: %w", err)
	}

	return attrs, nil
}
