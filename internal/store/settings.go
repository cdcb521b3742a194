// ABOUTME: SQLite key/value table for persisted process-wide settings
// ABOUTME: Backs values such as the push storage window

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetSetting returns the stored value for key.
// Returns ErrNotFound if the key was never written.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying setting: %w", err)
	}
	return value, nil
}

// SetSetting writes value for key, replacing any previous value.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("saving setting: %w", err)
	}

	s.logger.Debug("saved setting", "key", key)
	return nil
}
