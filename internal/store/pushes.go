// ABOUTME: SQLite persistence for received push notifications
// ABOUTME: Insert-if-absent, point lookups, newest-first listing and age-based deletion

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// InsertPush stores a push unless one with the same ID already exists.
// The conflict check and the write are one statement, so concurrent inserts
// of the same ID report inserted=true at most once.
func (s *SQLiteStore) InsertPush(ctx context.Context, rec *PushRecord) (bool, error) {
	if rec.ID == "" {
		return false, fmt.Errorf("inserting push: empty id")
	}

	payload := rec.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	query := `
		INSERT INTO pushes (push_id, alert, payload, received_at, received_nanos)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(push_id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.ID,
		nullString(rec.Alert),
		[]byte(payload),
		rec.ReceivedAt.Unix(),
		rec.ReceivedAt.Nanosecond(),
	)
	if err != nil {
		return false, fmt.Errorf("inserting push: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Debug("push already stored", "id", rec.ID)
		return false, nil
	}

	s.logger.Debug("stored push", "id", rec.ID, "received_at", rec.ReceivedAt)
	return true, nil
}

// PushExists reports whether a push with the given ID is stored.
func (s *SQLiteStore) PushExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM pushes WHERE push_id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying push: %w", err)
	}
	return true, nil
}

// GetPush retrieves a push by ID.
// Returns ErrNotFound if the push doesn't exist.
func (s *SQLiteStore) GetPush(ctx context.Context, id string) (*PushRecord, error) {
	query := `
		SELECT push_id, alert, payload, received_at, received_nanos
		FROM pushes
		WHERE push_id = ?
	`

	rec, err := scanPush(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying push: %w", err)
	}
	return rec, nil
}

// ListPushes retrieves pushes ordered by receipt time, newest first.
// If limit is 0 or negative, every stored push is returned.
func (s *SQLiteStore) ListPushes(ctx context.Context, limit int) ([]*PushRecord, error) {
	query := `
		SELECT push_id, alert, payload, received_at, received_nanos
		FROM pushes
		ORDER BY received_at DESC, received_nanos DESC, push_id ASC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying pushes: %w", err)
	}
	defer rows.Close()

	var pushes []*PushRecord
	for rows.Next() {
		rec, err := scanPush(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning push row: %w", err)
		}
		pushes = append(pushes, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating push rows: %w", err)
	}

	return pushes, nil
}

// DeletePushesBefore deletes every push received strictly before cutoff
// and returns how many were removed.
func (s *SQLiteStore) DeletePushesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	secs, nanos := cutoff.Unix(), cutoff.Nanosecond()
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM pushes
		WHERE received_at < ? OR (received_at = ? AND received_nanos < ?)
	`, secs, secs, nanos)
	if err != nil {
		return 0, fmt.Errorf("deleting pushes: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	s.logger.Debug("deleted old pushes", "cutoff", cutoff, "count", n)
	return n, nil
}

// CountPushes returns the number of stored pushes.
func (s *SQLiteStore) CountPushes(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pushes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting pushes: %w", err)
	}
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPush(row rowScanner) (*PushRecord, error) {
	var (
		rec     PushRecord
		alert   sql.NullString
		payload []byte
		secs    int64
		nanos   int64
	)

	if err := row.Scan(&rec.ID, &alert, &payload, &secs, &nanos); err != nil {
		return nil, err
	}

	if alert.Valid {
		a := alert.String
		rec.Alert = &a
	}
	rec.Payload = json.RawMessage(payload)
	rec.ReceivedAt = time.Unix(secs, nanos).UTC()
	return &rec, nil
}
