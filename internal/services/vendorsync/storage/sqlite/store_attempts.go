package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/storage"
)

// RecordAttempt appends one durable sync attempt outcome.
func (s *Store) RecordAttempt(ctx context.Context, attempt storage.AttemptRecord) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(attempt.EntryID) == "" {
		return fmt.Errorf("entry id is required")
	}
	if strings.TrimSpace(attempt.Outcome) == "" {
		return fmt.Errorf("outcome is required")
	}
	createdAt := attempt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO vendor_sync_attempts (
	entry_id, kind, consumer, outcome, attempt_count, last_error, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		strings.TrimSpace(attempt.EntryID),
		string(attempt.Kind),
		strings.TrimSpace(attempt.Consumer),
		strings.TrimSpace(attempt.Outcome),
		attempt.AttemptCount,
		strings.TrimSpace(attempt.LastError),
		toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the most recent attempt records, newest first.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]storage.AttemptRecord, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, entry_id, kind, consumer, outcome, attempt_count, last_error, created_at
FROM vendor_sync_attempts
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var attempts []storage.AttemptRecord
	for rows.Next() {
		var attempt storage.AttemptRecord
		var kind string
		var createdAt int64
		if err := rows.Scan(
			&attempt.ID,
			&attempt.EntryID,
			&kind,
			&attempt.Consumer,
			&attempt.Outcome,
			&attempt.AttemptCount,
			&attempt.LastError,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempt.Kind = storage.OutboxKind(kind)
		attempt.CreatedAt = fromMillis(createdAt)
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}
