package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/storage"
)

// GetOutboxEntry returns a single outbox entry by id.
func (s *Store) GetOutboxEntry(ctx context.Context, id string) (storage.OutboxEntry, error) {
	if s == nil || s.sqlDB == nil {
		return storage.OutboxEntry{}, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return storage.OutboxEntry{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+outboxColumns+`
FROM vendor_sync_outbox
WHERE id = ?
`, strings.TrimSpace(id))
	entry, err := scanOutboxEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OutboxEntry{}, storage.ErrNotFound
		}
		return storage.OutboxEntry{}, fmt.Errorf("query outbox entry: %w", err)
	}
	return entry, nil
}

// ClaimOutboxEntry takes a lease on one specific entry. The claim succeeds if
// the entry is pending, or leased but past its lease expiry; a live lease held
// by someone else wins and the caller gets ErrNotFound.
func (s *Store) ClaimOutboxEntry(ctx context.Context, id string, owner string, now time.Time, leaseTTL time.Duration) (storage.OutboxEntry, error) {
	if s == nil || s.sqlDB == nil {
		return storage.OutboxEntry{}, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return storage.OutboxEntry{}, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return storage.OutboxEntry{}, fmt.Errorf("lease owner is required")
	}
	if leaseTTL <= 0 {
		return storage.OutboxEntry{}, fmt.Errorf("lease ttl must be greater than zero")
	}

	nowMillis := toMillis(now)
	row := s.sqlDB.QueryRowContext(ctx, `
UPDATE vendor_sync_outbox
SET status = 'leased',
	lease_owner = ?,
	lease_expires_at = ?,
	updated_at = ?
WHERE id = ?
	AND (status = 'pending'
		OR (status = 'leased' AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?))
RETURNING `+outboxColumns+`
`, owner, toMillis(now.Add(leaseTTL)), nowMillis, strings.TrimSpace(id), nowMillis)

	entry, err := scanOutboxEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OutboxEntry{}, storage.ErrNotFound
		}
		return storage.OutboxEntry{}, fmt.Errorf("claim outbox entry: %w", err)
	}
	return entry, nil
}

// LeaseOutboxEntries claims a batch of due entries for one consumer. Entries
// whose lease expired are reclaimed along with pending ones; entries not yet
// due stay untouched.
func (s *Store) LeaseOutboxEntries(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]storage.OutboxEntry, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, fmt.Errorf("consumer is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if leaseTTL <= 0 {
		return nil, fmt.Errorf("lease ttl must be greater than zero")
	}

	nowMillis := toMillis(now)
	rows, err := s.sqlDB.QueryContext(ctx, `
UPDATE vendor_sync_outbox
SET status = 'leased',
	lease_owner = ?,
	lease_expires_at = ?,
	updated_at = ?
WHERE id IN (
	SELECT id FROM vendor_sync_outbox
	WHERE next_attempt_at <= ?
		AND (status = 'pending'
			OR (status = 'leased' AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?))
	ORDER BY next_attempt_at ASC
	LIMIT ?
)
RETURNING `+outboxColumns+`
`, consumer, toMillis(now.Add(leaseTTL)), nowMillis, nowMillis, nowMillis, limit)
	if err != nil {
		return nil, fmt.Errorf("lease outbox entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []storage.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

// MarkOutboxSucceeded terminally acks a leased entry. The ack is guarded by
// the lease owner: a superseded or reclaimed entry rejects the stale holder
// with ErrNotFound.
func (s *Store) MarkOutboxSucceeded(ctx context.Context, id string, owner string, processedAt time.Time) error {
	return s.ackOutboxEntry(ctx, id, owner, `
UPDATE vendor_sync_outbox
SET status = 'succeeded',
	lease_owner = '',
	lease_expires_at = NULL,
	last_error = '',
	processed_at = ?,
	updated_at = ?
WHERE id = ? AND status = 'leased' AND lease_owner = ?
`, toMillis(processedAt), toMillis(processedAt), strings.TrimSpace(id), strings.TrimSpace(owner))
}

// MarkOutboxRetry releases a leased entry back to pending with the next due
// time and the failure that sent it there. Attempt count advances here.
func (s *Store) MarkOutboxRetry(ctx context.Context, id string, owner string, nextAttemptAt time.Time, lastError string) error {
	return s.ackOutboxEntry(ctx, id, owner, `
UPDATE vendor_sync_outbox
SET status = 'pending',
	attempt_count = attempt_count + 1,
	next_attempt_at = ?,
	lease_owner = '',
	lease_expires_at = NULL,
	last_error = ?,
	updated_at = ?
WHERE id = ? AND status = 'leased' AND lease_owner = ?
`, toMillis(nextAttemptAt), strings.TrimSpace(lastError), toMillis(nextAttemptAt), strings.TrimSpace(id), strings.TrimSpace(owner))
}

// MarkOutboxDead dead-letters a leased entry. Dead entries keep their final
// error and wait for an operator to requeue or discard them.
func (s *Store) MarkOutboxDead(ctx context.Context, id string, owner string, lastError string, processedAt time.Time) error {
	return s.ackOutboxEntry(ctx, id, owner, `
UPDATE vendor_sync_outbox
SET status = 'dead',
	attempt_count = attempt_count + 1,
	lease_owner = '',
	lease_expires_at = NULL,
	last_error = ?,
	processed_at = ?,
	updated_at = ?
WHERE id = ? AND status = 'leased' AND lease_owner = ?
`, strings.TrimSpace(lastError), toMillis(processedAt), toMillis(processedAt), strings.TrimSpace(id), strings.TrimSpace(owner))
}

func (s *Store) ackOutboxEntry(ctx context.Context, id string, owner string, query string, args ...any) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("entry id is required")
	}
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("lease owner is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("ack outbox entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ack outbox entry rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListDeadOutboxEntries returns dead-lettered entries, oldest first.
func (s *Store) ListDeadOutboxEntries(ctx context.Context, limit int) ([]storage.OutboxEntry, error) {
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
SELECT `+outboxColumns+`
FROM vendor_sync_outbox
WHERE status = 'dead'
ORDER BY updated_at ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead outbox entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []storage.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

// RequeueDeadOutboxEntry sends a dead entry back to pending with a fresh
// attempt budget, due immediately. A newer active entry for the same
// (profile, kind) wins: the requeue yields and returns ErrNotFound.
func (s *Store) RequeueDeadOutboxEntry(ctx context.Context, id string, now time.Time) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	nowMillis := toMillis(now)
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE vendor_sync_outbox
SET status = 'pending',
	attempt_count = 0,
	next_attempt_at = ?,
	lease_owner = '',
	lease_expires_at = NULL,
	last_error = '',
	processed_at = NULL,
	updated_at = ?
WHERE id = ? AND status = 'dead'
	AND NOT EXISTS (
		SELECT 1 FROM vendor_sync_outbox other
		WHERE other.profile_id = vendor_sync_outbox.profile_id
			AND other.kind = vendor_sync_outbox.kind
			AND other.id <> vendor_sync_outbox.id
			AND other.status IN ('pending', 'leased')
	)
`, nowMillis, nowMillis, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("requeue dead outbox entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("requeue dead outbox entry rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DiscardDeadOutboxEntry permanently removes a dead entry.
func (s *Store) DiscardDeadOutboxEntry(ctx context.Context, id string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM vendor_sync_outbox
WHERE id = ? AND status = 'dead'
`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("discard dead outbox entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("discard dead outbox entry rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
