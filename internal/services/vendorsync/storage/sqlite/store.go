// Package sqlite implements vendor sync persistence over SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/MoeD-maker/Pinnity-sub001/internal/platform/storage/sqlitemigrate"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/domain"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/storage"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements vendor sync persistence over a single SQLite file so
// profile, business, and outbox writes share one transaction boundary.
type Store struct {
	sqlDB *sql.DB
}

type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB returns the raw database handle for maintenance tooling.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Open opens the vendor sync SQLite store and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func encodeDocumentRefs(refs []string) (string, error) {
	if len(refs) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("encode document refs: %w", err)
	}
	return string(encoded), nil
}

func decodeDocumentRefs(value string) ([]string, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var refs []string
	if err := json.Unmarshal([]byte(value), &refs); err != nil {
		return nil, fmt.Errorf("decode document refs: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil
	}
	return refs, nil
}

type rowScanner func(dest ...any) error

func scanProfile(scan rowScanner) (domain.Profile, error) {
	var profile domain.Profile
	var status string
	var phoneVerified int64
	var deletedAt sql.NullInt64
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&profile.ID,
		&profile.Email,
		&profile.Phone,
		&profile.PasswordRef,
		&status,
		&phoneVerified,
		&profile.RemoteID,
		&deletedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Profile{}, err
	}
	profile.Status = domain.Status(status)
	profile.PhoneVerified = phoneVerified != 0
	if deletedAt.Valid {
		value := fromMillis(deletedAt.Int64)
		profile.DeletedAt = &value
	}
	profile.CreatedAt = fromMillis(createdAt)
	profile.UpdatedAt = fromMillis(updatedAt)
	return profile, nil
}

func scanOutboxEntry(scan rowScanner) (storage.OutboxEntry, error) {
	var entry storage.OutboxEntry
	var kind string
	var nextAttemptAt int64
	var leaseExpiresAt sql.NullInt64
	var processedAt sql.NullInt64
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&entry.ID,
		&kind,
		&entry.ProfileID,
		&entry.PayloadJSON,
		&entry.Status,
		&entry.AttemptCount,
		&nextAttemptAt,
		&entry.LeaseOwner,
		&leaseExpiresAt,
		&entry.LastError,
		&processedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.OutboxEntry{}, err
	}
	entry.Kind = storage.OutboxKind(kind)
	entry.NextAttemptAt = fromMillis(nextAttemptAt)
	if leaseExpiresAt.Valid {
		value := fromMillis(leaseExpiresAt.Int64)
		entry.LeaseExpiresAt = &value
	}
	if processedAt.Valid {
		value := fromMillis(processedAt.Int64)
		entry.ProcessedAt = &value
	}
	entry.CreatedAt = fromMillis(createdAt)
	entry.UpdatedAt = fromMillis(updatedAt)
	return entry, nil
}

const outboxColumns = `
	id,
	kind,
	profile_id,
	payload_json,
	status,
	attempt_count,
	next_attempt_at,
	lease_owner,
	lease_expires_at,
	last_error,
	processed_at,
	created_at,
	updated_at`

const profileColumns = `
	id,
	email,
	phone,
	password_ref,
	status,
	phone_verified,
	remote_id,
	deleted_at,
	created_at,
	updated_at`

func normalizeOutboxEntry(entry storage.OutboxEntry) (storage.OutboxEntry, error) {
	entry.ID = strings.TrimSpace(entry.ID)
	entry.ProfileID = strings.TrimSpace(entry.ProfileID)
	entry.PayloadJSON = strings.TrimSpace(entry.PayloadJSON)
	entry.Status = strings.TrimSpace(entry.Status)
	entry.LeaseOwner = strings.TrimSpace(entry.LeaseOwner)
	entry.LastError = strings.TrimSpace(entry.LastError)
	if entry.ID == "" {
		return storage.OutboxEntry{}, fmt.Errorf("entry id is required")
	}
	if entry.Kind == "" {
		return storage.OutboxEntry{}, fmt.Errorf("entry kind is required")
	}
	if entry.ProfileID == "" {
		return storage.OutboxEntry{}, fmt.Errorf("profile id is required")
	}
	if entry.PayloadJSON == "" {
		entry.PayloadJSON = "{}"
	}
	if entry.Status == "" {
		entry.Status = storage.OutboxStatusPending
	}
	if entry.AttemptCount < 0 {
		return storage.OutboxEntry{}, fmt.Errorf("attempt count must be greater than or equal to zero")
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}
	if entry.NextAttemptAt.IsZero() {
		entry.NextAttemptAt = entry.CreatedAt
	}
	return entry, nil
}

// enqueueOutboxEntry inserts an entry, superseding any active entry for the
// same (profile, kind): the existing row keeps its id but takes the new
// payload, drops its lease, and resets its attempt budget. Returns the
// effective entry id.
func enqueueOutboxEntry(ctx context.Context, target execContexter, entry storage.OutboxEntry) (string, error) {
	normalized, err := normalizeOutboxEntry(entry)
	if err != nil {
		return "", err
	}

	row := target.QueryRowContext(ctx, `
INSERT INTO vendor_sync_outbox (
	id,
	kind,
	profile_id,
	payload_json,
	status,
	attempt_count,
	next_attempt_at,
	lease_owner,
	lease_expires_at,
	last_error,
	processed_at,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, '', NULL, '', NULL, ?, ?)
ON CONFLICT (profile_id, kind) WHERE status IN ('pending', 'leased') DO UPDATE SET
	payload_json = excluded.payload_json,
	status = 'pending',
	attempt_count = 0,
	next_attempt_at = excluded.next_attempt_at,
	lease_owner = '',
	lease_expires_at = NULL,
	last_error = '',
	processed_at = NULL,
	updated_at = excluded.updated_at
RETURNING id
`,
		normalized.ID,
		string(normalized.Kind),
		normalized.ProfileID,
		normalized.PayloadJSON,
		normalized.Status,
		normalized.AttemptCount,
		toMillis(normalized.NextAttemptAt),
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	)

	var effectiveID string
	if err := row.Scan(&effectiveID); err != nil {
		return "", fmt.Errorf("enqueue outbox entry: %w", err)
	}
	return effectiveID, nil
}

var _ storage.ProfileStore = (*Store)(nil)
var _ storage.OutboxStore = (*Store)(nil)
var _ storage.AttemptStore = (*Store)(nil)
var _ storage.VendorStore = (*Store)(nil)
