package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/domain"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/storage"
)

// PutProfileWithOutbox inserts a new vendor profile with its business record
// and the outbox entry that will mirror it remotely, all in one transaction.
// Returns the effective outbox entry id.
func (s *Store) PutProfileWithOutbox(ctx context.Context, profile domain.Profile, business domain.Business, entry storage.OutboxEntry) (string, error) {
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(profile.ID) == "" {
		return "", fmt.Errorf("profile id is required")
	}

	documentRefs, err := encodeDocumentRefs(business.DocumentRefs)
	if err != nil {
		return "", err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var deletedAt any
	if profile.DeletedAt != nil {
		deletedAt = toMillis(*profile.DeletedAt)
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO vendor_profiles (
	id, email, phone, password_ref, status, phone_verified, remote_id,
	deleted_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		profile.ID,
		profile.Email,
		profile.Phone,
		profile.PasswordRef,
		string(profile.Status),
		boolToInt(profile.PhoneVerified),
		profile.RemoteID,
		deletedAt,
		toMillis(profile.CreatedAt),
		toMillis(profile.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", storage.ErrContactInUse
		}
		return "", fmt.Errorf("insert profile: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO vendor_businesses (
	profile_id, name, verified, document_refs_json, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?)
`,
		profile.ID,
		business.Name,
		boolToInt(business.Verified),
		documentRefs,
		toMillis(business.CreatedAt),
		toMillis(business.UpdatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert business: %w", err)
	}

	entryID, err := enqueueOutboxEntry(ctx, tx, entry)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}
	return entryID, nil
}

// GetProfile returns a profile by id, tombstoned or not.
func (s *Store) GetProfile(ctx context.Context, profileID string) (domain.Profile, error) {
	if s == nil || s.sqlDB == nil {
		return domain.Profile{}, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return domain.Profile{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+profileColumns+`
FROM vendor_profiles
WHERE id = ?
`, strings.TrimSpace(profileID))
	profile, err := scanProfile(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Profile{}, storage.ErrNotFound
		}
		return domain.Profile{}, fmt.Errorf("query profile: %w", err)
	}
	return profile, nil
}

// GetProfileByEmail returns the live profile holding the given email.
func (s *Store) GetProfileByEmail(ctx context.Context, email string) (domain.Profile, error) {
	if s == nil || s.sqlDB == nil {
		return domain.Profile{}, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return domain.Profile{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+profileColumns+`
FROM vendor_profiles
WHERE email = ? AND deleted_at IS NULL
`, strings.ToLower(strings.TrimSpace(email)))
	profile, err := scanProfile(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Profile{}, storage.ErrNotFound
		}
		return domain.Profile{}, fmt.Errorf("query profile by email: %w", err)
	}
	return profile, nil
}

// GetBusiness returns the business record attached to a profile.
func (s *Store) GetBusiness(ctx context.Context, profileID string) (domain.Business, error) {
	if s == nil || s.sqlDB == nil {
		return domain.Business{}, fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return domain.Business{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT profile_id, name, verified, document_refs_json, created_at, updated_at
FROM vendor_businesses
WHERE profile_id = ?
`, strings.TrimSpace(profileID))

	var business domain.Business
	var verified int64
	var documentRefs string
	var createdAt int64
	var updatedAt int64
	err := row.Scan(&business.ProfileID, &business.Name, &verified, &documentRefs, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Business{}, storage.ErrNotFound
		}
		return domain.Business{}, fmt.Errorf("query business: %w", err)
	}
	business.Verified = verified != 0
	business.DocumentRefs, err = decodeDocumentRefs(documentRefs)
	if err != nil {
		return domain.Business{}, err
	}
	business.CreatedAt = fromMillis(createdAt)
	business.UpdatedAt = fromMillis(updatedAt)
	return business, nil
}

// updateProfileWithOutbox runs a single-column profile update plus the outbox
// enqueue in one transaction. The update must touch exactly one live row.
func (s *Store) updateProfileWithOutbox(ctx context.Context, entry storage.OutboxEntry, query string, args ...any) (string, error) {
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return "", storage.ErrContactInUse
		}
		return "", fmt.Errorf("update profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("update profile rows affected: %w", err)
	}
	if affected == 0 {
		return "", storage.ErrNotFound
	}

	entryID, err := enqueueOutboxEntry(ctx, tx, entry)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}
	return entryID, nil
}

// UpdateProfileEmailWithOutbox changes a live profile's email and enqueues
// the remote mirror in the same transaction.
func (s *Store) UpdateProfileEmailWithOutbox(ctx context.Context, profileID string, email string, updatedAt time.Time, entry storage.OutboxEntry) (string, error) {
	return s.updateProfileWithOutbox(ctx, entry, `
UPDATE vendor_profiles
SET email = ?, updated_at = ?
WHERE id = ? AND deleted_at IS NULL
`, strings.ToLower(strings.TrimSpace(email)), toMillis(updatedAt), strings.TrimSpace(profileID))
}

// UpdateProfilePhoneWithOutbox changes a live profile's phone and its
// verification flag, enqueueing the remote mirror in the same transaction.
func (s *Store) UpdateProfilePhoneWithOutbox(ctx context.Context, profileID string, phone string, verified bool, updatedAt time.Time, entry storage.OutboxEntry) (string, error) {
	return s.updateProfileWithOutbox(ctx, entry, `
UPDATE vendor_profiles
SET phone = ?, phone_verified = ?, updated_at = ?
WHERE id = ? AND deleted_at IS NULL
`, strings.TrimSpace(phone), boolToInt(verified), toMillis(updatedAt), strings.TrimSpace(profileID))
}

// UpdateProfilePasswordRefWithOutbox swaps a live profile's credential
// reference, enqueueing the remote mirror in the same transaction.
func (s *Store) UpdateProfilePasswordRefWithOutbox(ctx context.Context, profileID string, passwordRef string, updatedAt time.Time, entry storage.OutboxEntry) (string, error) {
	return s.updateProfileWithOutbox(ctx, entry, `
UPDATE vendor_profiles
SET password_ref = ?, updated_at = ?
WHERE id = ? AND deleted_at IS NULL
`, passwordRef, toMillis(updatedAt), strings.TrimSpace(profileID))
}

// UpdateProfileStatusWithOutbox moves a live profile to a new review status,
// enqueueing the remote mirror in the same transaction.
func (s *Store) UpdateProfileStatusWithOutbox(ctx context.Context, profileID string, status domain.Status, updatedAt time.Time, entry storage.OutboxEntry) (string, error) {
	return s.updateProfileWithOutbox(ctx, entry, `
UPDATE vendor_profiles
SET status = ?, updated_at = ?
WHERE id = ? AND deleted_at IS NULL
`, string(status), toMillis(updatedAt), strings.TrimSpace(profileID))
}

// TombstoneProfileWithOutbox soft-deletes a live profile, releasing its
// contact points, and enqueues the remote deletion in the same transaction.
func (s *Store) TombstoneProfileWithOutbox(ctx context.Context, profileID string, deletedAt time.Time, entry storage.OutboxEntry) (string, error) {
	return s.updateProfileWithOutbox(ctx, entry, `
UPDATE vendor_profiles
SET deleted_at = ?, updated_at = ?
WHERE id = ? AND deleted_at IS NULL
`, toMillis(deletedAt), toMillis(deletedAt), strings.TrimSpace(profileID))
}

// SetProfileRemoteID binds a profile to the identity the remote provider
// assigned it. No outbox entry accompanies this write; it records the result
// of remote work rather than requesting new work.
func (s *Store) SetProfileRemoteID(ctx context.Context, profileID string, remoteID string, updatedAt time.Time) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE vendor_profiles
SET remote_id = ?, updated_at = ?
WHERE id = ?
`, strings.TrimSpace(remoteID), toMillis(updatedAt), strings.TrimSpace(profileID))
	if err != nil {
		return fmt.Errorf("set remote id: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set remote id rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PurgeProfile removes a tombstoned profile and its business record for good.
// The business row goes with the profile through the cascade.
func (s *Store) PurgeProfile(ctx context.Context, profileID string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM vendor_profiles
WHERE id = ? AND deleted_at IS NOT NULL
`, strings.TrimSpace(profileID))
	if err != nil {
		return fmt.Errorf("purge profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("purge profile rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}
