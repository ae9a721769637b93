// Package storage defines persistence contracts for the vendor sync core.
//
// The local store is the single place where profile, business, and outbox
// rows are mutated together atomically; no other component writes these
// tables directly.
package storage

import (
	"context"
	"time"

	apperrors "github.com/MoeD-maker/Pinnity-sub001/internal/platform/errors"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/domain"
)

// ErrNotFound indicates a requested record is missing (or an ack lost its
// lease to another owner).
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrContactInUse indicates the email or phone is taken by a live profile.
var ErrContactInUse = apperrors.New(apperrors.CodeContactInUse, "email or phone already in use")

// OutboxKind names the remote operation an outbox entry replays.
type OutboxKind string

const (
	KindCreateIdentity OutboxKind = "create_identity"
	KindUpdateEmail    OutboxKind = "update_email"
	KindUpdatePhone    OutboxKind = "update_phone"
	KindSetPassword    OutboxKind = "set_password"
	KindSetStatus      OutboxKind = "set_status"
	KindDeleteIdentity OutboxKind = "delete_identity"
)

// Outbox entry statuses. An entry leaves pending only under a lease; a
// crashed holder is recovered when the lease expires.
const (
	OutboxStatusPending   = "pending"
	OutboxStatusLeased    = "leased"
	OutboxStatusSucceeded = "succeeded"
	OutboxStatusDead      = "dead"
)

// OutboxEntry is one unit of deferred remote work, persisted in the same
// transaction as the local write it accompanies.
type OutboxEntry struct {
	ID             string
	Kind           OutboxKind
	ProfileID      string
	PayloadJSON    string
	Status         string
	AttemptCount   int
	NextAttemptAt  time.Time
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	LastError      string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProfileStore persists vendor profile and business records. Every mutation
// that needs remote mirroring takes its outbox entry in the same call so the
// pair commits in one transaction; a failed local write enqueues nothing.
type ProfileStore interface {
	PutProfileWithOutbox(ctx context.Context, profile domain.Profile, business domain.Business, entry OutboxEntry) (string, error)
	GetProfile(ctx context.Context, profileID string) (domain.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (domain.Profile, error)
	GetBusiness(ctx context.Context, profileID string) (domain.Business, error)
	UpdateProfileEmailWithOutbox(ctx context.Context, profileID string, email string, updatedAt time.Time, entry OutboxEntry) (string, error)
	UpdateProfilePhoneWithOutbox(ctx context.Context, profileID string, phone string, verified bool, updatedAt time.Time, entry OutboxEntry) (string, error)
	UpdateProfilePasswordRefWithOutbox(ctx context.Context, profileID string, passwordRef string, updatedAt time.Time, entry OutboxEntry) (string, error)
	UpdateProfileStatusWithOutbox(ctx context.Context, profileID string, status domain.Status, updatedAt time.Time, entry OutboxEntry) (string, error)
	TombstoneProfileWithOutbox(ctx context.Context, profileID string, deletedAt time.Time, entry OutboxEntry) (string, error)
	SetProfileRemoteID(ctx context.Context, profileID string, remoteID string, updatedAt time.Time) error
	PurgeProfile(ctx context.Context, profileID string) error
}

// OutboxStore manages the deferred-work queue. Leasing is the only way an
// entry becomes leased; acks are guarded by the lease owner so a superseded
// or reclaimed entry cannot be acked by a stale holder.
type OutboxStore interface {
	GetOutboxEntry(ctx context.Context, id string) (OutboxEntry, error)
	ClaimOutboxEntry(ctx context.Context, id string, owner string, now time.Time, leaseTTL time.Duration) (OutboxEntry, error)
	LeaseOutboxEntries(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]OutboxEntry, error)
	MarkOutboxSucceeded(ctx context.Context, id string, owner string, processedAt time.Time) error
	MarkOutboxRetry(ctx context.Context, id string, owner string, nextAttemptAt time.Time, lastError string) error
	MarkOutboxDead(ctx context.Context, id string, owner string, lastError string, processedAt time.Time) error
	ListDeadOutboxEntries(ctx context.Context, limit int) ([]OutboxEntry, error)
	RequeueDeadOutboxEntry(ctx context.Context, id string, now time.Time) error
	DiscardDeadOutboxEntry(ctx context.Context, id string) error
}

// AttemptRecord is one durable sync attempt outcome, kept for operator
// visibility into retries and dead-letters.
type AttemptRecord struct {
	ID           int64
	EntryID      string
	Kind         OutboxKind
	Consumer     string
	Outcome      string
	AttemptCount int
	LastError    string
	CreatedAt    time.Time
}

// AttemptStore persists sync attempt records.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt AttemptRecord) error
	ListAttempts(ctx context.Context, limit int) ([]AttemptRecord, error)
}

// VendorStore is the full persistence surface the coordinator and worker
// share.
type VendorStore interface {
	ProfileStore
	OutboxStore
	AttemptStore
}
