// Package coordinator drives vendor mutations through the local store and
// attempts their remote mirror inline.
//
// Every operation follows the same shape: commit the local write together
// with its outbox entry, then try the remote call once under a hard timeout.
// Only the local commit can fail the operation; a remote failure degrades the
// result to partial and leaves the entry for the retry worker.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/MoeD-maker/Pinnity-sub001/internal/platform/id"
	"github.com/MoeD-maker/Pinnity-sub001/internal/platform/timeouts"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/apply"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/domain"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/identity"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/storage"
)

// Config tunes the coordinator's inline attempt.
type Config struct {
	// InlineTimeout bounds the single remote call made inline with a
	// mutation. Defaults to the platform remote identity call timeout.
	InlineTimeout time.Duration
	// LeaseTTL is how long the coordinator's claim on an entry lives.
	LeaseTTL time.Duration
	// RetryBackoff is the delay before the retry worker first picks up an
	// entry whose inline attempt failed.
	RetryBackoff time.Duration
	// Clock and IDGenerator are injectable for tests; nil values default to
	// time.Now and the platform id generator.
	Clock       func() time.Time
	IDGenerator func() (string, error)
}

func (c Config) normalized() Config {
	if c.InlineTimeout <= 0 {
		c.InlineTimeout = timeouts.RemoteIdentityCall
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 30 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.IDGenerator == nil {
		c.IDGenerator = id.NewID
	}
	return c
}

// Result reports how far a mutation got. The local write always succeeded
// when error is nil; Partial marks remote work still pending (or dead).
type Result struct {
	ProfileID string
	EntryID   string
	Partial   bool
	Reason    string
}

// Coordinator owns the write path for vendor profiles.
type Coordinator struct {
	store   storage.VendorStore
	applier *apply.Applier
	cfg     Config
	owner   string
}

// New builds a Coordinator over the given store and identity client.
func New(store storage.VendorStore, client identity.Client, cfg Config) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if client == nil {
		return nil, fmt.Errorf("identity client is required")
	}
	cfg = cfg.normalized()

	ownerID, err := cfg.IDGenerator()
	if err != nil {
		return nil, fmt.Errorf("generate coordinator id: %w", err)
	}
	return &Coordinator{
		store:   store,
		applier: apply.New(store, client, cfg.Clock),
		cfg:     cfg,
		owner:   "coordinator-" + ownerID,
	}, nil
}

// CreateVendor registers a vendor locally and attempts remote identity
// creation inline.
func (c *Coordinator) CreateVendor(ctx context.Context, input domain.CreateVendorInput) (Result, error) {
	if err := c.ready(ctx); err != nil {
		return Result{}, err
	}

	profile, business, err := domain.CreateVendor(input, c.cfg.Clock, c.cfg.IDGenerator)
	if err != nil {
		return Result{}, err
	}

	payload, err := domain.EncodePayload(domain.CreateIdentityPayload{
		Email:         profile.Email,
		Password:      input.Password,
		Phone:         profile.Phone,
		PhoneVerified: profile.PhoneVerified,
	})
	if err != nil {
		return Result{}, err
	}
	entry, err := c.newEntry(storage.KindCreateIdentity, profile.ID, payload)
	if err != nil {
		return Result{}, err
	}

	entryID, err := c.store.PutProfileWithOutbox(ctx, profile, business, entry)
	if err != nil {
		return Result{}, err
	}
	return c.attemptInline(ctx, profile.ID, entryID), nil
}

// UpdateEmail changes a vendor's email locally and mirrors it inline.
func (c *Coordinator) UpdateEmail(ctx context.Context, profileID string, email string) (Result, error) {
	if err := c.ready(ctx); err != nil {
		return Result{}, err
	}
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return Result{}, err
	}
	payload, err := domain.EncodePayload(domain.UpdateEmailPayload{Email: normalized})
	if err != nil {
		return Result{}, err
	}
	entry, err := c.newEntry(storage.KindUpdateEmail, profileID, payload)
	if err != nil {
		return Result{}, err
	}

	entryID, err := c.store.UpdateProfileEmailWithOutbox(ctx, profileID, normalized, c.now(), entry)
	if err != nil {
		return Result{}, err
	}
	return c.attemptInline(ctx, profileID, entryID), nil
}

// UpdatePhone changes a vendor's phone and its verification flag locally and
// mirrors the phone inline.
func (c *Coordinator) UpdatePhone(ctx context.Context, profileID string, phone string, verified bool) (Result, error) {
	if err := c.ready(ctx); err != nil {
		return Result{}, err
	}
	normalized, err := domain.NormalizePhone(phone)
	if err != nil {
		return Result{}, err
	}
	payload, err := domain.EncodePayload(domain.UpdatePhonePayload{Phone: normalized})
	if err != nil {
		return Result{}, err
	}
	entry, err := c.newEntry(storage.KindUpdatePhone, profileID, payload)
	if err != nil {
		return Result{}, err
	}

	entryID, err := c.store.UpdateProfilePhoneWithOutbox(ctx, profileID, normalized, verified, c.now(), entry)
	if err != nil {
		return Result{}, err
	}
	return c.attemptInline(ctx, profileID, entryID), nil
}

// SetPassword swaps the local credential reference and forwards the new
// password to the remote provider inline. The password itself is never
// persisted locally; only the outbox payload carries it until replay.
func (c *Coordinator) SetPassword(ctx context.Context, profileID string, password string, passwordRef string) (Result, error) {
	if err := c.ready(ctx); err != nil {
		return Result{}, err
	}
	payload, err := domain.EncodePayload(domain.SetPasswordPayload{Password: password})
	if err != nil {
		return Result{}, err
	}
	entry, err := c.newEntry(storage.KindSetPassword, profileID, payload)
	if err != nil {
		return Result{}, err
	}

	entryID, err := c.store.UpdateProfilePasswordRefWithOutbox(ctx, profileID, passwordRef, c.now(), entry)
	if err != nil {
		return Result{}, err
	}
	return c.attemptInline(ctx, profileID, entryID), nil
}

// SetStatus moves a vendor's review status locally and mirrors the approved
// flag to remote metadata inline.
func (c *Coordinator) SetStatus(ctx context.Context, profileID string, status domain.Status) (Result, error) {
	if err := c.ready(ctx); err != nil {
		return Result{}, err
	}
	parsed, err := domain.ParseStatus(string(status))
	if err != nil {
		return Result{}, err
	}
	payload, err := domain.EncodePayload(domain.SetStatusPayload{Verified: parsed == domain.StatusApproved})
	if err != nil {
		return Result{}, err
	}
	entry, err := c.newEntry(storage.KindSetStatus, profileID, payload)
	if err != nil {
		return Result{}, err
	}

	entryID, err := c.store.UpdateProfileStatusWithOutbox(ctx, profileID, parsed, c.now(), entry)
	if err != nil {
		return Result{}, err
	}
	return c.attemptInline(ctx, profileID, entryID), nil
}

// DeleteVendor tombstones a vendor locally and attempts remote deletion
// inline. The profile row is purged only once the remote side confirms.
func (c *Coordinator) DeleteVendor(ctx context.Context, profileID string) (Result, error) {
	if err := c.ready(ctx); err != nil {
		return Result{}, err
	}

	profile, err := c.store.GetProfile(ctx, profileID)
	if err != nil {
		return Result{}, err
	}
	if profile.Tombstoned() {
		return Result{}, storage.ErrNotFound
	}

	payload, err := domain.EncodePayload(domain.DeleteIdentityPayload{
		RemoteID: profile.RemoteID,
		Email:    profile.Email,
	})
	if err != nil {
		return Result{}, err
	}
	entry, err := c.newEntry(storage.KindDeleteIdentity, profileID, payload)
	if err != nil {
		return Result{}, err
	}

	entryID, err := c.store.TombstoneProfileWithOutbox(ctx, profileID, c.now(), entry)
	if err != nil {
		return Result{}, err
	}
	return c.attemptInline(ctx, profileID, entryID), nil
}

// GetVendor returns a vendor profile with its business record.
func (c *Coordinator) GetVendor(ctx context.Context, profileID string) (domain.Profile, domain.Business, error) {
	if err := c.ready(ctx); err != nil {
		return domain.Profile{}, domain.Business{}, err
	}
	profile, err := c.store.GetProfile(ctx, profileID)
	if err != nil {
		return domain.Profile{}, domain.Business{}, err
	}
	business, err := c.store.GetBusiness(ctx, profileID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return domain.Profile{}, domain.Business{}, err
	}
	return profile, business, nil
}

// DeadLetters lists dead outbox entries for operator review.
func (c *Coordinator) DeadLetters(ctx context.Context, limit int) ([]storage.OutboxEntry, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	return c.store.ListDeadOutboxEntries(ctx, limit)
}

// RequeueDeadLetter sends a dead entry back to the retry worker.
func (c *Coordinator) RequeueDeadLetter(ctx context.Context, entryID string) error {
	if err := c.ready(ctx); err != nil {
		return err
	}
	return c.store.RequeueDeadOutboxEntry(ctx, entryID, c.now())
}

// DiscardDeadLetter drops a dead entry for good.
func (c *Coordinator) DiscardDeadLetter(ctx context.Context, entryID string) error {
	if err := c.ready(ctx); err != nil {
		return err
	}
	return c.store.DiscardDeadOutboxEntry(ctx, entryID)
}

func (c *Coordinator) ready(ctx context.Context) error {
	if c == nil || c.store == nil || c.applier == nil {
		return fmt.Errorf("coordinator is not initialized")
	}
	return ctx.Err()
}

func (c *Coordinator) now() time.Time {
	return c.cfg.Clock().UTC()
}

func (c *Coordinator) newEntry(kind storage.OutboxKind, profileID string, payloadJSON string) (storage.OutboxEntry, error) {
	entryID, err := c.cfg.IDGenerator()
	if err != nil {
		return storage.OutboxEntry{}, fmt.Errorf("generate entry id: %w", err)
	}
	now := c.now()
	return storage.OutboxEntry{
		ID:            entryID,
		Kind:          kind,
		ProfileID:     profileID,
		PayloadJSON:   payloadJSON,
		Status:        storage.OutboxStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// attemptInline claims the freshly committed entry and tries the remote call
// once. Whatever happens here, the local write already succeeded: failures
// only degrade the result to partial.
func (c *Coordinator) attemptInline(ctx context.Context, profileID string, entryID string) Result {
	result := Result{ProfileID: profileID, EntryID: entryID}

	now := c.now()
	entry, err := c.store.ClaimOutboxEntry(ctx, entryID, c.owner, now, c.cfg.LeaseTTL)
	if err != nil {
		// Someone else holds the entry; the retry worker will finish it.
		result.Partial = true
		result.Reason = "sync deferred"
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.InlineTimeout)
	applyErr := c.applier.Apply(callCtx, entry)
	cancel()

	ackTime := c.now()
	switch {
	case applyErr == nil:
		if err := c.store.MarkOutboxSucceeded(ctx, entryID, c.owner, ackTime); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("mark outbox entry %s succeeded: %v", entryID, err)
		}
		c.recordAttempt(ctx, entry, "succeeded", "")
	case apply.IsPermanent(applyErr):
		if err := c.store.MarkOutboxDead(ctx, entryID, c.owner, applyErr.Error(), ackTime); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("mark outbox entry %s dead: %v", entryID, err)
		}
		c.recordAttempt(ctx, entry, "dead", applyErr.Error())
		result.Partial = true
		result.Reason = applyErr.Error()
	default:
		nextAttempt := ackTime.Add(c.cfg.RetryBackoff)
		if err := c.store.MarkOutboxRetry(ctx, entryID, c.owner, nextAttempt, applyErr.Error()); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("mark outbox entry %s for retry: %v", entryID, err)
		}
		c.recordAttempt(ctx, entry, "retry", applyErr.Error())
		result.Partial = true
		result.Reason = applyErr.Error()
	}
	return result
}

func (c *Coordinator) recordAttempt(ctx context.Context, entry storage.OutboxEntry, outcome string, lastError string) {
	attempt := storage.AttemptRecord{
		EntryID:      entry.ID,
		Kind:         entry.Kind,
		Consumer:     c.owner,
		Outcome:      outcome,
		AttemptCount: entry.AttemptCount + 1,
		LastError:    lastError,
		CreatedAt:    c.now(),
	}
	if err := c.store.RecordAttempt(ctx, attempt); err != nil {
		log.Printf("record attempt for entry %s: %v", entry.ID, err)
	}
}
