package coordinator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/domain"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/identity"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/storage"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/storage/sqlite"
)

type scriptedIdentity struct {
	createErr error
	updateErr error
	deleteErr error

	creates    []identity.CreateInput
	updates    []string
	flags      []bool
	deletedIDs []string
	nextID     int
}

func (c *scriptedIdentity) CreateIdentity(_ context.Context, input identity.CreateInput) (string, error) {
	c.creates = append(c.creates, input)
	if c.createErr != nil {
		return "", c.createErr
	}
	c.nextID++
	return fmt.Sprintf("remote-%d", c.nextID), nil
}

func (c *scriptedIdentity) UpdateEmail(_ context.Context, remoteID string, email string) error {
	c.updates = append(c.updates, "email:"+remoteID+":"+email)
	return c.updateErr
}

func (c *scriptedIdentity) UpdatePhone(_ context.Context, remoteID string, phone string) error {
	c.updates = append(c.updates, "phone:"+remoteID+":"+phone)
	return c.updateErr
}

func (c *scriptedIdentity) SetPassword(_ context.Context, remoteID string, _ string) error {
	c.updates = append(c.updates, "password:"+remoteID)
	return c.updateErr
}

func (c *scriptedIdentity) SetVerificationFlag(_ context.Context, remoteID string, verified bool) error {
	c.flags = append(c.flags, verified)
	c.updates = append(c.updates, "flag:"+remoteID)
	return c.updateErr
}

func (c *scriptedIdentity) DeleteIdentity(_ context.Context, remoteID string) error {
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deletedIDs = append(c.deletedIDs, remoteID)
	return nil
}

func sequentialIDs(prefix string) func() (string, error) {
	next := 0
	return func() (string, error) {
		next++
		return fmt.Sprintf("%s-%d", prefix, next), nil
	}
}

func newTestCoordinator(t *testing.T, client identity.Client) (*Coordinator, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "vendorsync.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	coord, err := New(store, client, Config{
		InlineTimeout: time.Second,
		LeaseTTL:      30 * time.Second,
		RetryBackoff:  time.Minute,
		IDGenerator:   sequentialIDs("id"),
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return coord, store
}

func createInput() domain.CreateVendorInput {
	return domain.CreateVendorInput{
		Email:        "a@x.com",
		Phone:        "+15550001111",
		Password:     "pw",
		PasswordRef:  "cred-1",
		BusinessName: "Corner Bakery",
		DocumentRefs: []string{"doc-1"},
	}
}

func TestCreateVendorFullSuccess(t *testing.T) {
	client := &scriptedIdentity{}
	coord, store := newTestCoordinator(t, client)
	ctx := context.Background()

	result, err := coord.CreateVendor(ctx, createInput())
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	if result.Partial {
		t.Fatalf("partial = true, reason %q", result.Reason)
	}

	profile, err := store.GetProfile(ctx, result.ProfileID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.RemoteID != "remote-1" {
		t.Fatalf("remote id = %q, want %q", profile.RemoteID, "remote-1")
	}
	if profile.Status != domain.StatusPending {
		t.Fatalf("status = %q, want %q", profile.Status, domain.StatusPending)
	}

	entry, err := store.GetOutboxEntry(ctx, result.EntryID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != storage.OutboxStatusSucceeded {
		t.Fatalf("entry status = %q, want %q", entry.Status, storage.OutboxStatusSucceeded)
	}

	attempts, err := store.ListAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].Outcome != "succeeded" {
		t.Fatalf("attempts = %+v", attempts)
	}
}

func TestCreateVendorPartialOnOutage(t *testing.T) {
	client := &scriptedIdentity{createErr: identity.Unavailable("create", errors.New("503"))}
	coord, store := newTestCoordinator(t, client)
	ctx := context.Background()

	result, err := coord.CreateVendor(ctx, createInput())
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	if !result.Partial {
		t.Fatal("expected partial result")
	}

	// The vendor exists locally despite the remote outage.
	profile, err := store.GetProfile(ctx, result.ProfileID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.RemoteID != "" {
		t.Fatalf("remote id = %q, want empty", profile.RemoteID)
	}

	entry, err := store.GetOutboxEntry(ctx, result.EntryID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != storage.OutboxStatusPending {
		t.Fatalf("entry status = %q, want %q", entry.Status, storage.OutboxStatusPending)
	}
	if entry.AttemptCount != 1 {
		t.Fatalf("attempt count = %d, want 1", entry.AttemptCount)
	}
	if entry.LastError == "" {
		t.Fatal("last error must record the outage")
	}
}

func TestCreateVendorDeadLettersRejection(t *testing.T) {
	client := &scriptedIdentity{createErr: identity.Rejected("create", errors.New("email banned"))}
	coord, store := newTestCoordinator(t, client)
	ctx := context.Background()

	result, err := coord.CreateVendor(ctx, createInput())
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	if !result.Partial {
		t.Fatal("expected partial result")
	}

	entry, err := store.GetOutboxEntry(ctx, result.EntryID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != storage.OutboxStatusDead {
		t.Fatalf("entry status = %q, want %q", entry.Status, storage.OutboxStatusDead)
	}

	dead, err := coord.DeadLetters(ctx, 10)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(dead))
	}
}

func TestCreateVendorLocalFailureIsFatal(t *testing.T) {
	client := &scriptedIdentity{}
	coord, _ := newTestCoordinator(t, client)
	ctx := context.Background()

	if _, err := coord.CreateVendor(ctx, createInput()); err != nil {
		t.Fatalf("first create: %v", err)
	}
	client.creates = nil

	input := createInput()
	input.Phone = "+15550002222"
	_, err := coord.CreateVendor(ctx, input)
	if !errors.Is(err, storage.ErrContactInUse) {
		t.Fatalf("expected contact in use, got %v", err)
	}
	// The remote provider is never consulted when the local write fails.
	if len(client.creates) != 0 {
		t.Fatalf("creates = %d, want 0", len(client.creates))
	}
}

func TestCreateVendorValidatesInput(t *testing.T) {
	coord, _ := newTestCoordinator(t, &scriptedIdentity{})
	input := createInput()
	input.Email = "not-an-email"
	if _, err := coord.CreateVendor(context.Background(), input); !errors.Is(err, domain.ErrInvalidEmail) {
		t.Fatalf("expected invalid email, got %v", err)
	}
}

func TestUpdateEmailSupersedesPendingEntry(t *testing.T) {
	client := &scriptedIdentity{}
	coord, store := newTestCoordinator(t, client)
	ctx := context.Background()

	created, err := coord.CreateVendor(ctx, createInput())
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}

	// First email change fails remotely and stays queued.
	client.updateErr = identity.Unavailable("update email", errors.New("503"))
	first, err := coord.UpdateEmail(ctx, created.ProfileID, "b@x.com")
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if !first.Partial {
		t.Fatal("expected partial result")
	}

	// Second change supersedes the queued entry and succeeds inline.
	client.updateErr = nil
	second, err := coord.UpdateEmail(ctx, created.ProfileID, "c@x.com")
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if second.Partial {
		t.Fatalf("partial = true, reason %q", second.Reason)
	}
	if second.EntryID != first.EntryID {
		t.Fatalf("entry id = %q, want superseded %q", second.EntryID, first.EntryID)
	}

	profile, err := store.GetProfile(ctx, created.ProfileID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.Email != "c@x.com" {
		t.Fatalf("email = %q, want %q", profile.Email, "c@x.com")
	}

	// Only the final email reached the provider.
	last := client.updates[len(client.updates)-1]
	if last != "email:remote-1:c@x.com" {
		t.Fatalf("last update = %q", last)
	}

	entry, err := store.GetOutboxEntry(ctx, second.EntryID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != storage.OutboxStatusSucceeded {
		t.Fatalf("entry status = %q, want %q", entry.Status, storage.OutboxStatusSucceeded)
	}
}

func TestSetStatusMirrorsApprovedFlag(t *testing.T) {
	client := &scriptedIdentity{}
	coord, store := newTestCoordinator(t, client)
	ctx := context.Background()

	created, err := coord.CreateVendor(ctx, createInput())
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}

	result, err := coord.SetStatus(ctx, created.ProfileID, domain.StatusApproved)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if result.Partial {
		t.Fatalf("partial = true, reason %q", result.Reason)
	}
	if len(client.flags) != 1 || !client.flags[0] {
		t.Fatalf("flags = %v, want [true]", client.flags)
	}

	profile, err := store.GetProfile(ctx, created.ProfileID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.Status != domain.StatusApproved {
		t.Fatalf("status = %q, want %q", profile.Status, domain.StatusApproved)
	}
}

func TestSetPasswordSwapsReference(t *testing.T) {
	client := &scriptedIdentity{}
	coord, store := newTestCoordinator(t, client)
	ctx := context.Background()

	created, err := coord.CreateVendor(ctx, createInput())
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}

	result, err := coord.SetPassword(ctx, created.ProfileID, "new-pw", "cred-2")
	if err != nil {
		t.Fatalf("set password: %v", err)
	}
	if result.Partial {
		t.Fatalf("partial = true, reason %q", result.Reason)
	}

	profile, err := store.GetProfile(ctx, created.ProfileID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.PasswordRef != "cred-2" {
		t.Fatalf("password ref = %q, want %q", profile.PasswordRef, "cred-2")
	}
}

func TestDeleteVendorPurgesAfterRemoteConfirm(t *testing.T) {
	client := &scriptedIdentity{}
	coord, store := newTestCoordinator(t, client)
	ctx := context.Background()

	created, err := coord.CreateVendor(ctx, createInput())
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}

	result, err := coord.DeleteVendor(ctx, created.ProfileID)
	if err != nil {
		t.Fatalf("delete vendor: %v", err)
	}
	if result.Partial {
		t.Fatalf("partial = true, reason %q", result.Reason)
	}
	if len(client.deletedIDs) != 1 || client.deletedIDs[0] != "remote-1" {
		t.Fatalf("deleted ids = %v", client.deletedIDs)
	}
	if _, err := store.GetProfile(ctx, created.ProfileID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected profile purged, got %v", err)
	}
}

func TestDeleteVendorTreatsRemoteNotFoundAsSuccess(t *testing.T) {
	client := &scriptedIdentity{}
	coord, store := newTestCoordinator(t, client)
	ctx := context.Background()

	created, err := coord.CreateVendor(ctx, createInput())
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}

	client.deleteErr = identity.NotFound("delete identity")
	result, err := coord.DeleteVendor(ctx, created.ProfileID)
	if err != nil {
		t.Fatalf("delete vendor: %v", err)
	}
	if result.Partial {
		t.Fatalf("partial = true, reason %q", result.Reason)
	}
	if _, err := store.GetProfile(ctx, created.ProfileID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected profile purged, got %v", err)
	}
}

func TestDeleteVendorKeepsTombstoneOnOutage(t *testing.T) {
	client := &scriptedIdentity{}
	coord, store := newTestCoordinator(t, client)
	ctx := context.Background()

	created, err := coord.CreateVendor(ctx, createInput())
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}

	client.deleteErr = identity.Unavailable("delete identity", errors.New("503"))
	result, err := coord.DeleteVendor(ctx, created.ProfileID)
	if err != nil {
		t.Fatalf("delete vendor: %v", err)
	}
	if !result.Partial {
		t.Fatal("expected partial result")
	}

	profile, err := store.GetProfile(ctx, created.ProfileID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if !profile.Tombstoned() {
		t.Fatal("profile must stay tombstoned until remote deletion confirms")
	}

	// A second delete of the tombstoned profile reports not found.
	if _, err := coord.DeleteVendor(ctx, created.ProfileID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRequeueDeadLetter(t *testing.T) {
	client := &scriptedIdentity{createErr: identity.Rejected("create", errors.New("email banned"))}
	coord, store := newTestCoordinator(t, client)
	ctx := context.Background()

	result, err := coord.CreateVendor(ctx, createInput())
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}

	if err := coord.RequeueDeadLetter(ctx, result.EntryID); err != nil {
		t.Fatalf("requeue dead letter: %v", err)
	}
	entry, err := store.GetOutboxEntry(ctx, result.EntryID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != storage.OutboxStatusPending {
		t.Fatalf("entry status = %q, want %q", entry.Status, storage.OutboxStatusPending)
	}

	if err := coord.DiscardDeadLetter(ctx, result.EntryID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found discarding pending entry, got %v", err)
	}
}
