package worker

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

type flakyIdentity struct {
	failures  int
	createErr error
	creates   int
}

func (c *flakyIdentity) CreateIdentity(_ context.Context, _ identity.CreateInput) (string, error) {
	c.creates++
	if c.createErr != nil {
		return "", c.createErr
	}
	if c.creates <= c.failures {
		return "", identity.Unavailable("create", errors.New("503"))
	}
	return fmt.Sprintf("remote-%d", c.creates), nil
}

func (c *flakyIdentity) UpdateEmail(context.Context, string, string) error { return nil }

func (c *flakyIdentity) UpdatePhone(context.Context, string, string) error { return nil }

func (c *flakyIdentity) SetPassword(context.Context, string, string) error { return nil }

func (c *flakyIdentity) SetVerificationFlag(context.Context, string, bool) error { return nil }

func (c *flakyIdentity) DeleteIdentity(context.Context, string) error { return nil }

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestWorker(t *testing.T, client identity.Client, clock *testClock, maxAttempts int) (*Worker, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "vendorsync.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	w, err := New(store, client, Config{
		Consumer:       "worker-test",
		BatchSize:      8,
		LeaseTTL:       30 * time.Second,
		MaxAttempts:    maxAttempts,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  time.Minute,
		CallTimeout:    time.Second,
		Clock:          clock.Now,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return w, store
}

func seedCreateEntry(t *testing.T, store *sqlite.Store, now time.Time) string {
	t.Helper()
	profile := domain.Profile{
		ID:        "vendor-1",
		Email:     "a@x.com",
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	business := domain.Business{ProfileID: "vendor-1", Name: "Corner Bakery", CreatedAt: now, UpdatedAt: now}
	payload, err := domain.EncodePayload(domain.CreateIdentityPayload{Email: "a@x.com", Password: "pw"})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	entry := storage.OutboxEntry{
		ID:            "entry-1",
		Kind:          storage.KindCreateIdentity,
		ProfileID:     "vendor-1",
		PayloadJSON:   payload,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	entryID, err := store.PutProfileWithOutbox(context.Background(), profile, business, entry)
	if err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	return entryID
}

func TestRunOnceRetriesUntilSuccess(t *testing.T) {
	clock := &testClock{now: time.Now().UTC().Truncate(time.Millisecond)}
	client := &flakyIdentity{failures: 2}
	w, store := newTestWorker(t, client, clock, 8)
	ctx := context.Background()
	entryID := seedCreateEntry(t, store, clock.Now())

	// Two failing sweeps, then success once the provider recovers.
	for i := 0; i < 3; i++ {
		handled, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
		if handled != 1 {
			t.Fatalf("sweep %d handled %d entries, want 1", i, handled)
		}
		clock.Advance(5 * time.Minute)
	}

	entry, err := store.GetOutboxEntry(ctx, entryID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != storage.OutboxStatusSucceeded {
		t.Fatalf("entry status = %q, want %q", entry.Status, storage.OutboxStatusSucceeded)
	}

	profile, err := store.GetProfile(ctx, "vendor-1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.RemoteID != "remote-3" {
		t.Fatalf("remote id = %q, want %q", profile.RemoteID, "remote-3")
	}

	attempts, err := store.ListAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(attempts))
	}
	if attempts[0].Outcome != "succeeded" || attempts[0].AttemptCount != 3 {
		t.Fatalf("final attempt = %+v", attempts[0])
	}
}

func TestRunOnceHonorsBackoffSchedule(t *testing.T) {
	clock := &testClock{now: time.Now().UTC().Truncate(time.Millisecond)}
	client := &flakyIdentity{failures: 10}
	w, store := newTestWorker(t, client, clock, 8)
	ctx := context.Background()
	entryID := seedCreateEntry(t, store, clock.Now())

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}

	entry, err := store.GetOutboxEntry(ctx, entryID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	delay := entry.NextAttemptAt.Sub(clock.Now())
	// First retry: base delay plus at most 25% jitter.
	if delay < time.Second || delay > time.Second+250*time.Millisecond {
		t.Fatalf("first retry delay = %v, want within [1s, 1.25s]", delay)
	}

	// Not due yet; an immediate sweep leaves it alone.
	handled, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if handled != 0 {
		t.Fatalf("handled %d entries before due time, want 0", handled)
	}
	if client.creates != 1 {
		t.Fatalf("creates = %d, want 1", client.creates)
	}
}

func TestRunOnceDeadLettersAfterMaxAttempts(t *testing.T) {
	clock := &testClock{now: time.Now().UTC().Truncate(time.Millisecond)}
	client := &flakyIdentity{failures: 100}
	w, store := newTestWorker(t, client, clock, 3)
	ctx := context.Background()
	entryID := seedCreateEntry(t, store, clock.Now())

	for i := 0; i < 3; i++ {
		if _, err := w.RunOnce(ctx); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
		clock.Advance(5 * time.Minute)
	}

	entry, err := store.GetOutboxEntry(ctx, entryID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != storage.OutboxStatusDead {
		t.Fatalf("entry status = %q, want %q", entry.Status, storage.OutboxStatusDead)
	}
	if entry.AttemptCount != 3 {
		t.Fatalf("attempt count = %d, want 3", entry.AttemptCount)
	}
	if client.creates != 3 {
		t.Fatalf("creates = %d, want 3", client.creates)
	}

	// Dead entries never come back on their own.
	clock.Advance(time.Hour)
	handled, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("post-dead sweep: %v", err)
	}
	if handled != 0 {
		t.Fatalf("handled %d entries, want 0", handled)
	}
}

func TestRunOnceDeadLettersRejectionImmediately(t *testing.T) {
	clock := &testClock{now: time.Now().UTC().Truncate(time.Millisecond)}
	client := &flakyIdentity{createErr: identity.Rejected("create", errors.New("email banned"))}
	w, store := newTestWorker(t, client, clock, 8)
	ctx := context.Background()
	entryID := seedCreateEntry(t, store, clock.Now())

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	entry, err := store.GetOutboxEntry(ctx, entryID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != storage.OutboxStatusDead {
		t.Fatalf("entry status = %q, want %q", entry.Status, storage.OutboxStatusDead)
	}
	if client.creates != 1 {
		t.Fatalf("creates = %d, want 1", client.creates)
	}
}

func TestBackoffDelayCapsAtMax(t *testing.T) {
	w, _ := newTestWorker(t, &flakyIdentity{}, &testClock{now: time.Now().UTC()}, 8)

	for attempt := 1; attempt <= 12; attempt++ {
		delay := w.backoffDelay(attempt)
		if delay < time.Second {
			t.Fatalf("attempt %d delay = %v, below base", attempt, delay)
		}
		if delay > time.Minute+15*time.Second {
			t.Fatalf("attempt %d delay = %v, above cap plus jitter", attempt, delay)
		}
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	clock := &testClock{now: time.Now().UTC()}
	w, _ := newTestWorker(t, &flakyIdentity{}, clock, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
