// Package worker drains the vendor sync outbox in the background.
//
// The worker leases due entries, replays them against the identity provider,
// and acks each outcome: success, scheduled retry with exponential backoff,
// or dead-letter once the attempt budget is spent.
package worker

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/MoeD-maker/Pinnity-sub001/internal/platform/timeouts"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/apply"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/identity"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/storage"
)

// Config tunes the retry worker.
type Config struct {
	// Consumer identifies this worker in lease ownership and attempt records.
	Consumer string
	// PollInterval is how often the worker sweeps for due entries.
	PollInterval time.Duration
	// BatchSize caps how many entries one sweep leases.
	BatchSize int
	// LeaseTTL is how long a leased entry stays claimed before a crashed
	// worker's entries become reclaimable.
	LeaseTTL time.Duration
	// MaxAttempts is the total attempt budget before dead-lettering.
	MaxAttempts int
	// RetryBaseDelay seeds the exponential backoff between attempts.
	RetryBaseDelay time.Duration
	// RetryMaxDelay caps the backoff growth.
	RetryMaxDelay time.Duration
	// CallTimeout bounds each remote call.
	CallTimeout time.Duration
	// Clock is injectable for tests; nil defaults to time.Now.
	Clock func() time.Time
}

func (c Config) normalized() Config {
	if c.Consumer == "" {
		c.Consumer = "vendor-sync-worker"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 30 * time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Minute
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = timeouts.RemoteIdentityCall
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Worker drains due outbox entries until its context ends.
type Worker struct {
	store   storage.VendorStore
	applier *apply.Applier
	cfg     Config
}

// New builds a Worker over the given store and identity client.
func New(store storage.VendorStore, client identity.Client, cfg Config) (*Worker, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if client == nil {
		return nil, fmt.Errorf("identity client is required")
	}
	cfg = cfg.normalized()
	return &Worker{
		store:   store,
		applier: apply.New(store, client, cfg.Clock),
		cfg:     cfg,
	}, nil
}

// Run polls for due entries until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.store == nil {
		return fmt.Errorf("worker is not initialized")
	}
	log.Printf("vendor sync worker %s polling every %s", w.cfg.Consumer, w.cfg.PollInterval)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("outbox sweep: %v", err)
			}
		}
	}
}

// RunOnce leases one batch of due entries and processes them. Returns how
// many entries were handled.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	if w == nil || w.store == nil {
		return 0, fmt.Errorf("worker is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := w.cfg.Clock().UTC()
	entries, err := w.store.LeaseOutboxEntries(ctx, w.cfg.Consumer, w.cfg.BatchSize, now, w.cfg.LeaseTTL)
	if err != nil {
		return 0, fmt.Errorf("lease outbox entries: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		w.processEntry(ctx, entry)
	}
	return len(entries), nil
}

func (w *Worker) processEntry(ctx context.Context, entry storage.OutboxEntry) {
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	applyErr := w.applier.Apply(callCtx, entry)
	cancel()

	now := w.cfg.Clock().UTC()
	attempt := entry.AttemptCount + 1

	switch {
	case applyErr == nil:
		if err := w.store.MarkOutboxSucceeded(ctx, entry.ID, w.cfg.Consumer, now); err != nil {
			log.Printf("mark outbox entry %s succeeded: %v", entry.ID, err)
			return
		}
		w.recordAttempt(ctx, entry, attempt, "succeeded", "")
	case apply.IsPermanent(applyErr):
		if err := w.store.MarkOutboxDead(ctx, entry.ID, w.cfg.Consumer, applyErr.Error(), now); err != nil {
			log.Printf("mark outbox entry %s dead: %v", entry.ID, err)
			return
		}
		w.recordAttempt(ctx, entry, attempt, "dead", applyErr.Error())
		log.Printf("outbox entry %s (%s) dead-lettered: %v", entry.ID, entry.Kind, applyErr)
	case attempt >= w.cfg.MaxAttempts:
		message := fmt.Sprintf("attempt budget exhausted: %v", applyErr)
		if err := w.store.MarkOutboxDead(ctx, entry.ID, w.cfg.Consumer, message, now); err != nil {
			log.Printf("mark outbox entry %s dead: %v", entry.ID, err)
			return
		}
		w.recordAttempt(ctx, entry, attempt, "dead", message)
		log.Printf("outbox entry %s (%s) dead-lettered after %d attempts: %v", entry.ID, entry.Kind, attempt, applyErr)
	default:
		nextAttempt := now.Add(w.backoffDelay(attempt))
		if err := w.store.MarkOutboxRetry(ctx, entry.ID, w.cfg.Consumer, nextAttempt, applyErr.Error()); err != nil {
			log.Printf("mark outbox entry %s for retry: %v", entry.ID, err)
			return
		}
		w.recordAttempt(ctx, entry, attempt, "retry", applyErr.Error())
	}
}

// backoffDelay doubles the base delay per attempt, caps it, and spreads
// retries with up to 25% jitter so synchronized workers fan out.
func (w *Worker) backoffDelay(attempt int) time.Duration {
	delay := w.cfg.RetryBaseDelay
	for i := 1; i < attempt && delay < w.cfg.RetryMaxDelay; i++ {
		delay *= 2
	}
	if delay > w.cfg.RetryMaxDelay {
		delay = w.cfg.RetryMaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

func (w *Worker) recordAttempt(ctx context.Context, entry storage.OutboxEntry, attempt int, outcome string, lastError string) {
	record := storage.AttemptRecord{
		EntryID:      entry.ID,
		Kind:         entry.Kind,
		Consumer:     w.cfg.Consumer,
		Outcome:      outcome,
		AttemptCount: attempt,
		LastError:    lastError,
		CreatedAt:    w.cfg.Clock().UTC(),
	}
	if err := w.store.RecordAttempt(ctx, record); err != nil {
		log.Printf("record attempt for entry %s: %v", entry.ID, err)
	}
}
