package synctool

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/domain"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/storage"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/storage/sqlite"
)

func seedDeadEntry(t *testing.T, dbPath string) string {
	t.Helper()
	store, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	profile := domain.Profile{
		ID:        "vendor-1",
		Email:     "a@x.com",
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	business := domain.Business{ProfileID: "vendor-1", Name: "Corner Bakery", CreatedAt: now, UpdatedAt: now}
	entry := storage.OutboxEntry{
		ID:            "entry-1",
		Kind:          storage.KindCreateIdentity,
		ProfileID:     "vendor-1",
		PayloadJSON:   `{"email":"a@x.com"}`,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	entryID, err := store.PutProfileWithOutbox(ctx, profile, business, entry)
	if err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	if _, err := store.ClaimOutboxEntry(ctx, entryID, "seed", now, 30*time.Second); err != nil {
		t.Fatalf("claim entry: %v", err)
	}
	if err := store.MarkOutboxDead(ctx, entryID, "seed", "email rejected by provider", now); err != nil {
		t.Fatalf("mark dead: %v", err)
	}
	return entryID
}

func TestParseConfigRequiresAction(t *testing.T) {
	fs := flag.NewFlagSet("synctool", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if err := Run(context.Background(), cfg, nil, nil); err == nil {
		t.Fatal("expected error without an action flag")
	}
}

func TestRunRejectsCombinedActions(t *testing.T) {
	cfg := Config{DBPath: "ignored.db", DeadReport: true, RequeueID: "entry-1", Limit: 10}
	if err := Run(context.Background(), cfg, nil, nil); err == nil {
		t.Fatal("expected error for combined actions")
	}
}

func TestDeadReportListsEntries(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "vendorsync.db")
	entryID := seedDeadEntry(t, dbPath)

	var out bytes.Buffer
	cfg := Config{DBPath: dbPath, DeadReport: true, Limit: 10}
	if err := Run(context.Background(), cfg, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), entryID) {
		t.Fatalf("output missing entry id: %q", out.String())
	}
	if !strings.Contains(out.String(), "email rejected by provider") {
		t.Fatalf("output missing last error: %q", out.String())
	}
}

func TestDeadReportJSON(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "vendorsync.db")
	seedDeadEntry(t, dbPath)

	var out bytes.Buffer
	cfg := Config{DBPath: dbPath, DeadReport: true, Limit: 10, JSONOutput: true}
	if err := Run(context.Background(), cfg, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), `"kind": "create_identity"`) {
		t.Fatalf("output missing kind field: %q", out.String())
	}
}

func TestRequeueDeadEntry(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "vendorsync.db")
	entryID := seedDeadEntry(t, dbPath)

	var out bytes.Buffer
	cfg := Config{DBPath: dbPath, RequeueID: entryID, Limit: 10}
	if err := Run(context.Background(), cfg, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	store, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.Close() }()
	entry, err := store.GetOutboxEntry(context.Background(), entryID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != storage.OutboxStatusPending {
		t.Fatalf("entry status = %q, want %q", entry.Status, storage.OutboxStatusPending)
	}
}

func TestDiscardDeadEntry(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "vendorsync.db")
	entryID := seedDeadEntry(t, dbPath)

	cfg := Config{DBPath: dbPath, DiscardID: entryID, Limit: 10}
	if err := Run(context.Background(), cfg, nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	store, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.Close() }()
	if _, err := store.GetOutboxEntry(context.Background(), entryID); err == nil {
		t.Fatal("expected entry gone")
	}
}

func TestRequeueMissingEntryFails(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "vendorsync.db")
	seedDeadEntry(t, dbPath)

	cfg := Config{DBPath: dbPath, RequeueID: "missing", Limit: 10}
	if err := Run(context.Background(), cfg, nil, nil); err == nil {
		t.Fatal("expected error for missing entry")
	}
}
