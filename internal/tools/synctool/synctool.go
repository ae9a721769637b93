// Package synctool provides operator utilities for the vendor sync outbox.
//
// It reports dead-lettered entries and the attempt journal, and requeues or
// discards individual dead entries after an operator reviewed them.
package synctool

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/storage/sqlite"
	"github.com/caarlos0/env/v11"
)

// Config holds sync tool command configuration.
type Config struct {
	DBPath        string        `env:"PINNITY_SYNC_DB_PATH"`
	Timeout       time.Duration `env:"PINNITY_SYNCTOOL_TIMEOUT" envDefault:"1m"`
	DeadReport    bool
	AttemptReport bool
	Limit         int
	RequeueID     string
	DiscardID     string
	JSONOutput    bool
}

type envConfig struct {
	DBPath  string        `env:"PINNITY_SYNC_DB_PATH"`
	Timeout time.Duration `env:"PINNITY_SYNCTOOL_TIMEOUT" envDefault:"1m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		DBPath:  envCfg.DBPath,
		Timeout: envCfg.Timeout,
		Limit:   50,
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join("data", "vendorsync.db")
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to vendor sync sqlite database (default: PINNITY_SYNC_DB_PATH or data/vendorsync.db)")
	fs.BoolVar(&cfg.DeadReport, "dead-report", false, "list dead-lettered outbox entries")
	fs.BoolVar(&cfg.AttemptReport, "attempts-report", false, "list recent sync attempt records")
	fs.IntVar(&cfg.Limit, "limit", cfg.Limit, "max rows to print")
	fs.StringVar(&cfg.RequeueID, "requeue", "", "entry id of one dead outbox entry to requeue")
	fs.StringVar(&cfg.DiscardID, "discard", "", "entry id of one dead outbox entry to discard")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the sync tool command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	cfg.RequeueID = strings.TrimSpace(cfg.RequeueID)
	cfg.DiscardID = strings.TrimSpace(cfg.DiscardID)

	actions := 0
	for _, enabled := range []bool{cfg.DeadReport, cfg.AttemptReport, cfg.RequeueID != "", cfg.DiscardID != ""} {
		if enabled {
			actions++
		}
	}
	if actions == 0 {
		return errors.New("one of -dead-report, -attempts-report, -requeue, or -discard is required")
	}
	if actions > 1 {
		return errors.New("-dead-report, -attempts-report, -requeue, and -discard are mutually exclusive")
	}
	if cfg.Limit <= 0 {
		return errors.New("-limit must be > 0")
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open vendor sync store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(errOut, "close store: %v\n", err)
		}
	}()

	switch {
	case cfg.RequeueID != "":
		if err := store.RequeueDeadOutboxEntry(ctx, cfg.RequeueID, time.Now().UTC()); err != nil {
			return fmt.Errorf("requeue entry %s: %w", cfg.RequeueID, err)
		}
		fmt.Fprintf(out, "requeued %s\n", cfg.RequeueID)
		return nil
	case cfg.DiscardID != "":
		if err := store.DiscardDeadOutboxEntry(ctx, cfg.DiscardID); err != nil {
			return fmt.Errorf("discard entry %s: %w", cfg.DiscardID, err)
		}
		fmt.Fprintf(out, "discarded %s\n", cfg.DiscardID)
		return nil
	case cfg.DeadReport:
		return reportDead(ctx, store, cfg, out)
	default:
		return reportAttempts(ctx, store, cfg, out)
	}
}

func reportDead(ctx context.Context, store *sqlite.Store, cfg Config, out io.Writer) error {
	entries, err := store.ListDeadOutboxEntries(ctx, cfg.Limit)
	if err != nil {
		return fmt.Errorf("list dead entries: %w", err)
	}

	if cfg.JSONOutput {
		type deadRow struct {
			ID           string `json:"id"`
			Kind         string `json:"kind"`
			ProfileID    string `json:"profile_id"`
			AttemptCount int    `json:"attempt_count"`
			LastError    string `json:"last_error"`
			UpdatedAt    string `json:"updated_at"`
		}
		rows := make([]deadRow, 0, len(entries))
		for _, entry := range entries {
			rows = append(rows, deadRow{
				ID:           entry.ID,
				Kind:         string(entry.Kind),
				ProfileID:    entry.ProfileID,
				AttemptCount: entry.AttemptCount,
				LastError:    entry.LastError,
				UpdatedAt:    entry.UpdatedAt.Format(time.RFC3339),
			})
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	}

	fmt.Fprintf(out, "dead outbox entries: %d\n", len(entries))
	for _, entry := range entries {
		fmt.Fprintf(out, "%s kind=%s profile=%s attempts=%d error=%q\n",
			entry.ID, entry.Kind, entry.ProfileID, entry.AttemptCount, entry.LastError)
	}
	return nil
}

func reportAttempts(ctx context.Context, store *sqlite.Store, cfg Config, out io.Writer) error {
	attempts, err := store.ListAttempts(ctx, cfg.Limit)
	if err != nil {
		return fmt.Errorf("list attempts: %w", err)
	}

	if cfg.JSONOutput {
		type attemptRow struct {
			EntryID      string `json:"entry_id"`
			Kind         string `json:"kind"`
			Consumer     string `json:"consumer"`
			Outcome      string `json:"outcome"`
			AttemptCount int    `json:"attempt_count"`
			LastError    string `json:"last_error,omitempty"`
			CreatedAt    string `json:"created_at"`
		}
		rows := make([]attemptRow, 0, len(attempts))
		for _, attempt := range attempts {
			rows = append(rows, attemptRow{
				EntryID:      attempt.EntryID,
				Kind:         string(attempt.Kind),
				Consumer:     attempt.Consumer,
				Outcome:      attempt.Outcome,
				AttemptCount: attempt.AttemptCount,
				LastError:    attempt.LastError,
				CreatedAt:    attempt.CreatedAt.Format(time.RFC3339),
			})
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	}

	fmt.Fprintf(out, "sync attempts: %d\n", len(attempts))
	for _, attempt := range attempts {
		fmt.Fprintf(out, "%s entry=%s kind=%s consumer=%s outcome=%s attempt=%d\n",
			attempt.CreatedAt.Format(time.RFC3339), attempt.EntryID, attempt.Kind,
			attempt.Consumer, attempt.Outcome, attempt.AttemptCount)
	}
	return nil
}
