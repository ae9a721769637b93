// Package syncworker parses sync worker command flags and launches the
// worker runtime.
package syncworker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/MoeD-maker/Pinnity-sub001/internal/platform/cmd"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/app"
)

// Config holds sync worker command configuration.
type Config struct {
	Port                int           `env:"PINNITY_SYNC_PORT" envDefault:"8091"`
	DBPath              string        `env:"PINNITY_SYNC_DB_PATH" envDefault:"data/vendorsync.db"`
	Consumer            string        `env:"PINNITY_SYNC_CONSUMER" envDefault:"vendor-sync-worker"`
	PollInterval        time.Duration `env:"PINNITY_SYNC_POLL_INTERVAL" envDefault:"2s"`
	BatchSize           int           `env:"PINNITY_SYNC_BATCH_SIZE" envDefault:"16"`
	LeaseTTL            time.Duration `env:"PINNITY_SYNC_LEASE_TTL" envDefault:"30s"`
	MaxAttempts         int           `env:"PINNITY_SYNC_MAX_ATTEMPTS" envDefault:"8"`
	RetryBaseDelay      time.Duration `env:"PINNITY_SYNC_RETRY_BACKOFF" envDefault:"30s"`
	RetryMaxDelay       time.Duration `env:"PINNITY_SYNC_RETRY_MAX_DELAY" envDefault:"30m"`
	IdentityBaseURL     string        `env:"PINNITY_IDENTITY_BASE_URL"`
	IdentityServiceKey  string        `env:"PINNITY_IDENTITY_SERVICE_KEY"`
	IdentityCallTimeout time.Duration `env:"PINNITY_IDENTITY_CALL_TIMEOUT" envDefault:"4s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The sync worker health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The vendor sync SQLite database path")
	fs.StringVar(&cfg.Consumer, "consumer", cfg.Consumer, "Outbox consumer name")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Outbox poll interval")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Outbox entries leased per sweep")
	fs.DurationVar(&cfg.LeaseTTL, "lease-ttl", cfg.LeaseTTL, "Outbox lease duration")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum processing attempts before dead-letter")
	fs.DurationVar(&cfg.RetryBaseDelay, "retry-backoff", cfg.RetryBaseDelay, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	fs.StringVar(&cfg.IdentityBaseURL, "identity-base-url", cfg.IdentityBaseURL, "Remote identity provider admin base URL")
	fs.DurationVar(&cfg.IdentityCallTimeout, "identity-call-timeout", cfg.IdentityCallTimeout, "Remote identity call timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the sync worker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSyncWorker, func(context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			Port:                cfg.Port,
			DBPath:              cfg.DBPath,
			Consumer:            cfg.Consumer,
			PollInterval:        cfg.PollInterval,
			BatchSize:           cfg.BatchSize,
			LeaseTTL:            cfg.LeaseTTL,
			MaxAttempts:         cfg.MaxAttempts,
			RetryBaseDelay:      cfg.RetryBaseDelay,
			RetryMaxDelay:       cfg.RetryMaxDelay,
			IdentityBaseURL:     cfg.IdentityBaseURL,
			IdentityServiceKey:  cfg.IdentityServiceKey,
			IdentityCallTimeout: cfg.IdentityCallTimeout,
		})
	})
}
