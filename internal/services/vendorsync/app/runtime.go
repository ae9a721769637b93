// Package app wires the vendor sync worker runtime and gRPC lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/identity"
	vendorsqlite "github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/storage/sqlite"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/worker"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig holds the worker runtime configuration.
type RuntimeConfig struct {
	Port                int
	DBPath              string
	Consumer            string
	PollInterval        time.Duration
	BatchSize           int
	LeaseTTL            time.Duration
	MaxAttempts         int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	IdentityBaseURL     string
	IdentityServiceKey  string
	IdentityCallTimeout time.Duration
}

// Server hosts the retry worker with a health gRPC endpoint.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	store      *vendorsqlite.Store
	worker     *worker.Worker
}

// New creates a configured vendor sync server listening on the configured
// port.
func New(cfg RuntimeConfig) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", cfg.Port), cfg)
}

// NewWithAddr creates a configured vendor sync server for the provided
// address.
func NewWithAddr(addr string, cfg RuntimeConfig) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	store, err := openVendorStore(cfg.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	client, err := identity.NewAdminClient(identity.AdminConfig{
		BaseURL:     cfg.IdentityBaseURL,
		ServiceKey:  cfg.IdentityServiceKey,
		CallTimeout: cfg.IdentityCallTimeout,
	})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build identity client: %w", err)
	}

	w, err := worker.New(store, client, worker.Config{
		Consumer:       cfg.Consumer,
		PollInterval:   cfg.PollInterval,
		BatchSize:      cfg.BatchSize,
		LeaseTTL:       cfg.LeaseTTL,
		MaxAttempts:    cfg.MaxAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		CallTimeout:    cfg.IdentityCallTimeout,
	})
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build worker: %w", err)
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		store:      store,
		worker:     w,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Store exposes the underlying store for operator tooling.
func (s *Server) Store() *vendorsqlite.Store {
	if s == nil {
		return nil
	}
	return s.store
}

// Run creates and serves a vendor sync server until context cancellation.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs the health endpoint and the outbox drain loop until context
// cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("vendor sync server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	workerErr := make(chan error, 1)
	go func() {
		workerErr <- s.worker.Run(workerCtx)
	}()

	select {
	case <-ctx.Done():
		if s.health != nil {
			s.health.Shutdown()
		}
		cancelWorker()
		<-workerErr
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		cancelWorker()
		<-workerErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-workerErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("run worker: %w", err)
		}
		return nil
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close vendor sync store: %v", err)
		}
	}
}

func openVendorStore(path string) (*vendorsqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := vendorsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vendor sync sqlite store: %w", err)
	}
	return store, nil
}
