// Package timeouts defines shared timeout constants used across the sync
// core. Centralizing these values prevents drift between the coordinator's
// inline attempt and the worker's replay path.
package timeouts

import "time"

// RemoteIdentityCall caps a single call to the remote identity provider.
// Callers must never wait through a retry cycle, only this one bound.
const RemoteIdentityCall = 4 * time.Second

// GRPCDial caps the wait time when dialing a gRPC peer.
const GRPCDial = 2 * time.Second

// Shutdown limits how long a server waits for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second
