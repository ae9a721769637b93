// Package identity abstracts the remote identity provider behind a client
// interface with a three-way failure taxonomy. The provider is treated as an
// unreliable network dependency: every failure is classified so callers can
// decide between retrying, dead-lettering, and re-creating.
package identity

import (
	"context"
	"errors"
	"fmt"
)

// CreateInput carries the data the provider needs to mint an identity.
// Creation is idempotent by email: the provider deduplicates, and clients
// must resolve a duplicate to the existing identity id.
type CreateInput struct {
	Email         string
	Password      string
	Phone         string
	PhoneVerified bool
}

// Client is the remote identity provider contract. Implementations must be
// safe for replay: applying the same logical operation twice leaves the
// remote side in the same state as applying it once.
type Client interface {
	CreateIdentity(ctx context.Context, input CreateInput) (string, error)
	UpdateEmail(ctx context.Context, remoteID string, email string) error
	UpdatePhone(ctx context.Context, remoteID string, phone string) error
	SetPassword(ctx context.Context, remoteID string, password string) error
	SetVerificationFlag(ctx context.Context, remoteID string, verified bool) error
	DeleteIdentity(ctx context.Context, remoteID string) error
}

// FailureKind classifies a provider failure.
type FailureKind string

const (
	// FailureUnavailable covers network errors, timeouts, and provider
	// outages. Retryable.
	FailureUnavailable FailureKind = "unavailable"
	// FailureRejected covers remote-side validation failures. Not
	// retryable; requires operator intervention.
	FailureRejected FailureKind = "rejected"
	// FailureNotFound means the remote identity no longer exists.
	FailureNotFound FailureKind = "not_found"
)

// Failure is a classified provider error.
type Failure struct {
	Kind  FailureKind
	Op    string
	cause error
}

func (f *Failure) Error() string {
	if f.cause == nil {
		return fmt.Sprintf("%s: identity provider %s", f.Op, f.Kind)
	}
	return fmt.Sprintf("%s: identity provider %s: %v", f.Op, f.Kind, f.cause)
}

func (f *Failure) Unwrap() error {
	return f.cause
}

// Unavailable wraps err as a retryable provider failure.
func Unavailable(op string, cause error) error {
	return &Failure{Kind: FailureUnavailable, Op: op, cause: cause}
}

// Rejected wraps err as a non-retryable provider failure.
func Rejected(op string, cause error) error {
	return &Failure{Kind: FailureRejected, Op: op, cause: cause}
}

// NotFound reports a missing remote identity.
func NotFound(op string) error {
	return &Failure{Kind: FailureNotFound, Op: op}
}

func kindOf(err error) (FailureKind, bool) {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind, true
	}
	return "", false
}

// IsUnavailable reports whether err is a retryable provider failure. Errors
// with no classification are treated as unavailable so unknown conditions
// retry rather than dead-letter.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	kind, ok := kindOf(err)
	return !ok || kind == FailureUnavailable
}

// IsRejected reports whether err is a non-retryable provider failure.
func IsRejected(err error) bool {
	kind, ok := kindOf(err)
	return ok && kind == FailureRejected
}

// IsNotFound reports whether err means the remote identity is gone.
func IsNotFound(err error) bool {
	kind, ok := kindOf(err)
	return ok && kind == FailureNotFound
}
