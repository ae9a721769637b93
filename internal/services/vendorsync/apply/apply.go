// Package apply executes outbox entries against the remote identity provider.
//
// The coordinator and the retry worker share this logic: both lease an entry,
// run Apply, and ack the outcome. Apply itself never touches entry status.
package apply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/domain"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/identity"
	"github.com/MoeD-maker/Pinnity-sub001/internal/services/vendorsync/storage"
)

type permanentError struct {
	cause error
}

func (e *permanentError) Error() string {
	return e.cause.Error()
}

func (e *permanentError) Unwrap() error {
	return e.cause
}

// Permanent marks an error as non-retryable regardless of its identity
// classification. Malformed payloads and unknown kinds land here.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{cause: err}
}

// IsPermanent reports whether an entry must dead-letter without further
// retries: explicit Permanent errors and remote rejections.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var permanent *permanentError
	if errors.As(err, &permanent) {
		return true
	}
	return identity.IsRejected(err)
}

// Store is the persistence surface Apply needs.
type Store interface {
	GetProfile(ctx context.Context, profileID string) (domain.Profile, error)
	SetProfileRemoteID(ctx context.Context, profileID string, remoteID string, updatedAt time.Time) error
	PurgeProfile(ctx context.Context, profileID string) error
}

// Applier replays one outbox entry against the identity provider.
type Applier struct {
	store    Store
	identity identity.Client
	clock    func() time.Time
}

// New returns an Applier. A nil clock defaults to time.Now.
func New(store Store, client identity.Client, clock func() time.Time) *Applier {
	if clock == nil {
		clock = time.Now
	}
	return &Applier{store: store, identity: client, clock: clock}
}

// Apply executes the remote operation an entry describes. A nil return means
// the entry is done; identity failures pass through for the caller to
// classify, and Permanent errors must dead-letter.
func (a *Applier) Apply(ctx context.Context, entry storage.OutboxEntry) error {
	if a == nil || a.store == nil || a.identity == nil {
		return fmt.Errorf("applier is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	switch entry.Kind {
	case storage.KindCreateIdentity:
		return a.applyCreate(ctx, entry)
	case storage.KindUpdateEmail:
		var payload domain.UpdateEmailPayload
		if err := domain.DecodePayload(entry.PayloadJSON, &payload); err != nil {
			return Permanent(err)
		}
		return a.applyUpdate(ctx, entry.ProfileID, func(remoteID string) error {
			return a.identity.UpdateEmail(ctx, remoteID, payload.Email)
		})
	case storage.KindUpdatePhone:
		var payload domain.UpdatePhonePayload
		if err := domain.DecodePayload(entry.PayloadJSON, &payload); err != nil {
			return Permanent(err)
		}
		return a.applyUpdate(ctx, entry.ProfileID, func(remoteID string) error {
			return a.identity.UpdatePhone(ctx, remoteID, payload.Phone)
		})
	case storage.KindSetPassword:
		var payload domain.SetPasswordPayload
		if err := domain.DecodePayload(entry.PayloadJSON, &payload); err != nil {
			return Permanent(err)
		}
		return a.applyUpdate(ctx, entry.ProfileID, func(remoteID string) error {
			return a.identity.SetPassword(ctx, remoteID, payload.Password)
		})
	case storage.KindSetStatus:
		var payload domain.SetStatusPayload
		if err := domain.DecodePayload(entry.PayloadJSON, &payload); err != nil {
			return Permanent(err)
		}
		return a.applyUpdate(ctx, entry.ProfileID, func(remoteID string) error {
			return a.identity.SetVerificationFlag(ctx, remoteID, payload.Verified)
		})
	case storage.KindDeleteIdentity:
		return a.applyDelete(ctx, entry)
	default:
		return Permanent(fmt.Errorf("unknown outbox kind %q", entry.Kind))
	}
}

func (a *Applier) applyCreate(ctx context.Context, entry storage.OutboxEntry) error {
	var payload domain.CreateIdentityPayload
	if err := domain.DecodePayload(entry.PayloadJSON, &payload); err != nil {
		return Permanent(err)
	}

	profile, err := a.store.GetProfile(ctx, entry.ProfileID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// The profile vanished before creation replayed; nothing to
			// mirror.
			return nil
		}
		return err
	}
	if profile.Tombstoned() {
		// The delete entry owns this profile's remote state now.
		return nil
	}
	if profile.RemoteID != "" {
		return nil
	}

	remoteID, err := a.identity.CreateIdentity(ctx, identity.CreateInput{
		Email:         payload.Email,
		Password:      payload.Password,
		Phone:         payload.Phone,
		PhoneVerified: payload.PhoneVerified,
	})
	if err != nil {
		return err
	}
	return a.store.SetProfileRemoteID(ctx, entry.ProfileID, remoteID, a.clock().UTC())
}

// applyUpdate runs one remote mutation against a profile's identity, creating
// the identity first if the profile never got one, and re-creating it when the
// provider reports it gone.
func (a *Applier) applyUpdate(ctx context.Context, profileID string, op func(remoteID string) error) error {
	profile, err := a.store.GetProfile(ctx, profileID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	if profile.Tombstoned() {
		return nil
	}

	remoteID := profile.RemoteID
	if remoteID == "" {
		remoteID, err = a.healRemoteIdentity(ctx, profile)
		if err != nil {
			return err
		}
	}

	opErr := op(remoteID)
	if opErr == nil {
		return nil
	}
	if !identity.IsNotFound(opErr) {
		return opErr
	}

	// The provider lost the identity between creation and this update.
	// Re-create and run the mutation once more against the fresh id.
	remoteID, err = a.healRemoteIdentity(ctx, profile)
	if err != nil {
		return err
	}
	return op(remoteID)
}

func (a *Applier) healRemoteIdentity(ctx context.Context, profile domain.Profile) (string, error) {
	remoteID, err := a.identity.CreateIdentity(ctx, identity.CreateInput{
		Email:         profile.Email,
		Phone:         profile.Phone,
		PhoneVerified: profile.PhoneVerified,
	})
	if err != nil {
		return "", err
	}
	if err := a.store.SetProfileRemoteID(ctx, profile.ID, remoteID, a.clock().UTC()); err != nil {
		return "", err
	}
	return remoteID, nil
}

func (a *Applier) applyDelete(ctx context.Context, entry storage.OutboxEntry) error {
	var payload domain.DeleteIdentityPayload
	if err := domain.DecodePayload(entry.PayloadJSON, &payload); err != nil {
		return Permanent(err)
	}

	remoteID := payload.RemoteID
	if remoteID == "" {
		profile, err := a.store.GetProfile(ctx, entry.ProfileID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err == nil {
			remoteID = profile.RemoteID
		}
	}

	if remoteID != "" {
		if err := a.identity.DeleteIdentity(ctx, remoteID); err != nil && !identity.IsNotFound(err) {
			return err
		}
	}

	// The tombstoned profile and its business row go once the remote side is
	// confirmed clear.
	if err := a.store.PurgeProfile(ctx, entry.ProfileID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}
