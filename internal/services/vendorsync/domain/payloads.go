package domain

import (
	"encoding/json"
	"fmt"
)

// Outbox payloads carry the operation-specific data a replay needs. Only the
// latest payload per (profile, kind) is ever replayed, so each type holds the
// full desired end-state for its field rather than a delta.

// CreateIdentityPayload requests creation of the remote identity.
type CreateIdentityPayload struct {
	Email         string `json:"email"`
	Password      string `json:"password,omitempty"`
	Phone         string `json:"phone,omitempty"`
	PhoneVerified bool   `json:"phone_verified,omitempty"`
}

// UpdateEmailPayload carries the desired remote email.
type UpdateEmailPayload struct {
	Email string `json:"email"`
}

// UpdatePhonePayload carries the desired remote phone.
type UpdatePhonePayload struct {
	Phone string `json:"phone"`
}

// SetPasswordPayload carries the new remote password.
type SetPasswordPayload struct {
	Password string `json:"password"`
}

// SetStatusPayload mirrors the approved flag to remote metadata.
type SetStatusPayload struct {
	Verified bool `json:"verified"`
}

// DeleteIdentityPayload identifies the remote identity to remove. RemoteID
// may be empty when deletion was requested before remote creation confirmed.
type DeleteIdentityPayload struct {
	RemoteID string `json:"remote_id,omitempty"`
	Email    string `json:"email"`
}

// EncodePayload serializes an outbox payload.
func EncodePayload(payload any) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode outbox payload: %w", err)
	}
	return string(encoded), nil
}

// DecodePayload deserializes an outbox payload into target.
func DecodePayload(payloadJSON string, target any) error {
	if err := json.Unmarshal([]byte(payloadJSON), target); err != nil {
		return fmt.Errorf("decode outbox payload: %w", err)
	}
	return nil
}
