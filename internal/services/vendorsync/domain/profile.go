// Package domain provides vendor profile management for the sync core.
package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/MoeD-maker/Pinnity-sub001/internal/platform/errors"
	"github.com/MoeD-maker/Pinnity-sub001/internal/platform/id"
)

var (
	// ErrEmptyEmail indicates a missing vendor email.
	ErrEmptyEmail = apperrors.New(apperrors.CodeVendorEmailEmpty, "email is required")
	// ErrInvalidEmail indicates an email that does not match the required format.
	ErrInvalidEmail = apperrors.New(apperrors.CodeVendorEmailInvalid, "email must be a valid address")
	// ErrInvalidPhone indicates a phone number that is not E.164.
	ErrInvalidPhone = apperrors.New(apperrors.CodeVendorPhoneInvalid, "phone must be E.164 formatted")
	// ErrEmptyBusinessName indicates a vendor business without a display name.
	ErrEmptyBusinessName = apperrors.New(apperrors.CodeBusinessNameEmpty, "business name is required")
	// ErrInvalidStatus indicates an unknown vendor status value.
	ErrInvalidStatus = apperrors.New(apperrors.CodeVendorInvalidStatus, "unknown vendor status")

	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
)

// Status is the local vendor lifecycle state. It is primarily a local
// concept; the remote provider only mirrors an approved flag.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusSuspended Status = "suspended"
)

// ParseStatus validates and returns a vendor status value.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusPending, StatusApproved, StatusRejected, StatusSuspended:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Profile is the canonical vendor identity record in the local store.
//
// The local store is the system of record for business data; the remote
// provider owns credentials and mirrors email/phone. RemoteID stays empty
// until remote creation is confirmed.
type Profile struct {
	ID            string
	Email         string
	Phone         string // E.164, optional
	PasswordRef   string // opaque reference to the local credential record
	Status        Status
	PhoneVerified bool
	RemoteID      string
	DeletedAt     *time.Time // tombstone until remote deletion confirms
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Tombstoned reports whether the profile is soft-deleted.
func (p Profile) Tombstoned() bool {
	return p.DeletedAt != nil
}

// Business holds vendor display and verification metadata, 1:1 with a
// Profile. It is owned by the profile and purged with it.
type Business struct {
	ProfileID    string
	Name         string
	Verified     bool
	DocumentRefs []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateVendorInput describes the data needed to create a vendor account.
// Phone verification and document upload happen before this layer is called.
type CreateVendorInput struct {
	Email         string
	Phone         string
	Password      string // forwarded to the remote provider, never stored locally
	PasswordRef   string
	PhoneVerified bool
	BusinessName  string
	DocumentRefs  []string
}

// NormalizeEmail lowercases and trims an email and validates its shape.
func NormalizeEmail(value string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(value))
	if email == "" {
		return "", ErrEmptyEmail
	}
	if !emailPattern.MatchString(email) {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// NormalizePhone trims a phone number and validates E.164 shape. An empty
// phone is allowed; the provider treats phone as a secondary identifier.
func NormalizePhone(value string) (string, error) {
	phone := strings.TrimSpace(value)
	if phone == "" {
		return "", nil
	}
	if !phonePattern.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	return phone, nil
}

// CreateVendor builds the profile and business aggregates from validated
// input. Local validation is the authoritative gate; remote-side rejections
// are a sync concern, not a create-time concern.
func CreateVendor(input CreateVendorInput, now func() time.Time, idGenerator func() (string, error)) (Profile, Business, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	email, err := NormalizeEmail(input.Email)
	if err != nil {
		return Profile{}, Business{}, err
	}
	phone, err := NormalizePhone(input.Phone)
	if err != nil {
		return Profile{}, Business{}, err
	}
	businessName := strings.TrimSpace(input.BusinessName)
	if businessName == "" {
		return Profile{}, Business{}, ErrEmptyBusinessName
	}

	profileID, err := idGenerator()
	if err != nil {
		return Profile{}, Business{}, fmt.Errorf("generate profile id: %w", err)
	}

	createdAt := now().UTC()
	profile := Profile{
		ID:            profileID,
		Email:         email,
		Phone:         phone,
		PasswordRef:   strings.TrimSpace(input.PasswordRef),
		Status:        StatusPending,
		PhoneVerified: input.PhoneVerified,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	business := Business{
		ProfileID:    profileID,
		Name:         businessName,
		DocumentRefs: input.DocumentRefs,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	return profile, business, nil
}
