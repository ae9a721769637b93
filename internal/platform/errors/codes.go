// Package errors provides structured error handling for vendor operations.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Vendor profile errors
	CodeVendorEmailEmpty      Code = "VENDOR_EMAIL_EMPTY"
	CodeVendorEmailInvalid    Code = "VENDOR_EMAIL_INVALID"
	CodeVendorPhoneInvalid    Code = "VENDOR_PHONE_INVALID"
	CodeVendorPhoneUnverified Code = "VENDOR_PHONE_UNVERIFIED"
	CodeVendorInvalidStatus   Code = "VENDOR_INVALID_STATUS"
	CodeVendorDeleted         Code = "VENDOR_DELETED"

	// Business errors
	CodeBusinessNameEmpty Code = "BUSINESS_NAME_EMPTY"

	// Storage errors
	CodeNotFound       Code = "NOT_FOUND"
	CodeContactInUse   Code = "CONTACT_IN_USE"
	CodeOutboxConflict Code = "OUTBOX_CONFLICT"

	// Sync errors
	CodeSyncPayloadInvalid Code = "SYNC_PAYLOAD_INVALID"
	CodeSyncUnknownKind    Code = "SYNC_UNKNOWN_KIND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeVendorEmailEmpty,
		CodeVendorEmailInvalid,
		CodeVendorPhoneInvalid,
		CodeVendorInvalidStatus,
		CodeBusinessNameEmpty,
		CodeSyncPayloadInvalid,
		CodeSyncUnknownKind:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeVendorPhoneUnverified,
		CodeVendorDeleted,
		CodeOutboxConflict:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	// AlreadyExists - unique contact constraint
	case CodeContactInUse:
		return codes.AlreadyExists

	default:
		return codes.Internal
	}
}
