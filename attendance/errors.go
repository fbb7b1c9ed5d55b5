/*
errors.go - Centralized error types for the attendance engine

PURPOSE:
  All error types in one place for consistency and discoverability.

ERROR CATEGORIES:
  1. Eligibility rejections - terminal business-rule failures, reported to
     the caller with a stable machine code, never retried, not system faults
  2. Storage errors - datastore failures; a serialization conflict is
     retried a bounded number of times before surfacing
  3. Input errors - malformed identifiers, rejected before any lookup

USAGE:
  if rej := attendance.AsRejection(err); rej != nil {
      // rej.Code is stable and machine-readable
  }
  if attendance.IsRetryable(err) { ... }
*/
package attendance

import (
	"errors"
	"fmt"
)

// =============================================================================
// REJECTION CODES - Stable, machine-readable
// =============================================================================

type RejectionCode string

const (
	CodeWorkerNotFound           RejectionCode = "WorkerNotFound"
	CodeWorkerInactive           RejectionCode = "WorkerInactive"
	CodeEstablishmentInactive    RejectionCode = "EstablishmentInactive"
	CodeEstablishmentNotApproved RejectionCode = "EstablishmentNotApproved"
	CodeNoActiveMapping          RejectionCode = "NoActiveMapping"
	CodeWrongEstablishment       RejectionCode = "WrongEstablishment"
	CodeDifferentDepartment      RejectionCode = "DifferentDepartment"
	CodeLookupError              RejectionCode = "LookupError"
	CodeInsertError              RejectionCode = "InsertError"
)

// RejectionError is a terminal business-rule rejection. It carries the
// stable code plus a human message and is reported verbatim to the caller.
type RejectionError struct {
	Code    RejectionCode
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsRejection unwraps err to a RejectionError, or nil.
func AsRejection(err error) *RejectionError {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej
	}
	return nil
}

func reject(code RejectionCode, format string, args ...any) *RejectionError {
	return &RejectionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when an event with the same
	// idempotency key already exists. Expected behavior for retried calls.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrSerializationConflict is returned when the per-worker serialization
	// point detects a concurrent writer. Safe to retry.
	ErrSerializationConflict = errors.New("serialization conflict")

	// ErrEmptyWorkerIdentifier is returned for a missing/blank worker
	// identifier, before any lookup is attempted.
	ErrEmptyWorkerIdentifier = errors.New("empty worker identifier")

	// ErrRollupNotFound is returned when a rollup row does not exist.
	ErrRollupNotFound = errors.New("rollup not found")
)

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSerializationConflict)
}

// IsEligibility returns true for terminal business-rule rejections, which
// are caller errors rather than system faults.
func IsEligibility(err error) bool {
	rej := AsRejection(err)
	return rej != nil && rej.Code != CodeLookupError && rej.Code != CodeInsertError
}
