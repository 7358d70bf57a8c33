/*
errors.go - Centralized error types for the match engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch with errors.Is on the sentinels or errors.As on the
  structured types.

ERROR CATEGORIES:
  1. Validation errors - Malformed documents or configuration (abort Match)
  2. Workflow errors - Invalid state transition, missing capability
  3. Store errors - Missing records, optimistic-lock conflicts, duplicate
     auto-matches

NOT ERRORS:
  Tolerance breaches and unmatched lines are business outcomes. They are
  recorded on LineMatchResult (Status, Reason) and never returned as errors.

SEE ALSO:
  - approval.go: Raises InvalidStateError and PermissionError
  - validate.go: Raises ValidationError
*/
package matching

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when input documents or configuration are malformed.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState is returned when a workflow transition is not allowed
	// from the matching's current approval state.
	ErrInvalidState = errors.New("invalid approval state")

	// ErrPermission is returned when the actor lacks a required capability.
	ErrPermission = errors.New("permission denied")

	// ErrMatchingNotFound is returned when a referenced matching doesn't exist.
	ErrMatchingNotFound = errors.New("matching not found")

	// ErrDocumentNotFound is returned when a referenced PO, GR or invoice doesn't exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrAlreadyMatched is returned by CreateMatchingOnce when the invoice
	// already has a matching.
	ErrAlreadyMatched = errors.New("invoice already matched")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Problem is a single validation failure.
type Problem struct {
	Field   string // e.g., "invoice.lines[2].quantity"
	Message string
}

// ValidationError lists every problem found in the input.
// Raised before any variance computation; nothing partial is produced.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Field + ": " + p.Message
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Problems = append(e.Problems, Problem{Field: field, Message: fmt.Sprintf(format, args...)})
}

// orNil returns nil when no problems were collected.
func (e *ValidationError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// InvalidStateError reports a transition attempted outside PENDING.
type InvalidStateError struct {
	MatchingID MatchingID
	Current    ApprovalState
	Action     string // "approve" or "reject"
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s matching %s: approval state is %s",
		e.Action, e.MatchingID, e.Current)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// PermissionError reports a missing capability.
type PermissionError struct {
	ActorID    string
	Capability Capability
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("actor %q lacks capability %q", e.ActorID, e.Capability)
}

func (e *PermissionError) Unwrap() error {
	return ErrPermission
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMatchingNotFound) ||
		errors.Is(err, ErrDocumentNotFound)
}

// IsConflict returns true if the request conflicts with current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrAlreadyMatched)
}

// IsForbidden returns true if the actor is not allowed to perform the action.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrPermission)
}
