// Package reject defines the typed outcomes a scan or credential operation
// can be refused with. They are expected results, not faults: callers branch
// on Reason and present Detail to the person at the scanner.
package reject

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Reason is the closed set of rejection classes.
type Reason string

const (
	MalformedPayload     Reason = "malformed_payload"
	InvalidSignature     Reason = "invalid_signature"
	CredentialNotFound   Reason = "credential_not_found"
	CredentialRevoked    Reason = "credential_revoked"
	InvalidAssertion     Reason = "invalid_assertion"
	ReplayDetected       Reason = "replay_detected"
	AlreadyEnrolled      Reason = "already_enrolled"
	NoServiceNow         Reason = "no_service_now"
	LocationRequired     Reason = "location_required"
	GeofenceViolation    Reason = "geofence_violation"
	NoEntitlement        Reason = "no_entitlement"
	ConfirmationRequired Reason = "confirmation_required"
	DuplicateScan        Reason = "duplicate_scan"
	Forbidden            Reason = "forbidden"
	StorageUnavailable   Reason = "storage_unavailable"
)

// Error carries a Reason plus caller-presentable detail. Detail values must
// never contain secrets or key material.
type Error struct {
	Reason Reason
	Detail map[string]any
	// cause is kept for logs only; it is not rendered to callers.
	cause error
}

// New builds a rejection with optional key/value detail pairs.
func New(reason Reason, kv ...any) *Error {
	e := &Error{Reason: reason}
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		if e.Detail == nil {
			e.Detail = make(map[string]any, len(kv)/2)
		}
		e.Detail[k] = kv[i+1]
	}
	return e
}

// Wrap builds a rejection that remembers the underlying cause.
func Wrap(reason Reason, cause error, kv ...any) *Error {
	e := New(reason, kv...)
	e.cause = cause
	return e
}

// Unavailable wraps a dependency failure as StorageUnavailable.
func Unavailable(cause error) *Error {
	return Wrap(StorageUnavailable, cause)
}

func (e *Error) Error() string {
	if len(e.Detail) == 0 {
		if e.cause != nil {
			return fmt.Sprintf("%s: %v", e.Reason, e.cause)
		}
		return string(e.Reason)
	}
	keys := make([]string, 0, len(e.Detail))
	for k := range e.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Detail[k]))
	}
	return fmt.Sprintf("%s (%s)", e.Reason, strings.Join(parts, ", "))
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error by reason, so errors.Is(err, reject.New(reject.DuplicateScan)) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Reason == e.Reason
	}
	return false
}

// As extracts a rejection from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ReasonOf returns the rejection reason of err, or "" when err is not a rejection.
func ReasonOf(err error) Reason {
	if e, ok := As(err); ok {
		return e.Reason
	}
	return ""
}

// Retryable reports whether repeating the same request may succeed.
// Only dependency failures qualify; everything else is deterministic.
func Retryable(err error) bool {
	return ReasonOf(err) == StorageUnavailable
}
