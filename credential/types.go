// Package credential is the registry of enrolled public-key (biometric-backed)
// authenticators and their anti-replay counters.
package credential

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status of an enrolled credential. Credentials are never deleted.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
)

var (
	// ErrNotFound is returned when no credential has the given id.
	ErrNotFound = errors.New("credential: not found")
	// ErrAlreadyEnrolled is returned by Store.Create when the identity
	// already holds an active or suspended credential.
	ErrAlreadyEnrolled = errors.New("credential: identity already enrolled")
	// ErrDuplicateID is returned when the credential id is taken.
	ErrDuplicateID = errors.New("credential: duplicate credential id")
)

// Credential is one enrolled authenticator.
type Credential struct {
	ID           uuid.UUID  `json:"id"`
	IdentityID   string     `json:"identity_id"`
	CredentialID string     `json:"credential_id"`
	PublicKey    string     `json:"-"`
	Counter      uint32     `json:"counter"`
	Status       Status     `json:"status"`
	StatusReason string     `json:"status_reason,omitempty"`
	DeviceInfo   string     `json:"device_info,omitempty"`
	UseCount     int64      `json:"use_count"`
	EnrolledAt   time.Time  `json:"enrolled_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	StatusAt     *time.Time `json:"status_changed_at,omitempty"`
}

// Store persists credentials. AdvanceCounter is the single atomic
// compare-and-set the anti-replay rule depends on.
type Store interface {
	// Create inserts c. Implementations enforce at most one non-revoked
	// credential per identity.
	Create(ctx context.Context, c Credential) error
	GetByCredentialID(ctx context.Context, credentialID string) (Credential, error)
	ListByIdentity(ctx context.Context, identityID string) ([]Credential, error)
	// AdvanceCounter sets the counter to counter, bumps use count and last
	// use, only if the credential is active and its stored counter is
	// strictly lower. It reports whether the update happened.
	AdvanceCounter(ctx context.Context, credentialID string, counter uint32, at time.Time) (bool, error)
	// Suspend moves an active credential to suspended.
	Suspend(ctx context.Context, credentialID, reason string, at time.Time) error
	// RevokeAll moves every active or suspended credential of the identity
	// to revoked and returns how many changed.
	RevokeAll(ctx context.Context, identityID, reason string, at time.Time) (int, error)
}

// Assertion is a signed challenge response from an authenticator.
type Assertion struct {
	// IdentityID, when set, must own the credential.
	IdentityID    string `json:"-"`
	CredentialID  string `json:"credential_id"`
	Challenge     string `json:"challenge"`
	Signature     []byte `json:"signed_challenge"`
	Counter       uint32 `json:"counter"`
	ClientContext []byte `json:"client_context,omitempty"`
}

// Challenge is a single-use nonce issued for one credential.
type Challenge struct {
	CredentialID string    `json:"credential_id"`
	Value        string    `json:"challenge"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// EnrollRequest carries a new authenticator registration.
type EnrollRequest struct {
	IdentityID   string
	CredentialID string
	PublicKey    string
	DeviceInfo   string
}
