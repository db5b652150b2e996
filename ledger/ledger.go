// Package ledger defines the append-only attendance record store.
//
// A record is unique on (identity, service point, date, meal slot). Stores
// must enforce that key themselves so that concurrent scans for the same
// meal cannot both commit.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/PaulFidika/mealkit/entitlements"
	"github.com/PaulFidika/mealkit/geofence"
	"github.com/PaulFidika/mealkit/mealwindow"
)

// Method is how attendance was verified.
type Method string

const (
	MethodBeacon    Method = "beacon"
	MethodAssertion Method = "credential_assertion"
	MethodManual    Method = "manual"
)

var (
	// ErrDuplicate is returned by Commit when a record already holds the key.
	ErrDuplicate = errors.New("ledger: duplicate attendance")
	// ErrConfirmationChanged is returned by Commit when the confirmation it
	// was asked to transition is no longer in the confirmed state.
	ErrConfirmationChanged = errors.New("ledger: confirmation no longer confirmed")
)

// Key is the uniqueness key of a record.
type Key struct {
	IdentityID     string
	ServicePointID string
	// Date is the service point's local calendar date at midnight UTC.
	Date time.Time
	Slot mealwindow.Slot
}

// Record is one accepted attendance.
type Record struct {
	ID             uuid.UUID       `json:"id"`
	IdentityID     string          `json:"identity_id"`
	ServicePointID string          `json:"service_point_id"`
	EntitlementID  string          `json:"entitlement_id,omitempty"`
	Date           time.Time       `json:"date"`
	Slot           mealwindow.Slot `json:"meal_slot"`
	Timestamp      time.Time       `json:"timestamp"`
	Method         Method          `json:"verification_method"`
	Location       *geofence.Claim `json:"geo_location,omitempty"`
	DeviceID       string          `json:"device_id,omitempty"`
	Valid          bool            `json:"valid"`
	// Annotation carries the justification and actor of a manual override.
	Annotation string `json:"annotation,omitempty"`
}

// Key returns the record's uniqueness key.
func (r Record) Key() Key {
	return Key{IdentityID: r.IdentityID, ServicePointID: r.ServicePointID, Date: r.Date, Slot: r.Slot}
}

// Store is the ledger backend.
type Store interface {
	// Exists is an advisory pre-check. The authoritative duplicate guard is
	// Commit.
	Exists(ctx context.Context, k Key) (bool, error)
	// Commit inserts rec and, when attend is non-nil, moves that confirmation
	// from confirmed to attended. Both effects happen or neither does.
	// It returns ErrDuplicate when the key is taken.
	Commit(ctx context.Context, rec Record, attend *entitlements.Confirmation) error
	// List returns the identity's records on a date, oldest first.
	List(ctx context.Context, identityID string, date time.Time) ([]Record, error)
}
