package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/PaulFidika/mealkit/mealwindow"
)

// Status of an entitlement.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Entitlement is a time-bounded grant to eat at a service point. It is owned
// by the billing layer; the engine only reads it.
type Entitlement struct {
	ID             string    `json:"id"`
	IdentityID     string    `json:"identity_id"`
	ServicePointID string    `json:"service_point_id"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Status         Status    `json:"status"`
	// MealFlags lists per-slot inclusion. A slot with no entry is included:
	// legacy entitlements were written before flags existed.
	MealFlags map[mealwindow.Slot]bool `json:"meal_flags,omitempty"`
}

// Includes reports whether the entitlement covers slot. Missing flags
// default to included.
func (e Entitlement) Includes(slot mealwindow.Slot) bool {
	v, ok := e.MealFlags[slot]
	return !ok || v
}

// Covers reports whether date (a local calendar date) falls inside
// [StartDate, EndDate]. Only the calendar day of each bound is compared.
func (e Entitlement) Covers(date time.Time) bool {
	d := dayOf(date)
	return !d.Before(dayOf(e.StartDate)) && !d.After(dayOf(e.EndDate))
}

// Grants reports whether e lets its identity eat slot on date.
func (e Entitlement) Grants(date time.Time, slot mealwindow.Slot) bool {
	return e.Status == StatusActive && e.Covers(date) && e.Includes(slot)
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ConfirmationStatus of a pre-meal confirmation.
type ConfirmationStatus string

const (
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
	ConfirmationAttended  ConfirmationStatus = "attended"
)

// Confirmation is an identity's advance notice that it will eat a meal.
// At most one exists per (identity, service point, date, slot).
type Confirmation struct {
	IdentityID     string             `json:"identity_id"`
	ServicePointID string             `json:"service_point_id"`
	Date           time.Time          `json:"date"`
	Slot           mealwindow.Slot    `json:"meal_slot"`
	Status         ConfirmationStatus `json:"status"`
	ConfirmedAt    time.Time          `json:"confirmed_at"`
	AttendedAt     *time.Time         `json:"attended_at,omitempty"`
}

// ErrNotFound is returned when no confirmation exists for the key.
var ErrNotFound = errors.New("entitlements: not found")

// Store reads entitlements and confirmations.
type Store interface {
	// ListEntitlements returns every entitlement the identity holds at the
	// service point, in any status.
	ListEntitlements(ctx context.Context, identityID, servicePointID string) ([]Entitlement, error)
	// GetConfirmation returns ErrNotFound when absent.
	GetConfirmation(ctx context.Context, identityID, servicePointID string, date time.Time, slot mealwindow.Slot) (Confirmation, error)
}
