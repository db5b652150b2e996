// Package servicepoint describes dining halls (service points) as the engine
// sees them: read-only records owned by the administrative layer.
package servicepoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PaulFidika/mealkit/geofence"
	"github.com/PaulFidika/mealkit/mealwindow"
)

// ErrNotFound is returned when a service point does not exist.
var ErrNotFound = errors.New("servicepoint: not found")

// ServicePoint is a physical serving location.
type ServicePoint struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SecretRef string `json:"secret_ref"`
	geofence.Point
	RadiusMeters float64 `json:"radius_meters"`
	// TimeZone is an IANA zone name; empty means UTC.
	TimeZone string              `json:"time_zone"`
	Windows  []mealwindow.Window `json:"windows"`
	// SkipLocation turns the geofence check off for this point. The zero
	// value keeps it on.
	SkipLocation         bool `json:"skip_location,omitempty"`
	RequireConfirmation  bool `json:"require_confirmation"`
	ConfirmationLeadTime int  `json:"confirmation_lead_hours"`
}

// Schedule builds the meal schedule in the service point's zone.
func (sp ServicePoint) Schedule() (mealwindow.Schedule, error) {
	loc := time.UTC
	if sp.TimeZone != "" {
		l, err := time.LoadLocation(sp.TimeZone)
		if err != nil {
			return mealwindow.Schedule{}, fmt.Errorf("servicepoint %s: %w", sp.ID, err)
		}
		loc = l
	}
	return mealwindow.NewSchedule(loc, sp.Windows)
}

// ConfirmationDeadline is the latest instant a confirmation for the given
// meal may be placed, per the lead time. ok=false when no lead time applies
// or the slot has no window.
func (sp ServicePoint) ConfirmationDeadline(date time.Time, slot mealwindow.Slot) (time.Time, bool) {
	if sp.ConfirmationLeadTime <= 0 {
		return time.Time{}, false
	}
	sched, err := sp.Schedule()
	if err != nil {
		return time.Time{}, false
	}
	for _, w := range sched.Windows {
		if w.Slot != slot {
			continue
		}
		start := time.Date(date.Year(), date.Month(), date.Day(),
			int(w.Start)/3600, int(w.Start)%3600/60, int(w.Start)%60, 0, sched.Location)
		return start.Add(-time.Duration(sp.ConfirmationLeadTime) * time.Hour), true
	}
	return time.Time{}, false
}

// Directory looks up service points.
type Directory interface {
	Get(ctx context.Context, id string) (ServicePoint, error)
}

// Invalidator drops cached service points after the administrative layer
// rotates a secret or edits a record.
type Invalidator interface {
	Invalidate(ctx context.Context, ids ...string) error
	Flush(ctx context.Context) error
}
