package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/PaulFidika/mealkit/mealwindow"
	"github.com/PaulFidika/mealkit/servicepoint"
)

// windowRow is the stored JSON form of a meal window; clocks are "HH:MM[:SS]".
type windowRow struct {
	Slot  string `json:"slot"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func decodeWindows(raw []byte) ([]mealwindow.Window, error) {
	var rows []windowRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	out := make([]mealwindow.Window, 0, len(rows))
	for _, r := range rows {
		slot, err := mealwindow.ParseSlot(r.Slot)
		if err != nil {
			return nil, err
		}
		start, err := mealwindow.ParseClock(r.Start)
		if err != nil {
			return nil, err
		}
		end, err := mealwindow.ParseClock(r.End)
		if err != nil {
			return nil, err
		}
		out = append(out, mealwindow.Window{Slot: slot, Start: start, End: end})
	}
	return out, nil
}

func encodeWindows(ws []mealwindow.Window) ([]byte, error) {
	rows := make([]windowRow, len(ws))
	for i, w := range ws {
		rows[i] = windowRow{Slot: string(w.Slot), Start: w.Start.String(), End: w.End.String()}
	}
	return json.Marshal(rows)
}

// Get reads a service point. Windows that fail to parse are reported as an
// error rather than silently defaulted.
func (s *Store) Get(ctx context.Context, id string) (servicepoint.ServicePoint, error) {
	if s.pg == nil {
		return servicepoint.ServicePoint{}, ErrNoPool
	}
	var (
		sp      servicepoint.ServicePoint
		windows []byte
	)
	err := s.pg.QueryRow(ctx, `SELECT id, name, secret_ref, latitude, longitude, radius_meters, time_zone,
		windows, NOT require_location, require_confirmation, confirmation_lead_hours
		FROM `+s.table("service_points")+` WHERE id = $1`, id).Scan(
		&sp.ID, &sp.Name, &sp.SecretRef, &sp.Latitude, &sp.Longitude, &sp.RadiusMeters, &sp.TimeZone,
		&windows, &sp.SkipLocation, &sp.RequireConfirmation, &sp.ConfirmationLeadTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return servicepoint.ServicePoint{}, servicepoint.ErrNotFound
	}
	if err != nil {
		return servicepoint.ServicePoint{}, err
	}
	if sp.Windows, err = decodeWindows(windows); err != nil {
		return servicepoint.ServicePoint{}, fmt.Errorf("service point %s windows: %w", id, err)
	}
	return sp, nil
}

// PutServicePoint upserts sp. The administrative layer owns these rows; this
// exists for seeding and the issue-beacon command.
func (s *Store) PutServicePoint(ctx context.Context, sp servicepoint.ServicePoint) error {
	if s.pg == nil {
		return ErrNoPool
	}
	windows, err := encodeWindows(sp.Windows)
	if err != nil {
		return err
	}
	tz := sp.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	_, err = s.pg.Exec(ctx, `INSERT INTO `+s.table("service_points")+`
		(id, name, secret_ref, latitude, longitude, radius_meters, time_zone, windows,
		 require_location, require_confirmation, confirmation_lead_hours, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, secret_ref = EXCLUDED.secret_ref,
			latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			radius_meters = EXCLUDED.radius_meters, time_zone = EXCLUDED.time_zone,
			windows = EXCLUDED.windows, require_location = EXCLUDED.require_location,
			require_confirmation = EXCLUDED.require_confirmation,
			confirmation_lead_hours = EXCLUDED.confirmation_lead_hours, updated_at = now()`,
		sp.ID, sp.Name, sp.SecretRef, sp.Latitude, sp.Longitude, sp.RadiusMeters, tz, windows,
		!sp.SkipLocation, sp.RequireConfirmation, sp.ConfirmationLeadTime)
	return err
}
