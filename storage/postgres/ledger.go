package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/PaulFidika/mealkit/entitlements"
	"github.com/PaulFidika/mealkit/geofence"
	"github.com/PaulFidika/mealkit/ledger"
	"github.com/PaulFidika/mealkit/mealwindow"
)

func (s *Store) Exists(ctx context.Context, k ledger.Key) (bool, error) {
	if s.pg == nil {
		return false, ErrNoPool
	}
	var ok bool
	err := s.pg.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+s.table("attendance")+`
		WHERE identity_id = $1 AND service_point_id = $2 AND date = $3 AND meal_slot = $4)`,
		k.IdentityID, k.ServicePointID, k.Date, string(k.Slot)).Scan(&ok)
	return ok, err
}

// Commit inserts the record and transitions the confirmation in one
// transaction. The insert uses ON CONFLICT DO NOTHING so a losing duplicate
// sees zero rows instead of an aborted transaction.
func (s *Store) Commit(ctx context.Context, rec ledger.Record, attend *entitlements.Confirmation) error {
	var lat, lon, acc *float64
	if rec.Location != nil {
		lat, lon, acc = &rec.Location.Latitude, &rec.Location.Longitude, rec.Location.Accuracy
	}
	return s.execTx(ctx, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `INSERT INTO `+s.table("attendance")+`
			(id, identity_id, service_point_id, entitlement_id, date, meal_slot, recorded_at, method,
			 latitude, longitude, accuracy, device_id, valid, annotation)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, NULLIF($14, ''))
			ON CONFLICT ON CONSTRAINT attendance_one_per_meal DO NOTHING
			RETURNING id::text`,
			rec.ID, rec.IdentityID, rec.ServicePointID, rec.EntitlementID, rec.Date, string(rec.Slot),
			rec.Timestamp, string(rec.Method), lat, lon, acc, rec.DeviceID, rec.Valid, rec.Annotation).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.ErrDuplicate
		}
		if err != nil {
			return err
		}
		if attend == nil {
			return nil
		}
		tag, err := tx.Exec(ctx, `UPDATE `+s.table("confirmations")+`
			SET status = 'attended', attended_at = $5
			WHERE identity_id = $1 AND service_point_id = $2 AND date = $3 AND meal_slot = $4
			  AND status = 'confirmed'`,
			attend.IdentityID, attend.ServicePointID, attend.Date, string(attend.Slot), rec.Timestamp)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return ledger.ErrConfirmationChanged
		}
		return nil
	})
}

func (s *Store) List(ctx context.Context, identityID string, date time.Time) ([]ledger.Record, error) {
	if s.pg == nil {
		return nil, ErrNoPool
	}
	rows, err := s.pg.Query(ctx, `SELECT id, identity_id, service_point_id, COALESCE(entitlement_id, ''), date,
		meal_slot, recorded_at, method, latitude, longitude, accuracy, COALESCE(device_id, ''), valid,
		COALESCE(annotation, '')
		FROM `+s.table("attendance")+` WHERE identity_id = $1 AND date = $2 ORDER BY recorded_at`,
		identityID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Record
	for rows.Next() {
		var (
			r             ledger.Record
			slot, method  string
			lat, lon, acc *float64
		)
		if err := rows.Scan(&r.ID, &r.IdentityID, &r.ServicePointID, &r.EntitlementID, &r.Date, &slot,
			&r.Timestamp, &method, &lat, &lon, &acc, &r.DeviceID, &r.Valid, &r.Annotation); err != nil {
			return nil, err
		}
		r.Slot = mealwindow.Slot(slot)
		r.Method = ledger.Method(method)
		if lat != nil && lon != nil {
			r.Location = &geofence.Claim{Point: geofence.Point{Latitude: *lat, Longitude: *lon}, Accuracy: acc}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
