package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/PaulFidika/mealkit/entitlements"
	"github.com/PaulFidika/mealkit/mealwindow"
)

func (s *Store) ListEntitlements(ctx context.Context, identityID, servicePointID string) ([]entitlements.Entitlement, error) {
	if s.pg == nil {
		return nil, ErrNoPool
	}
	rows, err := s.pg.Query(ctx, `SELECT id, identity_id, service_point_id, start_date, end_date, status, meal_flags
		FROM `+s.table("entitlements")+` WHERE identity_id = $1 AND service_point_id = $2
		ORDER BY start_date`, identityID, servicePointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []entitlements.Entitlement
	for rows.Next() {
		var (
			e      entitlements.Entitlement
			status string
			flags  []byte
		)
		if err := rows.Scan(&e.ID, &e.IdentityID, &e.ServicePointID, &e.StartDate, &e.EndDate, &status, &flags); err != nil {
			return nil, err
		}
		e.Status = entitlements.Status(status)
		if len(flags) > 0 {
			if err := json.Unmarshal(flags, &e.MealFlags); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PutEntitlement upserts e, for seeding from the billing layer.
func (s *Store) PutEntitlement(ctx context.Context, e entitlements.Entitlement) error {
	if s.pg == nil {
		return ErrNoPool
	}
	var flags []byte
	if e.MealFlags != nil {
		b, err := json.Marshal(e.MealFlags)
		if err != nil {
			return err
		}
		flags = b
	}
	_, err := s.pg.Exec(ctx, `INSERT INTO `+s.table("entitlements")+`
		(id, identity_id, service_point_id, start_date, end_date, status, meal_flags)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
			status = EXCLUDED.status, meal_flags = EXCLUDED.meal_flags`,
		e.ID, e.IdentityID, e.ServicePointID, e.StartDate, e.EndDate, string(e.Status), flags)
	return err
}

func (s *Store) GetConfirmation(ctx context.Context, identityID, servicePointID string, date time.Time, slot mealwindow.Slot) (entitlements.Confirmation, error) {
	if s.pg == nil {
		return entitlements.Confirmation{}, ErrNoPool
	}
	var (
		c      entitlements.Confirmation
		status string
		slotS  string
	)
	err := s.pg.QueryRow(ctx, `SELECT identity_id, service_point_id, date, meal_slot, status, confirmed_at, attended_at
		FROM `+s.table("confirmations")+`
		WHERE identity_id = $1 AND service_point_id = $2 AND date = $3 AND meal_slot = $4`,
		identityID, servicePointID, date, string(slot)).Scan(
		&c.IdentityID, &c.ServicePointID, &c.Date, &slotS, &status, &c.ConfirmedAt, &c.AttendedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return entitlements.Confirmation{}, entitlements.ErrNotFound
	}
	if err != nil {
		return entitlements.Confirmation{}, err
	}
	c.Slot = mealwindow.Slot(slotS)
	c.Status = entitlements.ConfirmationStatus(status)
	return c, nil
}

// PutConfirmation records a confirmation, for seeding from the confirmation
// workflow.
func (s *Store) PutConfirmation(ctx context.Context, c entitlements.Confirmation) error {
	if s.pg == nil {
		return ErrNoPool
	}
	_, err := s.pg.Exec(ctx, `INSERT INTO `+s.table("confirmations")+`
		(identity_id, service_point_id, date, meal_slot, status, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity_id, service_point_id, date, meal_slot) DO UPDATE SET status = EXCLUDED.status`,
		c.IdentityID, c.ServicePointID, c.Date, string(c.Slot), string(c.Status), c.ConfirmedAt)
	return err
}
