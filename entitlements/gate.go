package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/PaulFidika/mealkit/mealwindow"
	"github.com/PaulFidika/mealkit/reject"
)

// Grant is the outcome of a passed gate check.
type Grant struct {
	Entitlement Entitlement
	// Confirmation is set when the service point requires pre-confirmation.
	// The caller transitions it to attended when the scan commits.
	Confirmation *Confirmation
}

// Gate checks entitlement and confirmation for a meal.
type Gate struct {
	store Store
}

func NewGate(store Store) *Gate { return &Gate{store: store} }

// Check fails with NoEntitlement or ConfirmationRequired, or with
// StorageUnavailable when the store cannot be read. It writes nothing.
func (g *Gate) Check(ctx context.Context, identityID, servicePointID string, date time.Time, slot mealwindow.Slot, requireConfirmation bool) (Grant, error) {
	list, err := g.store.ListEntitlements(ctx, identityID, servicePointID)
	if err != nil {
		return Grant{}, reject.Unavailable(err)
	}
	var (
		grant Grant
		found bool
	)
	for _, e := range list {
		if e.Grants(date, slot) {
			grant.Entitlement = e
			found = true
			break
		}
	}
	if !found {
		return Grant{}, reject.New(reject.NoEntitlement,
			"date", date.Format(time.DateOnly), "meal_slot", string(slot))
	}
	if !requireConfirmation {
		return grant, nil
	}
	conf, err := g.store.GetConfirmation(ctx, identityID, servicePointID, date, slot)
	switch {
	case errors.Is(err, ErrNotFound):
		return Grant{}, reject.New(reject.ConfirmationRequired, "meal_slot", string(slot))
	case err != nil:
		return Grant{}, reject.Unavailable(err)
	case conf.Status != ConfirmationConfirmed:
		return Grant{}, reject.New(reject.ConfirmationRequired,
			"meal_slot", string(slot), "status", string(conf.Status))
	}
	grant.Confirmation = &conf
	return grant, nil
}
