package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/mealkit/entitlements"
	"github.com/PaulFidika/mealkit/ledger"
	"github.com/PaulFidika/mealkit/mealwindow"
	"github.com/PaulFidika/mealkit/reject"
)

// ManualRequest is an administrative attendance override.
type ManualRequest struct {
	IdentityID     string          `json:"identity"`
	ServicePointID string          `json:"service_point_id"`
	Date           time.Time       `json:"date"`
	Slot           mealwindow.Slot `json:"meal_slot"`
	Justification  string          `json:"justification"`
}

// RecordManual writes an attendance record without credential, window or
// geofence checks. The caller needs the manual_override capability and must
// give a justification. The ledger's uniqueness still applies.
func (s *Service) RecordManual(ctx context.Context, actor Principal, req ManualRequest) (ledger.Record, error) {
	if err := Authorize(actor, CapManualOverride, req.IdentityID); err != nil {
		return ledger.Record{}, err
	}
	req.IdentityID = strings.TrimSpace(req.IdentityID)
	req.Justification = strings.TrimSpace(req.Justification)
	switch {
	case req.IdentityID == "":
		return ledger.Record{}, reject.New(reject.MalformedPayload, "field", "identity")
	case req.Justification == "":
		return ledger.Record{}, reject.New(reject.MalformedPayload, "field", "justification")
	case !req.Slot.Valid():
		return ledger.Record{}, reject.New(reject.MalformedPayload, "field", "meal_slot")
	case req.Date.IsZero():
		return ledger.Record{}, reject.New(reject.MalformedPayload, "field", "date")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	sp, err := s.loadPoint(ctx, req.ServicePointID)
	if err != nil {
		return ledger.Record{}, err
	}

	rec := ledger.Record{
		ID:             uuid.New(),
		IdentityID:     req.IdentityID,
		ServicePointID: sp.ID,
		Date:           time.Date(req.Date.Year(), req.Date.Month(), req.Date.Day(), 0, 0, 0, 0, time.UTC),
		Slot:           req.Slot,
		Timestamp:      s.cfg.Now().UTC(),
		Method:         ledger.MethodManual,
		Valid:          true,
		Annotation:     fmt.Sprintf("%s [by %s]", req.Justification, actor.ID),
	}

	// A pending confirmation is consumed by the override, as a scan would.
	var attend *entitlements.Confirmation
	conf, err := s.ents.GetConfirmation(ctx, rec.IdentityID, rec.ServicePointID, rec.Date, rec.Slot)
	switch {
	case err == nil && conf.Status == entitlements.ConfirmationConfirmed:
		attend = &conf
	case err != nil && !errors.Is(err, entitlements.ErrNotFound):
		return ledger.Record{}, reject.Unavailable(err)
	}

	err = s.commit(ctx, rec, attend)
	if attend != nil && reject.ReasonOf(err) == reject.ConfirmationRequired {
		err = s.commit(ctx, rec, nil)
	}
	if err != nil {
		s.metrics.scans.WithLabelValues("rejected", string(reject.ReasonOf(err))).Inc()
		return ledger.Record{}, err
	}
	s.metrics.scans.WithLabelValues("manual", "").Inc()
	s.log.WithFields(logrus.Fields{
		"identity":      rec.IdentityID,
		"service_point": rec.ServicePointID,
		"meal_slot":     string(rec.Slot),
		"actor":         actor.ID,
	}).Info("manual attendance recorded")
	return rec, nil
}
