package core

import (
	"context"
	"strings"
	"time"

	"github.com/PaulFidika/mealkit/ledger"
	"github.com/PaulFidika/mealkit/reject"
)

// Attendance lists the records committed for identityID on the calendar day
// of date, in commit order.
func (s *Service) Attendance(ctx context.Context, actor Principal, identityID string, date time.Time) ([]ledger.Record, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		identityID = actor.ID
	}
	if err := Authorize(actor, CapViewAttendance, identityID); err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, reject.New(reject.MalformedPayload, "field", "date")
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	recs, err := s.ledger.List(ctx, identityID, day)
	if err != nil {
		return nil, reject.Unavailable(err)
	}
	return recs, nil
}
