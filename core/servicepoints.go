package core

import (
	"context"
	"strings"

	"github.com/PaulFidika/mealkit/reject"
	"github.com/PaulFidika/mealkit/servicepoint"
)

// InvalidateServicePoints drops cached copies of the given service points
// so a rotated secret or edited geometry applies to the next scan. With no
// ids the whole service point cache is flushed. It is a no-op when the
// directory is not cached.
func (s *Service) InvalidateServicePoints(ctx context.Context, actor Principal, ids ...string) error {
	if err := Authorize(actor, CapManagePoints, ""); err != nil {
		return err
	}
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(ids) > 0 && len(clean) == 0 {
		return reject.New(reject.MalformedPayload, "field", "service_point_id")
	}
	inv, ok := s.points.(servicepoint.Invalidator)
	if !ok {
		return nil
	}
	var err error
	if len(clean) == 0 {
		err = inv.Flush(ctx)
	} else {
		err = inv.Invalidate(ctx, clean...)
	}
	if err != nil {
		return reject.Unavailable(err)
	}
	s.log.WithField("actor", actor.ID).WithField("service_points", clean).Info("service point cache invalidated")
	return nil
}
