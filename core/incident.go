package core

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Incident describes a credential suspended on a replayed counter.
type Incident struct {
	IdentityID     string    `json:"identity_id"`
	CredentialID   string    `json:"credential_id"`
	ServicePointID string    `json:"service_point_id"`
	Counter        uint32    `json:"counter"`
	DeviceID       string    `json:"device_id,omitempty"`
	At             time.Time `json:"at"`
}

// IncidentSink receives security incidents raised during scans. Publishing
// is best-effort; a failure is logged and never changes the scan outcome.
type IncidentSink interface {
	CredentialSuspended(ctx context.Context, in Incident) error
}

type logIncidents struct{ log logrus.FieldLogger }

func (l logIncidents) CredentialSuspended(_ context.Context, in Incident) error {
	l.log.WithFields(logrus.Fields{
		"identity":      in.IdentityID,
		"credential_id": in.CredentialID,
		"service_point": in.ServicePointID,
	}).Warn("credential suspended; no incident sink configured")
	return nil
}
