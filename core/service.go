package core

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/mealkit/beacon"
	"github.com/PaulFidika/mealkit/credential"
	"github.com/PaulFidika/mealkit/entitlements"
	"github.com/PaulFidika/mealkit/ledger"
	"github.com/PaulFidika/mealkit/servicepoint"
)

// Config holds engine knobs.
type Config struct {
	// ScanTimeout bounds one scan attempt end to end. Default 5s.
	ScanTimeout time.Duration
	// TrustBeaconGeometry makes the geofence use the coordinates and radius
	// embedded in a beacon instead of the live service point record.
	TrustBeaconGeometry bool
	// Now overrides the clock. Default time.Now.
	Now func() time.Time
}

// Deps are the collaborators a Service runs against.
type Deps struct {
	Points       servicepoint.Directory
	Secrets      beacon.SecretSource
	Credentials  *credential.Registry
	Entitlements entitlements.Store
	Ledger       ledger.Store
	// Incidents receives security incidents. Optional.
	Incidents IncidentSink
	// Log defaults to the logrus standard logger.
	Log logrus.FieldLogger
	// Metrics registers scan metrics when non-nil.
	Metrics prometheus.Registerer
}

// Service is the scan orchestrator: the one entry point external callers use
// to record attendance.
type Service struct {
	cfg       Config
	points    servicepoint.Directory
	secrets   beacon.SecretSource
	creds     *credential.Registry
	gate      *entitlements.Gate
	ents      entitlements.Store
	ledger    ledger.Store
	incidents IncidentSink
	log       logrus.FieldLogger
	metrics   *metrics
}

// NewService validates deps and builds a Service.
func NewService(cfg Config, d Deps) (*Service, error) {
	switch {
	case d.Points == nil:
		return nil, errors.New("core: service point directory is required")
	case d.Secrets == nil:
		return nil, errors.New("core: beacon secret source is required")
	case d.Credentials == nil:
		return nil, errors.New("core: credential registry is required")
	case d.Entitlements == nil:
		return nil, errors.New("core: entitlement store is required")
	case d.Ledger == nil:
		return nil, errors.New("core: ledger store is required")
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.Incidents == nil {
		d.Incidents = logIncidents{d.Log}
	}
	return &Service{
		cfg:       cfg,
		points:    d.Points,
		secrets:   d.Secrets,
		creds:     d.Credentials,
		gate:      entitlements.NewGate(d.Entitlements),
		ents:      d.Entitlements,
		ledger:    d.Ledger,
		incidents: d.Incidents,
		log:       d.Log.WithField("component", "scan"),
		metrics:   newMetrics(d.Metrics),
	}, nil
}

// Credentials exposes the registry for enrollment flows.
func (s *Service) Credentials() *credential.Registry { return s.creds }
