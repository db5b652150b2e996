package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/mealkit/beacon"
	"github.com/PaulFidika/mealkit/credential"
	"github.com/PaulFidika/mealkit/entitlements"
	"github.com/PaulFidika/mealkit/geofence"
	"github.com/PaulFidika/mealkit/ledger"
	"github.com/PaulFidika/mealkit/mealwindow"
	"github.com/PaulFidika/mealkit/reject"
	"github.com/PaulFidika/mealkit/servicepoint"
)

// CredentialKind tags the credential carried by a scan.
type CredentialKind string

const (
	KindBeacon    CredentialKind = "beacon"
	KindAssertion CredentialKind = "assertion"
)

// ScanCredential is either a beacon payload or an assertion, per Kind.
type ScanCredential struct {
	Kind CredentialKind `json:"kind"`

	// Payload is the beacon payload, as a JSON object or a JSON string.
	Payload json.RawMessage `json:"payload,omitempty"`

	CredentialID    string `json:"credential_id,omitempty"`
	Challenge       string `json:"challenge,omitempty"`
	SignedChallenge []byte `json:"signed_challenge,omitempty"`
	Counter         uint32 `json:"counter,omitempty"`
	// ClientContext is hashed exactly as received. It must name the service
	// point as {"service_point_id": "..."}.
	ClientContext json.RawMessage `json:"client_context,omitempty"`
}

// ScanRequest is one attendance attempt.
type ScanRequest struct {
	Identity   string          `json:"identity"`
	Credential ScanCredential  `json:"credential"`
	Location   *geofence.Claim `json:"geo_location,omitempty"`
	DeviceID   string          `json:"device_id,omitempty"`
}

// State is a step of the scan state machine. A scan moves through the
// states in order and stops at the first rejection.
type State int

const (
	StateReceived State = iota
	StateCredentialVerified
	StateWindowResolved
	StateGeofenceChecked
	StateEntitlementChecked
	StateDuplicateChecked
	StateCommitted
)

var stateNames = [...]string{
	"received", "credential_verified", "window_resolved", "geofence_checked",
	"entitlement_checked", "duplicate_checked", "committed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

type attempt struct {
	req    ScanRequest
	now    time.Time
	state  State
	point  servicepoint.ServicePoint
	method ledger.Method
	beacon *beacon.Credential
	sched  mealwindow.Schedule
	date   time.Time
	window mealwindow.Window
	grant  entitlements.Grant
}

// Scan runs every check for req and, when all pass, commits one ledger
// record. A rejection is a *reject.Error; nothing is written on rejection.
func (s *Service) Scan(ctx context.Context, req ScanRequest) (ledger.Record, error) {
	began := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	a := &attempt{req: req, now: s.cfg.Now()}
	rec, err := s.scan(ctx, a)
	s.observe(a, err, time.Since(began))
	return rec, err
}

// ScanAs runs Scan on behalf of actor. An empty req.Identity means the
// actor scans for itself; kiosks run by staff may scan for anyone.
func (s *Service) ScanAs(ctx context.Context, actor Principal, req ScanRequest) (ledger.Record, error) {
	if strings.TrimSpace(req.Identity) == "" {
		req.Identity = actor.ID
	}
	if err := Authorize(actor, CapScan, strings.TrimSpace(req.Identity)); err != nil {
		return ledger.Record{}, err
	}
	return s.Scan(ctx, req)
}

func (s *Service) scan(ctx context.Context, a *attempt) (ledger.Record, error) {
	a.req.Identity = strings.TrimSpace(a.req.Identity)
	if a.req.Identity == "" {
		return ledger.Record{}, reject.New(reject.MalformedPayload, "field", "identity")
	}

	if err := s.verifyCredential(ctx, a); err != nil {
		return ledger.Record{}, err
	}
	a.state = StateCredentialVerified

	if err := s.resolveWindow(a); err != nil {
		return ledger.Record{}, err
	}
	a.state = StateWindowResolved

	if err := s.checkGeofence(a); err != nil {
		return ledger.Record{}, err
	}
	a.state = StateGeofenceChecked

	grant, err := s.gate.Check(ctx, a.req.Identity, a.point.ID, a.date, a.window.Slot, a.point.RequireConfirmation)
	if err != nil {
		return ledger.Record{}, err
	}
	a.grant = grant
	a.state = StateEntitlementChecked

	rec := ledger.Record{
		ID:             uuid.New(),
		IdentityID:     a.req.Identity,
		ServicePointID: a.point.ID,
		EntitlementID:  grant.Entitlement.ID,
		Date:           a.date,
		Slot:           a.window.Slot,
		Timestamp:      a.now.UTC(),
		Method:         a.method,
		Location:       a.req.Location,
		DeviceID:       a.req.DeviceID,
		Valid:          true,
	}
	dup, err := s.ledger.Exists(ctx, rec.Key())
	if err != nil {
		return ledger.Record{}, reject.Unavailable(err)
	}
	if dup {
		return ledger.Record{}, duplicate(rec)
	}
	a.state = StateDuplicateChecked

	if err := s.commit(ctx, rec, grant.Confirmation); err != nil {
		return ledger.Record{}, err
	}
	a.state = StateCommitted
	return rec, nil
}

// commit is the only write of a scan. The store's uniqueness guard, not the
// earlier Exists call, decides between racing duplicates.
func (s *Service) commit(ctx context.Context, rec ledger.Record, attend *entitlements.Confirmation) error {
	if err := ctx.Err(); err != nil {
		return reject.Unavailable(err)
	}
	err := s.ledger.Commit(ctx, rec, attend)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrDuplicate):
		return duplicate(rec)
	case errors.Is(err, ledger.ErrConfirmationChanged):
		return reject.New(reject.ConfirmationRequired, "meal_slot", string(rec.Slot))
	default:
		return reject.Unavailable(err)
	}
}

func duplicate(rec ledger.Record) error {
	return reject.New(reject.DuplicateScan,
		"date", rec.Date.Format(time.DateOnly), "meal_slot", string(rec.Slot))
}

func (s *Service) verifyCredential(ctx context.Context, a *attempt) error {
	switch a.req.Credential.Kind {
	case KindBeacon:
		return s.verifyBeacon(ctx, a)
	case KindAssertion:
		return s.verifyAssertion(ctx, a)
	default:
		return reject.New(reject.MalformedPayload, "field", "credential.kind")
	}
}

func (s *Service) loadPoint(ctx context.Context, id string) (servicepoint.ServicePoint, error) {
	sp, err := s.points.Get(ctx, id)
	if errors.Is(err, servicepoint.ErrNotFound) {
		return sp, reject.New(reject.MalformedPayload, "field", "service_point_id")
	}
	if err != nil {
		return sp, reject.Unavailable(err)
	}
	return sp, nil
}

func beaconBytes(raw json.RawMessage) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []byte(s)
		}
	}
	return raw
}

func (s *Service) verifyBeacon(ctx context.Context, a *attempt) error {
	cred, err := beacon.Decode(beaconBytes(a.req.Credential.Payload))
	if err != nil {
		return err
	}
	sp, err := s.loadPoint(ctx, cred.ServicePointID)
	if err != nil {
		return err
	}
	secret, err := s.secrets.Secret(ctx, sp.ID, sp.SecretRef)
	if err != nil {
		return reject.Unavailable(err)
	}
	if err := cred.Verify(secret); err != nil {
		return err
	}
	if cred.RadiusMeters != sp.RadiusMeters || cred.Latitude != sp.Latitude || cred.Longitude != sp.Longitude {
		s.log.WithFields(logrus.Fields{
			"service_point":  sp.ID,
			"beacon_radius":  cred.RadiusMeters,
			"current_radius": sp.RadiusMeters,
		}).Warn("beacon geometry differs from service point; beacon may be stale")
	}
	a.point = sp
	a.beacon = &cred
	a.method = ledger.MethodBeacon
	return nil
}

type clientContext struct {
	ServicePointID string `json:"service_point_id"`
}

func (s *Service) verifyAssertion(ctx context.Context, a *attempt) error {
	c := a.req.Credential
	if c.CredentialID == "" || c.Challenge == "" || len(c.SignedChallenge) == 0 {
		return reject.New(reject.MalformedPayload, "field", "credential")
	}
	var cc clientContext
	if err := json.Unmarshal(c.ClientContext, &cc); err != nil || strings.TrimSpace(cc.ServicePointID) == "" {
		return reject.New(reject.MalformedPayload, "field", "client_context.service_point_id")
	}
	sp, err := s.loadPoint(ctx, cc.ServicePointID)
	if err != nil {
		return err
	}
	cred, err := s.creds.VerifyAssertion(ctx, credential.Assertion{
		IdentityID:    a.req.Identity,
		CredentialID:  c.CredentialID,
		Challenge:     c.Challenge,
		Signature:     c.SignedChallenge,
		Counter:       c.Counter,
		ClientContext: c.ClientContext,
	})
	if reject.ReasonOf(err) == reject.ReplayDetected {
		s.raiseSuspension(ctx, a, sp, cred)
	}
	if err != nil {
		return err
	}
	a.point = sp
	a.method = ledger.MethodAssertion
	return nil
}

func (s *Service) raiseSuspension(ctx context.Context, a *attempt, sp servicepoint.ServicePoint, cred credential.Credential) {
	s.metrics.suspensions.Inc()
	in := Incident{
		IdentityID:     cred.IdentityID,
		CredentialID:   cred.CredentialID,
		ServicePointID: sp.ID,
		Counter:        a.req.Credential.Counter,
		DeviceID:       a.req.DeviceID,
		At:             a.now.UTC(),
	}
	// The scan deadline may be nearly spent; the incident must still go out.
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.incidents.CredentialSuspended(ictx, in); err != nil {
		s.log.WithError(err).WithField("credential_id", in.CredentialID).Error("publish suspension incident")
	}
}

func (s *Service) resolveWindow(a *attempt) error {
	sched, err := a.point.Schedule()
	if err != nil {
		return reject.Unavailable(err)
	}
	a.sched = sched
	a.date = sched.LocalDate(a.now)
	w, ok := sched.Resolve(a.now)
	if ok {
		a.window = w
		return nil
	}
	kv := []any{"local_time", a.now.In(sched.Location).Format(time.TimeOnly)}
	if next, at, ok := sched.Next(a.now); ok {
		kv = append(kv, "next_meal_slot", string(next.Slot), "next_start", at.Format(time.RFC3339))
	}
	return reject.New(reject.NoServiceNow, kv...)
}

func (s *Service) checkGeofence(a *attempt) error {
	if a.point.SkipLocation {
		return nil
	}
	center, radius := a.point.Point, a.point.RadiusMeters
	if s.cfg.TrustBeaconGeometry && a.beacon != nil {
		center = geofence.Point{Latitude: a.beacon.Latitude, Longitude: a.beacon.Longitude}
		radius = a.beacon.RadiusMeters
	}
	_, err := geofence.Validate(a.req.Location, center, radius)
	return err
}

func (s *Service) observe(a *attempt, err error, took time.Duration) {
	s.metrics.duration.Observe(took.Seconds())
	fields := logrus.Fields{
		"identity":      a.req.Identity,
		"service_point": a.point.ID,
		"state":         a.state.String(),
		"took_ms":       took.Milliseconds(),
	}
	if a.window.Slot != "" {
		fields["meal_slot"] = string(a.window.Slot)
	}
	if err == nil {
		s.metrics.scans.WithLabelValues("accepted", "").Inc()
		s.log.WithFields(fields).Info("scan accepted")
		return
	}
	reason := reject.ReasonOf(err)
	if reason == "" {
		reason = reject.StorageUnavailable
	}
	s.metrics.scans.WithLabelValues("rejected", string(reason)).Inc()
	entry := s.log.WithFields(fields).WithField("reason", string(reason))
	switch reason {
	case reject.StorageUnavailable:
		entry.WithError(err).Error("scan failed")
	case reject.ReplayDetected:
		entry.Warn("scan rejected")
	default:
		entry.Info("scan rejected")
	}
}
