package core_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulFidika/mealkit/beacon"
	"github.com/PaulFidika/mealkit/core"
	"github.com/PaulFidika/mealkit/credential"
	"github.com/PaulFidika/mealkit/entitlements"
	"github.com/PaulFidika/mealkit/ledger"
	"github.com/PaulFidika/mealkit/mealwindow"
	"github.com/PaulFidika/mealkit/reject"
	"github.com/PaulFidika/mealkit/servicepoint"
	memorystore "github.com/PaulFidika/mealkit/storage/memory"
	testkit "github.com/PaulFidika/mealkit/testing"
)

type recordingSink struct {
	mu  sync.Mutex
	got []core.Incident
}

func (r *recordingSink) CredentialSuspended(_ context.Context, in core.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, in)
	return nil
}

type env struct {
	t         *testing.T
	store     *memorystore.Store
	svc       *core.Service
	sp        servicepoint.ServicePoint
	secret    []byte
	now       time.Time
	incidents *recordingSink
	metrics   *prometheus.Registry
}

var today = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func newEnv(t *testing.T, cfg core.Config, edit func(*servicepoint.ServicePoint)) *env {
	t.Helper()
	e := &env{
		t:         t,
		store:     memorystore.NewStore(),
		sp:        testkit.Hall("sp-1"),
		secret:    []byte("0123456789abcdef0123456789abcdef"),
		now:       testkit.LocalTime("Asia/Kolkata", 2026, time.March, 10, 13, 0, 0),
		incidents: &recordingSink{},
		metrics:   prometheus.NewRegistry(),
	}
	if edit != nil {
		edit(&e.sp)
	}
	e.store.PutServicePoint(e.sp)

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	cfg.Now = func() time.Time { return e.now }
	svc, err := core.NewService(cfg, core.Deps{
		Points:       e.store,
		Secrets:      beacon.NewStaticSecrets(map[string][]byte{"v1": e.secret}),
		Credentials:  credential.NewRegistry(e.store, memorystore.NewCache(time.Minute), credential.WithLogger(log)),
		Entitlements: e.store,
		Ledger:       e.store,
		Incidents:    e.incidents,
		Log:          log,
		Metrics:      e.metrics,
	})
	require.NoError(t, err)
	e.svc = svc
	return e
}

func (e *env) entitle(identity string, end time.Time) {
	e.store.PutEntitlement(entitlements.Entitlement{
		ID: "ent-" + identity, IdentityID: identity, ServicePointID: e.sp.ID,
		StartDate: today.AddDate(0, -1, 0), EndDate: end, Status: entitlements.StatusActive,
		MealFlags: map[mealwindow.Slot]bool{mealwindow.Lunch: true},
	})
}

func (e *env) confirm(identity string, slot mealwindow.Slot) {
	e.store.PutConfirmation(entitlements.Confirmation{
		IdentityID: identity, ServicePointID: e.sp.ID, Date: today, Slot: slot,
		Status: entitlements.ConfirmationConfirmed, ConfirmedAt: today,
	})
}

func (e *env) beaconScan(identity string, meters float64) core.ScanRequest {
	return core.ScanRequest{
		Identity:   identity,
		Credential: core.ScanCredential{Kind: core.KindBeacon, Payload: json.RawMessage(testkit.IssueBeacon(e.sp, e.secret))},
		Location:   testkit.Near(e.sp, meters),
	}
}

func (e *env) assertionScan(identity string, dev *testkit.Authenticator, counter uint32) core.ScanRequest {
	ch, err := e.svc.BeginAssertion(context.Background(), core.Principal{ID: identity, Role: core.RoleStudent})
	require.NoError(e.t, err)
	a := dev.SignAt(ch.Value, counter, testkit.ClientContext(e.sp.ID))
	return core.ScanRequest{
		Identity: identity,
		Credential: core.ScanCredential{
			Kind:            core.KindAssertion,
			CredentialID:    a.CredentialID,
			Challenge:       a.Challenge,
			SignedChallenge: a.Signature,
			Counter:         a.Counter,
			ClientContext:   a.ClientContext,
		},
		Location: testkit.Near(e.sp, 20),
	}
}

func (e *env) counter(name string, labels map[string]string) float64 {
	mfs, err := e.metrics.Gather()
	require.NoError(e.t, err)
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if v, ok := labels[lp.GetName()]; ok && v != lp.GetValue() {
					continue next
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestScenarioAcceptWithConfirmation(t *testing.T) {
	e := newEnv(t, core.Config{}, func(sp *servicepoint.ServicePoint) { sp.RequireConfirmation = true })
	e.entitle("alice", today.AddDate(0, 1, 0))
	e.confirm("alice", mealwindow.Lunch)

	rec, err := e.svc.Scan(context.Background(), e.beaconScan("alice", 50))
	require.NoError(t, err)
	assert.Equal(t, mealwindow.Lunch, rec.Slot)
	assert.Equal(t, ledger.MethodBeacon, rec.Method)
	assert.Equal(t, "ent-alice", rec.EntitlementID)
	assert.True(t, rec.Date.Equal(today))

	conf, err := e.store.GetConfirmation(context.Background(), "alice", e.sp.ID, today, mealwindow.Lunch)
	require.NoError(t, err)
	assert.Equal(t, entitlements.ConfirmationAttended, conf.Status)

	resp := core.Respond(rec, err)
	assert.True(t, resp.Accepted)
	assert.Equal(t, mealwindow.Lunch, resp.MealSlot)
	assert.Equal(t, rec.ID.String(), resp.RecordID)
	assert.Equal(t, 1.0, e.counter("mealkit_scans_total", map[string]string{"outcome": "accepted"}))
}

func TestScenarioExpiredEntitlement(t *testing.T) {
	e := newEnv(t, core.Config{}, nil)
	e.entitle("alice", today.AddDate(0, 0, -1))

	_, err := e.svc.Scan(context.Background(), e.beaconScan("alice", 50))
	assert.Equal(t, reject.NoEntitlement, reject.ReasonOf(err))
	assert.Equal(t, 0, e.store.Count())

	resp := core.Respond(ledger.Record{}, err)
	assert.False(t, resp.Accepted)
	assert.Equal(t, reject.NoEntitlement, resp.Reason)
	assert.False(t, resp.Retryable)
}

func TestScenarioReplaySuspends(t *testing.T) {
	e := newEnv(t, core.Config{}, nil)
	e.entitle("alice", today.AddDate(0, 1, 0))
	dev := testkit.NewAuthenticator("phone-1")
	_, err := e.svc.Enroll(context.Background(), core.Principal{ID: "alice", Role: core.RoleStudent}, dev.EnrollRequest("alice"))
	require.NoError(t, err)

	rec, err := e.svc.Scan(context.Background(), e.assertionScan("alice", dev, 5))
	require.NoError(t, err)
	assert.Equal(t, ledger.MethodAssertion, rec.Method)

	_, err = e.svc.Scan(context.Background(), e.assertionScan("alice", dev, 5))
	assert.Equal(t, reject.ReplayDetected, reject.ReasonOf(err))

	c, err := e.store.GetByCredentialID(context.Background(), dev.ID)
	require.NoError(t, err)
	assert.Equal(t, credential.StatusSuspended, c.Status)

	require.Len(t, e.incidents.got, 1)
	assert.Equal(t, "alice", e.incidents.got[0].IdentityID)
	assert.Equal(t, uint32(5), e.incidents.got[0].Counter)
	assert.Equal(t, 1.0, e.counter("mealkit_credential_suspensions_total", nil))
	assert.Equal(t, 1, e.store.Count())
}

func TestAssertionForAnotherIdentity(t *testing.T) {
	e := newEnv(t, core.Config{}, nil)
	e.entitle("bob", today.AddDate(0, 1, 0))
	dev := testkit.NewAuthenticator("phone-1")
	_, err := e.svc.Enroll(context.Background(), core.Principal{ID: "alice", Role: core.RoleStudent}, dev.EnrollRequest("alice"))
	require.NoError(t, err)

	req := e.assertionScan("alice", dev, 1)
	req.Identity = "bob"
	_, err = e.svc.Scan(context.Background(), req)
	assert.Equal(t, reject.InvalidAssertion, reject.ReasonOf(err))
}

func TestConcurrentDuplicateScans(t *testing.T) {
	e := newEnv(t, core.Config{}, nil)
	e.entitle("alice", today.AddDate(0, 1, 0))

	const n = 24
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.Scan(context.Background(), e.beaconScan("alice", 10))
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.Equal(t, reject.DuplicateScan, reject.ReasonOf(err))
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, e.store.Count())
}

func TestRetryAfterSuccessIsDuplicate(t *testing.T) {
	e := newEnv(t, core.Config{}, nil)
	e.entitle("alice", today.AddDate(0, 1, 0))
	req := e.beaconScan("alice", 10)

	_, err := e.svc.Scan(context.Background(), req)
	require.NoError(t, err)
	_, err = e.svc.Scan(context.Background(), req)
	assert.Equal(t, reject.DuplicateScan, reject.ReasonOf(err))
	assert.False(t, reject.Retryable(err))
}

func TestGeofenceThroughScan(t *testing.T) {
	e := newEnv(t, core.Config{}, nil)
	e.entitle("alice", today.AddDate(0, 1, 0))

	_, err := e.svc.Scan(context.Background(), e.beaconScan("alice", 201))
	rej, ok := reject.As(err)
	require.True(t, ok)
	assert.Equal(t, reject.GeofenceViolation, rej.Reason)
	assert.Equal(t, 201.0, rej.Detail["distance"])
	assert.Equal(t, 200.0, rej.Detail["allowed"])

	req := e.beaconScan("alice", 0)
	req.Location = nil
	_, err = e.svc.Scan(context.Background(), req)
	assert.Equal(t, reject.LocationRequired, reject.ReasonOf(err))
	assert.Equal(t, 0, e.store.Count())
}

// A service point record that never mentions location, as older cached
// JSON does, still enforces the geofence.
func TestLocationCheckedByDefault(t *testing.T) {
	e := newEnv(t, core.Config{}, func(sp *servicepoint.ServicePoint) {
		raw, err := json.Marshal(map[string]any{
			"id": sp.ID, "name": sp.Name, "secret_ref": sp.SecretRef,
			"latitude": sp.Latitude, "longitude": sp.Longitude, "radius_meters": sp.RadiusMeters,
			"time_zone": sp.TimeZone, "windows": sp.Windows,
		})
		require.NoError(t, err)
		var decoded servicepoint.ServicePoint
		require.NoError(t, json.Unmarshal(raw, &decoded))
		*sp = decoded
	})
	require.False(t, e.sp.SkipLocation)
	e.entitle("alice", today.AddDate(0, 1, 0))
	req := e.beaconScan("alice", 0)
	req.Location = nil
	_, err := e.svc.Scan(context.Background(), req)
	assert.Equal(t, reject.LocationRequired, reject.ReasonOf(err))
}

func TestLocationOptionalServicePoint(t *testing.T) {
	e := newEnv(t, core.Config{}, func(sp *servicepoint.ServicePoint) { sp.SkipLocation = true })
	e.entitle("alice", today.AddDate(0, 1, 0))
	req := e.beaconScan("alice", 0)
	req.Location = nil
	_, err := e.svc.Scan(context.Background(), req)
	require.NoError(t, err)
}

func TestLiveRadiusWinsOverBeacon(t *testing.T) {
	e := newEnv(t, core.Config{}, nil)
	e.entitle("alice", today.AddDate(0, 1, 0))
	stale := e.sp
	stale.RadiusMeters = 1000
	req := e.beaconScan("alice", 500)
	req.Credential.Payload = testkit.IssueBeacon(stale, e.secret)

	_, err := e.svc.Scan(context.Background(), req)
	assert.Equal(t, reject.GeofenceViolation, reject.ReasonOf(err))

	trusting := newEnv(t, core.Config{TrustBeaconGeometry: true}, nil)
	trusting.entitle("alice", today.AddDate(0, 1, 0))
	_, err = trusting.svc.Scan(context.Background(), req)
	require.NoError(t, err)
}

func TestNoServiceNowCarriesNextWindow(t *testing.T) {
	e := newEnv(t, core.Config{}, nil)
	e.entitle("alice", today.AddDate(0, 1, 0))
	e.now = testkit.LocalTime("Asia/Kolkata", 2026, time.March, 10, 16, 0, 0)

	_, err := e.svc.Scan(context.Background(), e.beaconScan("alice", 10))
	rej, ok := reject.As(err)
	require.True(t, ok)
	assert.Equal(t, reject.NoServiceNow, rej.Reason)
	assert.Equal(t, "dinner", rej.Detail["next_meal_slot"])
	assert.Equal(t, "2026-03-10T19:00:00+05:30", rej.Detail["next_start"])
}

func TestBeaconRejections(t *testing.T) {
	e := newEnv(t, core.Config{}, nil)
	e.entitle("alice", today.AddDate(0, 1, 0))

	forged := e.beaconScan("alice", 10)
	forged.Credential.Payload = testkit.IssueBeacon(e.sp, []byte("not-the-real-secret-not-the-real"))
	_, err := e.svc.Scan(context.Background(), forged)
	assert.Equal(t, reject.InvalidSignature, reject.ReasonOf(err))

	unknown := e.beaconScan("alice", 10)
	unknown.Credential.Payload = testkit.IssueBeacon(testkit.Hall("sp-gone"), e.secret)
	_, err = e.svc.Scan(context.Background(), unknown)
	assert.Equal(t, reject.MalformedPayload, reject.ReasonOf(err))

	garbage := e.beaconScan("alice", 10)
	garbage.Credential.Payload = json.RawMessage(`"not json at all"`)
	_, err = e.svc.Scan(context.Background(), garbage)
	assert.Equal(t, reject.MalformedPayload, reject.ReasonOf(err))

	kind := e.beaconScan("alice", 10)
	kind.Credential.Kind = "nfc"
	_, err = e.svc.Scan(context.Background(), kind)
	assert.Equal(t, reject.MalformedPayload, reject.ReasonOf(err))

	assert.Equal(t, 0, e.store.Count())
}

func TestBeaconPayloadAsString(t *testing.T) {
	e := newEnv(t, core.Config{}, nil)
	e.entitle("alice", today.AddDate(0, 1, 0))
	req := e.beaconScan("alice", 10)
	quoted, err := json.Marshal(string(req.Credential.Payload))
	require.NoError(t, err)
	req.Credential.Payload = quoted
	_, err = e.svc.Scan(context.Background(), req)
	require.NoError(t, err)
}

type stallingLedger struct{ ledger.Store }

func (stallingLedger) Exists(ctx context.Context, _ ledger.Key) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestTimeoutLeavesNoWrite(t *testing.T) {
	store := memorystore.NewStore()
	sp := testkit.Hall("sp-1")
	store.PutServicePoint(sp)
	store.PutEntitlement(entitlements.Entitlement{
		ID: "e", IdentityID: "alice", ServicePointID: sp.ID,
		StartDate: today, EndDate: today, Status: entitlements.StatusActive,
	})
	secret := []byte("0123456789abcdef0123456789abcdef")
	now := testkit.LocalTime("Asia/Kolkata", 2026, time.March, 10, 8, 0, 0)
	svc, err := core.NewService(core.Config{ScanTimeout: 30 * time.Millisecond, Now: func() time.Time { return now }}, core.Deps{
		Points:       store,
		Secrets:      beacon.NewStaticSecrets(map[string][]byte{"v1": secret}),
		Credentials:  credential.NewRegistry(store, memorystore.NewCache(time.Minute)),
		Entitlements: store,
		Ledger:       stallingLedger{store},
	})
	require.NoError(t, err)

	_, err = svc.Scan(context.Background(), core.ScanRequest{
		Identity:   "alice",
		Credential: core.ScanCredential{Kind: core.KindBeacon, Payload: testkit.IssueBeacon(sp, secret)},
		Location:   testkit.Near(sp, 5),
	})
	assert.Equal(t, reject.StorageUnavailable, reject.ReasonOf(err))
	assert.True(t, reject.Retryable(err))
	assert.Equal(t, 0, store.Count())
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := core.NewService(core.Config{}, core.Deps{})
	assert.Error(t, err)
}

func credentialFor(identity string) credential.EnrollRequest {
	return testkit.NewAuthenticator("dev-" + identity).EnrollRequest(identity)
}
