package mealgin_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mealgin "github.com/PaulFidika/mealkit/adapters/gin"
	"github.com/PaulFidika/mealkit/beacon"
	"github.com/PaulFidika/mealkit/core"
	"github.com/PaulFidika/mealkit/credential"
	"github.com/PaulFidika/mealkit/entitlements"
	"github.com/PaulFidika/mealkit/mealwindow"
	"github.com/PaulFidika/mealkit/ratelimit"
	memorylimiter "github.com/PaulFidika/mealkit/ratelimit/memory"
	"github.com/PaulFidika/mealkit/servicepoint"
	memorystore "github.com/PaulFidika/mealkit/storage/memory"
	testkit "github.com/PaulFidika/mealkit/testing"
)

var (
	secret  = []byte("0123456789abcdef0123456789abcdef")
	rotated = []byte("fedcba9876543210fedcba9876543210")
)

type harness struct {
	t      *testing.T
	router *gin.Engine
	issuer *testkit.TestIssuer
	store  *memorystore.Store
	sp     servicepoint.ServicePoint
}

func newHarness(t *testing.T, limits map[string]ratelimit.Limit) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := &harness{t: t, issuer: testkit.NewTestIssuer(), store: memorystore.NewStore(), sp: testkit.Hall("sp-1")}
	t.Cleanup(h.issuer.Close)

	h.store.PutServicePoint(h.sp)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"alice", "bob"} {
		h.store.PutEntitlement(entitlements.Entitlement{
			ID: "ent-" + id, IdentityID: id, ServicePointID: h.sp.ID,
			StartDate: day.AddDate(0, -1, 0), EndDate: day.AddDate(0, 1, 0), Status: entitlements.StatusActive,
		})
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	now := testkit.LocalTime("Asia/Kolkata", 2026, time.March, 10, 13, 0, 0)
	svc, err := core.NewService(core.Config{Now: func() time.Time { return now }}, core.Deps{
		Points:       servicepoint.NewCachedDirectory(h.store, memorystore.NewCache(time.Minute), time.Hour, log),
		Secrets:      beacon.NewStaticSecrets(map[string][]byte{"v1": secret, "v2": rotated}),
		Credentials:  credential.NewRegistry(h.store, memorystore.NewCache(time.Minute), credential.WithLogger(log)),
		Entitlements: h.store,
		Ledger:       h.store,
		Log:          log,
	})
	require.NoError(t, err)

	h.router = gin.New()
	opts := mealgin.Options{Log: log}
	if limits != nil {
		opts.Limiter = memorylimiter.New(limits)
	}
	mealgin.Register(h.router, svc, h.issuer.Verifier(), opts)
	return h
}

func (h *harness) do(method, target, token string, body any) (int, map[string]any) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func (h *harness) beaconScan(identity string) core.ScanRequest {
	return core.ScanRequest{
		Identity:   identity,
		Credential: core.ScanCredential{Kind: core.KindBeacon, Payload: json.RawMessage(testkit.IssueBeacon(h.sp, secret))},
		Location:   testkit.Near(h.sp, 20),
	}
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t, nil)

	code, _ := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body := h.do(http.MethodPost, "/attendance/scan", "", h.beaconScan("alice"))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid_token", body["error"])

	code, _ = h.do(http.MethodPost, "/attendance/scan", h.issuer.CreateExpiredToken("alice", "student"), h.beaconScan("alice"))
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = h.do(http.MethodPost, "/attendance/scan", h.issuer.CreateToken("alice", "warden"), h.beaconScan("alice"))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unknown_role", body["error"])
}

func TestBeaconScanOverHTTP(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.issuer.CreateToken("alice", "student")

	code, body := h.do(http.MethodPost, "/attendance/scan", alice, h.beaconScan(""))
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["accepted"])
	assert.Equal(t, "lunch", body["meal_slot"])
	assert.NotEmpty(t, body["record_id"])

	code, body = h.do(http.MethodPost, "/attendance/scan?lang=hi", alice, h.beaconScan("alice"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "duplicate_scan", body["reason"])
	assert.Equal(t, "इस भोजन की उपस्थिति पहले ही दर्ज है।", body["message"])

	code, body = h.do(http.MethodPost, "/attendance/scan", alice, h.beaconScan("bob"))
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["reason"])

	staff := h.issuer.CreateToken("kiosk-1", "staff")
	code, body = h.do(http.MethodPost, "/attendance/scan", staff, h.beaconScan("bob"))
	assert.Equal(t, http.StatusOK, code, body)

	code, body = h.do(http.MethodGet, "/attendance?date=2026-03-10", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 1)

	code, _ = h.do(http.MethodGet, "/attendance?date=2026-03-10&identity=bob", alice, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = h.do(http.MethodGet, "/attendance?date=yesterday", alice, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestScanRejectionsCarryDetail(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.issuer.CreateToken("alice", "student")

	req := h.beaconScan("alice")
	req.Location = testkit.Near(h.sp, 500)
	code, body := h.do(http.MethodPost, "/attendance/scan", alice, req)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "geofence_violation", body["reason"])
	assert.NotNil(t, body["detail"])
	assert.Equal(t, "You are too far from the dining hall.", body["message"])

	code, body = h.do(http.MethodPost, "/attendance/scan", alice, map[string]any{"credential": "nope"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "malformed_payload", body["error"])
}

func TestAssertionFlowOverHTTP(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.issuer.CreateToken("alice", "student")
	dev := testkit.NewAuthenticator("phone-1")

	code, _ := h.do(http.MethodPost, "/credentials/challenge", alice, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body := h.do(http.MethodPost, "/credentials", alice, map[string]any{
		"credential_id": dev.ID,
		"public_key":    dev.PublicKey(),
		"device_info":   "pixel",
	})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "active", body["status"])
	assert.Nil(t, body["public_key"])

	code, _ = h.do(http.MethodPost, "/credentials", alice, map[string]any{"credential_id": "phone-2", "public_key": dev.PublicKey()})
	assert.Equal(t, http.StatusConflict, code)

	code, body = h.do(http.MethodPost, "/credentials/challenge", alice, nil)
	require.Equal(t, http.StatusOK, code)
	challenge, _ := body["challenge"].(string)
	require.NotEmpty(t, challenge)

	a := dev.Sign(challenge, testkit.ClientContext(h.sp.ID))
	code, body = h.do(http.MethodPost, "/attendance/scan", alice, core.ScanRequest{
		Credential: core.ScanCredential{
			Kind:            core.KindAssertion,
			CredentialID:    a.CredentialID,
			Challenge:       a.Challenge,
			SignedChallenge: a.Signature,
			Counter:         a.Counter,
			ClientContext:   a.ClientContext,
		},
		Location: testkit.Near(h.sp, 10),
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["accepted"])

	code, _ = h.do(http.MethodDelete, "/credentials?identity=alice", h.issuer.CreateToken("bob", "student"), nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = h.do(http.MethodDelete, "/credentials", alice, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = h.do(http.MethodPost, "/credentials/challenge", alice, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestManualOverrideOverHTTP(t *testing.T) {
	h := newHarness(t, nil)
	req := map[string]any{
		"identity":         "bob",
		"service_point_id": h.sp.ID,
		"date":             "2026-03-10",
		"meal_slot":        string(mealwindow.Dinner),
		"justification":    "phone battery dead",
	}

	code, _ := h.do(http.MethodPost, "/admin/attendance/manual", h.issuer.CreateToken("alice", "student"), req)
	assert.Equal(t, http.StatusForbidden, code)

	code, body := h.do(http.MethodPost, "/admin/attendance/manual", h.issuer.CreateToken("warden-1", "staff"), req)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "dinner", body["meal_slot"])

	code, body = h.do(http.MethodPost, "/admin/attendance/manual", h.issuer.CreateToken("warden-1", "staff"), req)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "duplicate_scan", body["error"])

	req["date"] = "10/03/2026"
	code, _ = h.do(http.MethodPost, "/admin/attendance/manual", h.issuer.CreateToken("warden-1", "staff"), req)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestScanRateLimit(t *testing.T) {
	h := newHarness(t, map[string]ratelimit.Limit{ratelimit.BucketScan: {Limit: 1, Window: time.Minute}})
	alice := h.issuer.CreateToken("alice", "student")

	code, _ := h.do(http.MethodPost, "/attendance/scan", alice, h.beaconScan("alice"))
	assert.Equal(t, http.StatusOK, code)
	code, body := h.do(http.MethodPost, "/attendance/scan", alice, h.beaconScan("alice"))
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limited", body["error"])

	code, _ = h.do(http.MethodPost, "/attendance/scan", h.issuer.CreateToken("bob", "student"), h.beaconScan("bob"))
	assert.Equal(t, http.StatusOK, code)
}

func TestServicePointInvalidationOverHTTP(t *testing.T) {
	h := newHarness(t, nil)
	admin := h.issuer.CreateToken("root", "admin")

	code, _ := h.do(http.MethodPost, "/attendance/scan", h.issuer.CreateToken("alice", "student"), h.beaconScan("alice"))
	require.Equal(t, http.StatusOK, code)

	h.sp.SecretRef = "v2"
	h.store.PutServicePoint(h.sp)
	scan := core.ScanRequest{
		Identity:   "bob",
		Credential: core.ScanCredential{Kind: core.KindBeacon, Payload: json.RawMessage(testkit.IssueBeacon(h.sp, rotated))},
		Location:   testkit.Near(h.sp, 20),
	}
	bob := h.issuer.CreateToken("bob", "student")
	code, body := h.do(http.MethodPost, "/attendance/scan", bob, scan)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "invalid_signature", body["reason"])

	code, body = h.do(http.MethodPost, "/admin/service-points/sp-1/invalidate", h.issuer.CreateToken("kiosk-1", "staff"), nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["error"])

	code, body = h.do(http.MethodPost, "/admin/service-points/sp-1/invalidate", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "sp-1", body["service_point_id"])

	code, body = h.do(http.MethodPost, "/attendance/scan", bob, scan)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["accepted"])
}
