package beacon

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulFidika/mealkit/reject"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func issueTestBeacon(t *testing.T) (Credential, []byte) {
	t.Helper()
	c, payload, err := Issue(Fields{
		ServicePointID: "sp-north",
		Name:           "North Hall",
		Code:           "NH-01",
		Latitude:       12.9716,
		Longitude:      77.5946,
		RadiusMeters:   200,
	}, testSecret, time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return c, payload
}

func TestIssueThenVerify(t *testing.T) {
	c, payload := issueTestBeacon(t)
	got, err := Verify(payload, testSecret)
	require.NoError(t, err)
	assert.Equal(t, c, got)
	assert.Equal(t, time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC), got.IssuedTime())
}

func TestVerifyWrongSecret(t *testing.T) {
	_, payload := issueTestBeacon(t)
	_, err := Verify(payload, []byte("another-secret-another-secret-xx"))
	assert.Equal(t, reject.InvalidSignature, reject.ReasonOf(err))
}

func TestEveryFieldIsCovered(t *testing.T) {
	orig, _ := issueTestBeacon(t)
	mutations := map[string]func(*Credential){
		"service_point_id": func(c *Credential) { c.ServicePointID = "sp-south" },
		"name":             func(c *Credential) { c.Name = "North Hal1" },
		"code":             func(c *Credential) { c.Code = "NH-02" },
		"latitude":         func(c *Credential) { c.Latitude = 12.9717 },
		"longitude":        func(c *Credential) { c.Longitude = 77.5945 },
		"radius_meters":    func(c *Credential) { c.RadiusMeters = 2000 },
		"issued_at":        func(c *Credential) { c.IssuedAt++ },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			c := orig
			mutate(&c)
			payload, err := json.Marshal(c)
			require.NoError(t, err)
			_, err = Verify(payload, testSecret)
			assert.Equal(t, reject.InvalidSignature, reject.ReasonOf(err))
		})
	}
}

func TestSingleByteFlipInStringFields(t *testing.T) {
	_, payload := issueTestBeacon(t)
	for _, value := range []string{`"NH-01"`, `"North Hall"`, `"sp-north"`} {
		start := bytes.Index(payload, []byte(value))
		require.GreaterOrEqual(t, start, 0)
		for i := start + 1; i < start+len(value)-1; i++ {
			mutated := append([]byte(nil), payload...)
			if mutated[i] == 'Z' {
				mutated[i] = 'Y'
			} else {
				mutated[i] = 'Z'
			}
			_, err := Verify(mutated, testSecret)
			assert.Equal(t, reject.InvalidSignature, reject.ReasonOf(err), "byte %d of %s", i-start, value)
		}
	}
}

func TestSignatureTampering(t *testing.T) {
	c, _ := issueTestBeacon(t)
	last := byte('0')
	if c.Signature[len(c.Signature)-1] == '0' {
		last = '1'
	}
	flipped := c.Signature[:len(c.Signature)-1] + string(last)
	for _, sig := range []string{"zz", "", "00", flipped} {
		c2 := c
		c2.Signature = sig
		if sig == "" {
			payload, _ := json.Marshal(c2)
			_, err := Verify(payload, testSecret)
			assert.Equal(t, reject.MalformedPayload, reject.ReasonOf(err))
			continue
		}
		assert.Equal(t, reject.InvalidSignature, reject.ReasonOf(c2.Verify(testSecret)), sig)
	}
}

// An issuer outside Go writes '&' and '<' unescaped; the signature must
// cover those bytes as written.
func TestVerifyUnescapedIssuerOutput(t *testing.T) {
	unsigned := `{"kind":"LOCATION_BEACON","service_point_id":"sp-north","name":"Mess A&B","code":"<NH>",` +
		`"latitude":12.9716,"longitude":77.5946,"radius_meters":200,"issued_at":1736150400000}`
	mac := hmac.New(sha256.New, testSecret)
	mac.Write([]byte(unsigned))
	sig := hex.EncodeToString(mac.Sum(nil))
	payload := unsigned[:len(unsigned)-1] + `,"signature":"` + sig + `"}`

	c, err := Verify([]byte(payload), testSecret)
	require.NoError(t, err)
	assert.Equal(t, "Mess A&B", c.Name)

	canonical, err := c.Canonical()
	require.NoError(t, err)
	assert.Equal(t, unsigned, string(canonical))

	_, issued, err := Issue(Fields{ServicePointID: "sp-north", Name: "Mess A&B", Code: "<NH>",
		Latitude: 12.9716, Longitude: 77.5946, RadiusMeters: 200}, testSecret, c.IssuedTime())
	require.NoError(t, err)
	assert.Equal(t, payload, string(issued))
}

func TestKeyNamesAreExact(t *testing.T) {
	_, payload := issueTestBeacon(t)
	cases := map[string][]byte{
		"case flip": bytes.Replace(payload, []byte(`"name"`), []byte(`"Name"`), 1),
		"duplicate": bytes.Replace(payload, []byte(`"name":"North Hall"`),
			[]byte(`"name":"North Hall","name":"South Hall"`), 1),
		"null value": bytes.Replace(payload, []byte(`"code":"NH-01"`), []byte(`"code":null`), 1),
		"missing":    bytes.Replace(payload, []byte(`"code":"NH-01",`), nil, 1),
	}
	for name, mutated := range cases {
		t.Run(name, func(t *testing.T) {
			require.NotEqual(t, payload, mutated)
			_, err := Verify(mutated, testSecret)
			assert.Equal(t, reject.MalformedPayload, reject.ReasonOf(err))
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":      `QR:12345`,
		"wrong kind":    `{"kind":"EVENT","service_point_id":"sp","signature":"ab"}`,
		"missing sp":    `{"kind":"LOCATION_BEACON","signature":"ab"}`,
		"unknown field": `{"kind":"LOCATION_BEACON","service_point_id":"sp","signature":"ab","extra":1}`,
		"trailing":      `{"kind":"LOCATION_BEACON","service_point_id":"sp","signature":"ab"} {}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			assert.Equal(t, reject.MalformedPayload, reject.ReasonOf(err))
		})
	}
}

func TestDerivedSecretsRotateWithReference(t *testing.T) {
	d, err := NewDerivedSecrets(testSecret)
	require.NoError(t, err)
	ctx := context.Background()

	a1, err := d.Secret(ctx, "sp-north", "v1")
	require.NoError(t, err)
	a2, err := d.Secret(ctx, "sp-north", "v1")
	require.NoError(t, err)
	b, err := d.Secret(ctx, "sp-north", "v2")
	require.NoError(t, err)
	other, err := d.Secret(ctx, "sp-south", "v1")
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
	assert.NotEqual(t, a1, other)

	_, err = NewDerivedSecrets([]byte("short"))
	assert.Error(t, err)
}

func TestStaticSecrets(t *testing.T) {
	s := NewStaticSecrets(map[string][]byte{"v1": testSecret})
	got, err := s.Secret(context.Background(), "sp", "v1")
	require.NoError(t, err)
	assert.Equal(t, testSecret, got)

	_, err = s.Secret(context.Background(), "sp", "v2")
	assert.ErrorIs(t, err, ErrUnknownSecret)

	s.Put("v2", []byte("k"))
	_, err = s.Secret(context.Background(), "sp", "v2")
	assert.NoError(t, err)
}
