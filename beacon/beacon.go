// Package beacon encodes, signs and verifies location beacon credentials: the
// QR payload printed at a service point that proves the scanner was handed a
// code issued for that place.
package beacon

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PaulFidika/mealkit/reject"
)

// Kind is the only accepted value of the payload's kind field.
const Kind = "LOCATION_BEACON"

// Credential is a decoded beacon payload. Field order is the canonical
// serialization order; do not reorder.
type Credential struct {
	Kind           string  `json:"kind"`
	ServicePointID string  `json:"service_point_id"`
	Name           string  `json:"name"`
	Code           string  `json:"code"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	RadiusMeters   float64 `json:"radius_meters"`
	IssuedAt       int64   `json:"issued_at"` // unix milliseconds, informational only
	Signature      string  `json:"signature,omitempty"`
}

// IssuedTime returns IssuedAt as a time.
func (c Credential) IssuedTime() time.Time { return time.UnixMilli(c.IssuedAt).UTC() }

// Canonical returns the bytes the signature covers: the compact JSON of every
// field except signature, in declaration order, with no HTML escaping. This
// is what JSON.stringify and most non-Go issuers write.
func (c Credential) Canonical() ([]byte, error) {
	c.Signature = ""
	return encode(c)
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Sign computes the hex HMAC-SHA256 signature under secret.
func (c Credential) Sign(secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("beacon: empty signing secret")
	}
	msg, err := c.Canonical()
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature and compares it in constant time.
func (c Credential) Verify(secret []byte) error {
	given, err := hex.DecodeString(strings.TrimSpace(c.Signature))
	if err != nil || len(given) != sha256.Size {
		return reject.New(reject.InvalidSignature)
	}
	want, err := c.Sign(secret)
	if err != nil {
		return reject.Wrap(reject.InvalidSignature, err)
	}
	wantRaw, _ := hex.DecodeString(want)
	if subtle.ConstantTimeCompare(wantRaw, given) != 1 {
		return reject.New(reject.InvalidSignature)
	}
	return nil
}

// payloadKeys is the exact key set of an encoded beacon. Keys match
// case-sensitively and each appears once.
var payloadKeys = []string{
	"kind", "service_point_id", "name", "code",
	"latitude", "longitude", "radius_meters", "issued_at", "signature",
}

// readObject splits a JSON object into its members, rejecting duplicate keys
// and trailing data.
func readObject(payload []byte) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("not an object")
	}
	members := make(map[string]json.RawMessage, len(payloadKeys))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		if _, dup := members[key]; dup {
			return nil, fmt.Errorf("duplicate key %q", key)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		members[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data")
	}
	return members, nil
}

// Decode parses a raw payload. Anything that is not a well-formed beacon is
// MalformedPayload; signature checking is left to Verify. The key set must
// be exactly the payload's nine keys so that no two distinct payloads
// decode to the same canonical form.
func Decode(payload []byte) (Credential, error) {
	members, err := readObject(payload)
	if err != nil {
		return Credential{}, reject.Wrap(reject.MalformedPayload, err)
	}
	if len(members) != len(payloadKeys) {
		return Credential{}, reject.New(reject.MalformedPayload, "field", "keys")
	}
	var c Credential
	targets := map[string]any{
		"kind":             &c.Kind,
		"service_point_id": &c.ServicePointID,
		"name":             &c.Name,
		"code":             &c.Code,
		"latitude":         &c.Latitude,
		"longitude":        &c.Longitude,
		"radius_meters":    &c.RadiusMeters,
		"issued_at":        &c.IssuedAt,
		"signature":        &c.Signature,
	}
	for _, k := range payloadKeys {
		raw, ok := members[k]
		if !ok || bytes.Equal(raw, []byte("null")) {
			return Credential{}, reject.New(reject.MalformedPayload, "field", k)
		}
		if err := json.Unmarshal(raw, targets[k]); err != nil {
			return Credential{}, reject.Wrap(reject.MalformedPayload, err, "field", k)
		}
	}
	if c.Kind != Kind {
		return Credential{}, reject.New(reject.MalformedPayload, "field", "kind")
	}
	if strings.TrimSpace(c.ServicePointID) == "" {
		return Credential{}, reject.New(reject.MalformedPayload, "field", "service_point_id")
	}
	if c.Signature == "" {
		return Credential{}, reject.New(reject.MalformedPayload, "field", "signature")
	}
	return c, nil
}

// Verify decodes payload and checks its signature under secret.
func Verify(payload []byte, secret []byte) (Credential, error) {
	c, err := Decode(payload)
	if err != nil {
		return Credential{}, err
	}
	if err := c.Verify(secret); err != nil {
		return Credential{}, err
	}
	return c, nil
}

// Fields is the issuer-side input to Issue.
type Fields struct {
	ServicePointID string
	Name           string
	Code           string
	Latitude       float64
	Longitude      float64
	RadiusMeters   float64
}

// Issue builds and signs a beacon, returning the credential and its encoded payload.
func Issue(f Fields, secret []byte, now time.Time) (Credential, []byte, error) {
	if strings.TrimSpace(f.ServicePointID) == "" {
		return Credential{}, nil, errors.New("beacon: service point id required")
	}
	c := Credential{
		Kind:           Kind,
		ServicePointID: f.ServicePointID,
		Name:           f.Name,
		Code:           f.Code,
		Latitude:       f.Latitude,
		Longitude:      f.Longitude,
		RadiusMeters:   f.RadiusMeters,
		IssuedAt:       now.UnixMilli(),
	}
	sig, err := c.Sign(secret)
	if err != nil {
		return Credential{}, nil, err
	}
	c.Signature = sig
	payload, err := encode(c)
	if err != nil {
		return Credential{}, nil, fmt.Errorf("beacon: encode: %w", err)
	}
	return c, payload, nil
}
