package jwtkit

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// KeySet resolves token verification keys by key id.
type KeySet interface {
	PublicKey(kid string) (*rsa.PublicKey, bool)
}

// StaticKeys is a fixed kid -> key map. A key stored under "" matches any
// kid, for issuers that do not set one.
type StaticKeys map[string]*rsa.PublicKey

func (s StaticKeys) PublicKey(kid string) (*rsa.PublicKey, bool) {
	if k, ok := s[kid]; ok {
		return k, true
	}
	k, ok := s[""]
	return k, ok
}

// LoadPublicKeys reads verification keys from path. The file is either a
// single PEM public key or a JSON document {"public_keys": {kid: pem}}.
func LoadPublicKeys(path string) (StaticKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public keys: %w", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		pub, err := jwt.ParseRSAPublicKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		return StaticKeys{"": pub}, nil
	}
	var doc struct {
		PublicKeys map[string]string `json:"public_keys"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make(StaticKeys, len(doc.PublicKeys))
	for kid, pemStr := range doc.PublicKeys {
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemStr))
		if err != nil {
			return nil, fmt.Errorf("parse public key %s: %w", kid, err)
		}
		out[kid] = pub
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s holds no public keys", path)
	}
	return out, nil
}

// FetchJWKS downloads an issuer's JWKS and keeps its RSA keys.
func FetchJWKS(ctx context.Context, url string) (StaticKeys, error) {
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	out := make(StaticKeys, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, _ := set.Key(i)
		var raw any
		if err := key.Raw(&raw); err != nil {
			continue
		}
		if pub, ok := raw.(*rsa.PublicKey); ok {
			out[key.KeyID()] = pub
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("jwks at %s holds no RSA keys", url)
	}
	return out, nil
}
