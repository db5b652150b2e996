// Package testkit provides fixtures for testing code built on mealkit: a
// token issuer that serves its JWKS, a simulated authenticator, and signed
// beacons.
//
// Example usage:
//
//	issuer := testkit.NewTestIssuer()
//	defer issuer.Close()
//
//	keys, _ := jwtkit.FetchJWKS(ctx, issuer.JWKSURL())
//	verifier := jwtkit.NewVerifier(keys, issuer.URL(), issuer.Audience())
//	token := issuer.CreateToken("student-1", "student")
package testkit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	jwtkit "github.com/PaulFidika/mealkit/jwt"
)

// TestIssuer signs bearer tokens and serves the matching JWKS at
// /.well-known/jwks.json.
type TestIssuer struct {
	server   *httptest.Server
	signer   *jwtkit.RSASigner
	audience string
}

// NewTestIssuer creates an issuer for audience "mealkit-test".
func NewTestIssuer() *TestIssuer {
	return NewTestIssuerWithAudience("mealkit-test")
}

func NewTestIssuerWithAudience(audience string) *TestIssuer {
	signer, err := jwtkit.NewRSASigner(2048, "test-key-1")
	if err != nil {
		panic("failed to create RSA signer: " + err.Error())
	}
	ti := &TestIssuer{signer: signer, audience: audience}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		jwtkit.ServeJWKS(w, r, jwtkit.JWKSFor(ti.signer))
	})
	ti.server = httptest.NewServer(mux)
	return ti
}

func (ti *TestIssuer) URL() string      { return ti.server.URL }
func (ti *TestIssuer) JWKSURL() string  { return ti.server.URL + "/.well-known/jwks.json" }
func (ti *TestIssuer) Audience() string { return ti.audience }

// Keys returns the issuer's verification keys without going over HTTP.
func (ti *TestIssuer) Keys() jwtkit.StaticKeys {
	return jwtkit.JWKSFor(ti.signer).RSAPublicKeys()
}

// Verifier returns a verifier that accepts this issuer's tokens.
func (ti *TestIssuer) Verifier() *jwtkit.Verifier {
	return jwtkit.NewVerifier(ti.Keys(), ti.URL(), ti.audience)
}

func (ti *TestIssuer) Close() {
	if ti.server != nil {
		ti.server.Close()
	}
}

// CreateToken signs a one-hour token for subject with role.
func (ti *TestIssuer) CreateToken(subject, role string) string {
	return ti.CreateTokenWithExpiry(subject, role, time.Now().Add(time.Hour))
}

// CreateTokenWithExpiry signs a token expiring at expiry.
func (ti *TestIssuer) CreateTokenWithExpiry(subject, role string, expiry time.Time) string {
	claims := jwtkit.NewClaims(subject, role, ti.URL(), ti.audience, time.Until(expiry))
	token, err := ti.signer.Sign(context.Background(), claims)
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return token
}

// CreateExpiredToken signs a token that expired an hour ago.
func (ti *TestIssuer) CreateExpiredToken(subject, role string) string {
	return ti.CreateTokenWithExpiry(subject, role, time.Now().Add(-time.Hour))
}
