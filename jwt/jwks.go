package jwtkit

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
)

// JWK holds the fields of an RSA verification key.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWKSFor publishes the public halves of signers.
func JWKSFor(signers ...*RSASigner) JWKS {
	ks := JWKS{Keys: make([]JWK, 0, len(signers))}
	for _, s := range signers {
		pub := s.PublicKey()
		ks.Keys = append(ks.Keys, JWK{
			Kty: "RSA",
			Use: "sig",
			Kid: s.KID(),
			Alg: s.Algorithm(),
			N:   b64(pub.N),
			E:   b64(big.NewInt(int64(pub.E))),
		})
	}
	return ks
}

// RSAPublicKeys converts a published key set back to verification keys.
func (ks JWKS) RSAPublicKeys() StaticKeys {
	out := make(StaticKeys, len(ks.Keys))
	for _, k := range ks.Keys {
		n, err1 := base64.RawURLEncoding.DecodeString(k.N)
		e, err2 := base64.RawURLEncoding.DecodeString(k.E)
		if k.Kty != "RSA" || err1 != nil || err2 != nil {
			continue
		}
		out[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}
	}
	return out
}

// ServeJWKS writes ks with an ETag and honours If-None-Match.
func ServeJWKS(w http.ResponseWriter, r *http.Request, ks JWKS) {
	b, _ := json.Marshal(ks)
	sum := sha256.Sum256(b)
	etag := "\"" + hex.EncodeToString(sum[:]) + "\""
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300, must-revalidate")
	w.Header().Set("ETag", etag)
	_, _ = w.Write(b)
}

func b64(i *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(i.Bytes())
}
