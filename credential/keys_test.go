package credential

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/json"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jwkJSON(t *testing.T, raw any) string {
	t.Helper()
	k, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	b, err := json.Marshal(k)
	require.NoError(t, err)
	return string(b)
}

func TestParseEd25519Base58(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	k, err := ParsePublicKey(EncodeEd25519(pub))
	require.NoError(t, err)
	assert.Equal(t, "EdDSA", k.Algorithm())

	msg := AssertionMessage("abc", 1, []byte(`{}`))
	assert.True(t, k.Verify(msg, ed25519.Sign(priv, msg)))
	assert.False(t, k.Verify(AssertionMessage("abc", 2, []byte(`{}`)), ed25519.Sign(priv, msg)))
}

func TestParseJWKKeys(t *testing.T) {
	msg := AssertionMessage("challenge", 42, []byte(`{"service_point_id":"sp-1"}`))
	sum := sha256.Sum256(msg)

	t.Run("ec p256", func(t *testing.T) {
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		k, err := ParsePublicKey(jwkJSON(t, &priv.PublicKey))
		require.NoError(t, err)
		sig, err := ecdsa.SignASN1(rand.Reader, priv, sum[:])
		require.NoError(t, err)
		assert.Equal(t, "ES256", k.Algorithm())
		assert.True(t, k.Verify(msg, sig))
		assert.False(t, k.Verify(append(msg, 0), sig))
	})

	t.Run("rsa", func(t *testing.T) {
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		k, err := ParsePublicKey(jwkJSON(t, &priv.PublicKey))
		require.NoError(t, err)
		sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, sum[:])
		require.NoError(t, err)
		assert.True(t, k.Verify(msg, sig))
	})

	t.Run("okp ed25519", func(t *testing.T) {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		k, err := ParsePublicKey(jwkJSON(t, pub))
		require.NoError(t, err)
		assert.True(t, k.Verify(msg, ed25519.Sign(priv, msg)))
	})
}

func TestParseRejects(t *testing.T) {
	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	smallRSA, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	ecPriv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"unknown form": "pem:abc",
		"short ed":     "ed25519:" + "3mJr7AoUXx2Wqd",
		"bad jwk":      `{"kty":"EC"}`,
		"p384":         jwkJSON(t, &p384.PublicKey),
		"small rsa":    jwkJSON(t, &smallRSA.PublicKey),
		"private jwk":  jwkJSON(t, ecPriv),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePublicKey(in)
			assert.Error(t, err)
		})
	}
}

func TestAssertionMessageLayout(t *testing.T) {
	msg := AssertionMessage("ab", 0x01020304, nil)
	sum := sha256.Sum256(nil)
	require.Len(t, msg, 2+4+32)
	assert.Equal(t, []byte("ab"), msg[:2])
	assert.Equal(t, []byte{1, 2, 3, 4}, msg[2:6])
	assert.Equal(t, sum[:], msg[6:])
}
