package credential

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/mr-tron/base58"
)

const ed25519Prefix = "ed25519:"

// PublicKey verifies signatures made by an enrolled authenticator.
type PublicKey interface {
	Verify(msg, sig []byte) bool
	Algorithm() string
}

// ParsePublicKey accepts either "ed25519:<base58>" or a public JWK document
// (EC P-256, RSA, or OKP Ed25519).
func ParsePublicKey(s string) (PublicKey, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, ed25519Prefix):
		raw, err := base58.Decode(strings.TrimPrefix(s, ed25519Prefix))
		if err != nil {
			return nil, fmt.Errorf("invalid base58 key: %w", err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid ed25519 key length: %d", len(raw))
		}
		return ed25519Key(raw), nil
	case strings.HasPrefix(s, "{"):
		return parseJWK([]byte(s))
	default:
		return nil, errors.New("unsupported public key encoding")
	}
}

// EncodeEd25519 renders pub in the "ed25519:<base58>" form.
func EncodeEd25519(pub ed25519.PublicKey) string {
	return ed25519Prefix + base58.Encode(pub)
}

func parseJWK(b []byte) (PublicKey, error) {
	key, err := jwk.ParseKey(b)
	if err != nil {
		return nil, fmt.Errorf("invalid jwk: %w", err)
	}
	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("invalid jwk: %w", err)
	}
	switch k := raw.(type) {
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return nil, errors.New("only P-256 EC keys are supported")
		}
		return ecdsaKey{k}, nil
	case *rsa.PublicKey:
		if k.N.BitLen() < 2048 {
			return nil, errors.New("rsa key too small")
		}
		return rsaKey{k}, nil
	case ed25519.PublicKey:
		return ed25519Key(k), nil
	case *ecdsa.PrivateKey, *rsa.PrivateKey, ed25519.PrivateKey:
		return nil, errors.New("jwk contains private key material")
	default:
		return nil, fmt.Errorf("unsupported jwk key type %T", raw)
	}
}

type ed25519Key ed25519.PublicKey

func (k ed25519Key) Verify(msg, sig []byte) bool {
	return len(sig) == ed25519.SignatureSize && ed25519.Verify(ed25519.PublicKey(k), msg, sig)
}
func (ed25519Key) Algorithm() string { return "EdDSA" }

type ecdsaKey struct{ pub *ecdsa.PublicKey }

func (k ecdsaKey) Verify(msg, sig []byte) bool {
	sum := sha256.Sum256(msg)
	return ecdsa.VerifyASN1(k.pub, sum[:], sig)
}
func (ecdsaKey) Algorithm() string { return "ES256" }

type rsaKey struct{ pub *rsa.PublicKey }

func (k rsaKey) Verify(msg, sig []byte) bool {
	sum := sha256.Sum256(msg)
	return rsa.VerifyPKCS1v15(k.pub, crypto.SHA256, sum[:], sig) == nil
}
func (rsaKey) Algorithm() string { return "RS256" }

// AssertionMessage is what an authenticator signs:
// challenge || uint32be(counter) || sha256(clientContext).
func AssertionMessage(challenge string, counter uint32, clientContext []byte) []byte {
	ctxSum := sha256.Sum256(clientContext)
	msg := make([]byte, 0, len(challenge)+4+sha256.Size)
	msg = append(msg, challenge...)
	msg = binary.BigEndian.AppendUint32(msg, counter)
	return append(msg, ctxSum[:]...)
}
