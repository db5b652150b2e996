package testkit

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"sync"

	"github.com/PaulFidika/mealkit/credential"
)

// Authenticator simulates an enrolled device: it holds an ed25519 key and a
// signature counter, and answers challenges the way a real authenticator does.
type Authenticator struct {
	ID   string
	priv ed25519.PrivateKey

	mu      sync.Mutex
	counter uint32
}

// NewAuthenticator generates a fresh device key.
func NewAuthenticator(id string) *Authenticator {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic("generate ed25519 key: " + err.Error())
	}
	return &Authenticator{ID: id, priv: priv}
}

// PublicKey is the enrollment form of the device key.
func (a *Authenticator) PublicKey() string {
	return credential.EncodeEd25519(a.priv.Public().(ed25519.PublicKey))
}

// EnrollRequest builds an enrollment for identity.
func (a *Authenticator) EnrollRequest(identity string) credential.EnrollRequest {
	return credential.EnrollRequest{
		IdentityID:   identity,
		CredentialID: a.ID,
		PublicKey:    a.PublicKey(),
		DeviceInfo:   "testkit",
	}
}

// Sign answers challenge at the next counter value.
func (a *Authenticator) Sign(challenge string, clientContext []byte) credential.Assertion {
	a.mu.Lock()
	a.counter++
	n := a.counter
	a.mu.Unlock()
	return a.SignAt(challenge, n, clientContext)
}

// SignAt answers challenge with an explicit counter, as a cloned or
// tampered device would.
func (a *Authenticator) SignAt(challenge string, counter uint32, clientContext []byte) credential.Assertion {
	msg := credential.AssertionMessage(challenge, counter, clientContext)
	return credential.Assertion{
		CredentialID:  a.ID,
		Challenge:     challenge,
		Signature:     ed25519.Sign(a.priv, msg),
		Counter:       counter,
		ClientContext: clientContext,
	}
}

// ClientContext returns the context document naming a service point.
func ClientContext(servicePointID string) []byte {
	b, _ := json.Marshal(map[string]string{"service_point_id": servicePointID})
	return b
}
