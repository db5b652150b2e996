package beacon

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// ErrUnknownSecret is returned when no secret exists for a service point.
var ErrUnknownSecret = errors.New("beacon: unknown signing secret")

// SecretSource resolves the HMAC key for a service point. secretRef is the
// service point's current secret reference; rotating it invalidates every
// beacon issued under the previous one.
type SecretSource interface {
	Secret(ctx context.Context, servicePointID, secretRef string) ([]byte, error)
}

// StaticSecrets maps secret references to raw keys. Useful for tests and
// deployments that provision one key per service point out of band.
type StaticSecrets struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

func NewStaticSecrets(keys map[string][]byte) *StaticSecrets {
	m := make(map[string][]byte, len(keys))
	for k, v := range keys {
		m[k] = append([]byte(nil), v...)
	}
	return &StaticSecrets{keys: m}
}

// Put installs or replaces the key for secretRef.
func (s *StaticSecrets) Put(secretRef string, key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[secretRef] = append([]byte(nil), key...)
}

func (s *StaticSecrets) Secret(_ context.Context, _ string, secretRef string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[secretRef]
	if !ok || len(k) == 0 {
		return nil, ErrUnknownSecret
	}
	return k, nil
}

// DerivedSecrets derives per-service-point keys from one master secret with
// HKDF-SHA256 (salt = service point id, info = secret reference).
type DerivedSecrets struct {
	master []byte
}

func NewDerivedSecrets(master []byte) (*DerivedSecrets, error) {
	if len(master) < 32 {
		return nil, errors.New("beacon: master secret must be at least 32 bytes")
	}
	return &DerivedSecrets{master: append([]byte(nil), master...)}, nil
}

func (d *DerivedSecrets) Secret(_ context.Context, servicePointID, secretRef string) ([]byte, error) {
	if servicePointID == "" || secretRef == "" {
		return nil, ErrUnknownSecret
	}
	r := hkdf.New(sha256.New, d.master, []byte(servicePointID), []byte("mealkit/beacon/"+secretRef))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("beacon: derive secret: %w", err)
	}
	return key, nil
}
