package credential

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/mealkit/cache"
	"github.com/PaulFidika/mealkit/reject"
)

// Registry enrolls credentials and verifies their assertions.
type Registry struct {
	store        Store
	challenges   cache.Cache
	challengeTTL time.Duration
	now          func() time.Time
	log          logrus.FieldLogger
}

// Option configures a Registry.
type Option func(*Registry)

// WithChallengeTTL sets how long an issued challenge stays valid.
func WithChallengeTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.challengeTTL = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry builds a registry over store, keeping challenges in challenges.
func NewRegistry(store Store, challenges cache.Cache, opts ...Option) *Registry {
	r := &Registry{
		store:        store,
		challenges:   challenges,
		challengeTTL: 2 * time.Minute,
		now:          time.Now,
		log:          logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithField("component", "credential_registry")
	return r
}

// Enroll registers a new authenticator for an identity. An identity holding
// an active or suspended credential must revoke it first.
func (r *Registry) Enroll(ctx context.Context, req EnrollRequest) (Credential, error) {
	req.IdentityID = strings.TrimSpace(req.IdentityID)
	req.CredentialID = strings.TrimSpace(req.CredentialID)
	if req.IdentityID == "" || req.CredentialID == "" {
		return Credential{}, reject.New(reject.MalformedPayload, "field", "identity/credential_id")
	}
	if _, err := ParsePublicKey(req.PublicKey); err != nil {
		return Credential{}, reject.Wrap(reject.MalformedPayload, err, "field", "public_key")
	}
	c := Credential{
		ID:           uuid.New(),
		IdentityID:   req.IdentityID,
		CredentialID: req.CredentialID,
		PublicKey:    strings.TrimSpace(req.PublicKey),
		Counter:      0,
		Status:       StatusActive,
		DeviceInfo:   req.DeviceInfo,
		EnrolledAt:   r.now().UTC(),
	}
	switch err := r.store.Create(ctx, c); {
	case err == nil:
	case errors.Is(err, ErrAlreadyEnrolled):
		return Credential{}, reject.New(reject.AlreadyEnrolled)
	case errors.Is(err, ErrDuplicateID):
		return Credential{}, reject.New(reject.AlreadyEnrolled, "field", "credential_id")
	default:
		return Credential{}, reject.Unavailable(err)
	}
	r.log.WithFields(logrus.Fields{"identity": c.IdentityID, "credential_id": c.CredentialID}).Info("credential enrolled")
	return c, nil
}

// Active returns the identity's active credential, or nil.
func (r *Registry) Active(ctx context.Context, identityID string) (*Credential, error) {
	list, err := r.store.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, reject.Unavailable(err)
	}
	for i := range list {
		if list[i].Status == StatusActive {
			return &list[i], nil
		}
	}
	return nil, nil
}

// Revoke revokes every active or suspended credential of the identity.
// Revoking an identity with nothing to revoke succeeds.
func (r *Registry) Revoke(ctx context.Context, identityID, reason string) error {
	n, err := r.store.RevokeAll(ctx, identityID, reason, r.now().UTC())
	if err != nil {
		return reject.Unavailable(err)
	}
	if n > 0 {
		r.log.WithFields(logrus.Fields{"identity": identityID, "count": n, "reason": reason}).Info("credentials revoked")
	}
	return nil
}

func (r *Registry) lookup(ctx context.Context, credentialID string) (Credential, error) {
	c, err := r.store.GetByCredentialID(ctx, credentialID)
	if errors.Is(err, ErrNotFound) {
		return Credential{}, reject.New(reject.CredentialNotFound)
	}
	if err != nil {
		return Credential{}, reject.Unavailable(err)
	}
	if c.Status != StatusActive {
		return Credential{}, reject.New(reject.CredentialRevoked, "status", string(c.Status))
	}
	return c, nil
}

func (r *Registry) challengeKey(credentialID, value string) string {
	return "challenge:" + credentialID + ":" + value
}

// BeginAssertion issues a fresh single-use challenge for an active credential.
func (r *Registry) BeginAssertion(ctx context.Context, credentialID string) (Challenge, error) {
	if _, err := r.lookup(ctx, credentialID); err != nil {
		return Challenge{}, err
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return Challenge{}, fmt.Errorf("generate challenge: %w", err)
	}
	ch := Challenge{
		CredentialID: credentialID,
		Value:        base64.RawURLEncoding.EncodeToString(b),
		ExpiresAt:    r.now().Add(r.challengeTTL).UTC(),
	}
	if err := r.challenges.Set(ctx, r.challengeKey(credentialID, ch.Value), []byte(credentialID), r.challengeTTL); err != nil {
		return Challenge{}, reject.Unavailable(err)
	}
	return ch, nil
}

// VerifyAssertion checks an assertion and advances the credential's counter.
// A counter that is not strictly greater than the stored one suspends the
// credential and fails with ReplayDetected.
func (r *Registry) VerifyAssertion(ctx context.Context, a Assertion) (Credential, error) {
	c, err := r.lookup(ctx, a.CredentialID)
	if err != nil {
		return Credential{}, err
	}
	if a.IdentityID != "" && a.IdentityID != c.IdentityID {
		return Credential{}, reject.New(reject.InvalidAssertion, "field", "credential_id")
	}
	// The signature is checked before the challenge is consumed so a forged
	// assertion cannot burn the owner's pending challenge.
	key := r.challengeKey(a.CredentialID, a.Challenge)
	owner, err := r.challenges.Get(ctx, key)
	if errors.Is(err, cache.ErrMiss) || (err == nil && string(owner) != a.CredentialID) {
		return Credential{}, reject.New(reject.InvalidAssertion, "field", "challenge")
	}
	if err != nil {
		return Credential{}, reject.Unavailable(err)
	}
	pub, err := ParsePublicKey(c.PublicKey)
	if err != nil {
		return Credential{}, reject.Wrap(reject.InvalidAssertion, err)
	}
	if !pub.Verify(AssertionMessage(a.Challenge, a.Counter, a.ClientContext), a.Signature) {
		return Credential{}, reject.New(reject.InvalidAssertion, "field", "signature")
	}
	if _, err := r.challenges.Take(ctx, key); errors.Is(err, cache.ErrMiss) {
		return Credential{}, reject.New(reject.InvalidAssertion, "field", "challenge")
	} else if err != nil {
		return Credential{}, reject.Unavailable(err)
	}

	now := r.now().UTC()
	ok, err := r.store.AdvanceCounter(ctx, a.CredentialID, a.Counter, now)
	if err != nil {
		return Credential{}, reject.Unavailable(err)
	}
	if ok {
		c.Counter = a.Counter
		c.UseCount++
		c.LastUsedAt = &now
		return c, nil
	}

	// The compare-and-set lost. Re-read to tell a concurrent revocation
	// apart from a replayed or cloned counter.
	cur, err := r.store.GetByCredentialID(ctx, a.CredentialID)
	if err != nil {
		return Credential{}, reject.Unavailable(err)
	}
	if cur.Status != StatusActive {
		return Credential{}, reject.New(reject.CredentialRevoked, "status", string(cur.Status))
	}
	if err := r.store.Suspend(ctx, a.CredentialID, "counter replay", now); err != nil {
		return Credential{}, reject.Unavailable(err)
	}
	r.log.WithFields(logrus.Fields{
		"identity":      cur.IdentityID,
		"credential_id": cur.CredentialID,
		"counter":       a.Counter,
	}).Warn("assertion counter did not increase; credential suspended")
	return cur, reject.New(reject.ReplayDetected, "counter", a.Counter)
}
