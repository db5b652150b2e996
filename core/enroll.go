package core

import (
	"context"

	"github.com/PaulFidika/mealkit/credential"
	"github.com/PaulFidika/mealkit/reject"
)

// Enroll registers an authenticator for req.IdentityID on behalf of actor.
func (s *Service) Enroll(ctx context.Context, actor Principal, req credential.EnrollRequest) (credential.Credential, error) {
	if err := Authorize(actor, CapEnroll, req.IdentityID); err != nil {
		return credential.Credential{}, err
	}
	return s.creds.Enroll(ctx, req)
}

// Revoke revokes the identity's credentials on behalf of actor.
func (s *Service) Revoke(ctx context.Context, actor Principal, identityID, reason string) error {
	if err := Authorize(actor, CapRevoke, identityID); err != nil {
		return err
	}
	if reason == "" {
		reason = "revoked by " + actor.ID
	}
	return s.creds.Revoke(ctx, identityID, reason)
}

// BeginAssertion issues a challenge for the actor's own active credential.
func (s *Service) BeginAssertion(ctx context.Context, actor Principal) (credential.Challenge, error) {
	if err := Authorize(actor, CapScan, actor.ID); err != nil {
		return credential.Challenge{}, err
	}
	c, err := s.creds.Active(ctx, actor.ID)
	if err != nil {
		return credential.Challenge{}, err
	}
	if c == nil {
		return credential.Challenge{}, reject.New(reject.CredentialNotFound)
	}
	return s.creds.BeginAssertion(ctx, c.CredentialID)
}
