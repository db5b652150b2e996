package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/PaulFidika/mealkit/credential"
)

const credentialColumns = `id, identity_id, credential_id, public_key, counter, status,
	COALESCE(status_reason, ''), COALESCE(device_info, ''), use_count, enrolled_at, last_used_at, status_changed_at`

func scanCredential(row pgx.Row) (credential.Credential, error) {
	var (
		c       credential.Credential
		counter int64
		status  string
	)
	err := row.Scan(&c.ID, &c.IdentityID, &c.CredentialID, &c.PublicKey, &counter, &status,
		&c.StatusReason, &c.DeviceInfo, &c.UseCount, &c.EnrolledAt, &c.LastUsedAt, &c.StatusAt)
	if err != nil {
		return credential.Credential{}, err
	}
	c.Counter = uint32(counter)
	c.Status = credential.Status(status)
	return c, nil
}

func (s *Store) Create(ctx context.Context, c credential.Credential) error {
	if s.pg == nil {
		return ErrNoPool
	}
	_, err := s.pg.Exec(ctx, `INSERT INTO `+s.table("credentials")+`
		(id, identity_id, credential_id, public_key, counter, status, device_info, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`,
		c.ID, c.IdentityID, c.CredentialID, c.PublicKey, int64(c.Counter), string(c.Status), c.DeviceInfo, c.EnrolledAt)
	if name, ok := uniqueViolation(err); ok {
		if name == "credentials_one_live_per_identity" {
			return credential.ErrAlreadyEnrolled
		}
		return credential.ErrDuplicateID
	}
	return err
}

func (s *Store) GetByCredentialID(ctx context.Context, credentialID string) (credential.Credential, error) {
	if s.pg == nil {
		return credential.Credential{}, ErrNoPool
	}
	c, err := scanCredential(s.pg.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM `+s.table("credentials")+` WHERE credential_id = $1`, credentialID))
	if errors.Is(err, pgx.ErrNoRows) {
		return credential.Credential{}, credential.ErrNotFound
	}
	return c, err
}

func (s *Store) ListByIdentity(ctx context.Context, identityID string) ([]credential.Credential, error) {
	if s.pg == nil {
		return nil, ErrNoPool
	}
	rows, err := s.pg.Query(ctx,
		`SELECT `+credentialColumns+` FROM `+s.table("credentials")+` WHERE identity_id = $1 ORDER BY enrolled_at`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []credential.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AdvanceCounter is one conditional UPDATE; concurrent callers with the same
// counter cannot both see a row affected.
func (s *Store) AdvanceCounter(ctx context.Context, credentialID string, counter uint32, at time.Time) (bool, error) {
	if s.pg == nil {
		return false, ErrNoPool
	}
	tag, err := s.pg.Exec(ctx, `UPDATE `+s.table("credentials")+`
		SET counter = $2, use_count = use_count + 1, last_used_at = $3
		WHERE credential_id = $1 AND status = 'active' AND counter < $2`,
		credentialID, int64(counter), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Suspend(ctx context.Context, credentialID, reason string, at time.Time) error {
	if s.pg == nil {
		return ErrNoPool
	}
	_, err := s.pg.Exec(ctx, `UPDATE `+s.table("credentials")+`
		SET status = 'suspended', status_reason = $2, status_changed_at = $3
		WHERE credential_id = $1 AND status = 'active'`, credentialID, reason, at)
	return err
}

func (s *Store) RevokeAll(ctx context.Context, identityID, reason string, at time.Time) (int, error) {
	if s.pg == nil {
		return 0, ErrNoPool
	}
	tag, err := s.pg.Exec(ctx, `UPDATE `+s.table("credentials")+`
		SET status = 'revoked', status_reason = $2, status_changed_at = $3
		WHERE identity_id = $1 AND status <> 'revoked'`, identityID, reason, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
