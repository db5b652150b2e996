package memorystore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/PaulFidika/mealkit/credential"
	"github.com/PaulFidika/mealkit/entitlements"
	"github.com/PaulFidika/mealkit/ledger"
	"github.com/PaulFidika/mealkit/mealwindow"
	"github.com/PaulFidika/mealkit/servicepoint"
)

// Store keeps every engine table in process memory behind one mutex, so a
// ledger commit and its confirmation transition are atomic. It backs tests
// and single-node demos.
type Store struct {
	mu            sync.Mutex
	points        map[string]servicepoint.ServicePoint
	credentials   map[string]*credential.Credential // by credential id
	entitlements  map[string][]entitlements.Entitlement
	confirmations map[ledger.Key]*entitlements.Confirmation
	records       map[ledger.Key]ledger.Record
}

var (
	_ credential.Store       = (*Store)(nil)
	_ entitlements.Store     = (*Store)(nil)
	_ ledger.Store           = (*Store)(nil)
	_ servicepoint.Directory = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		points:        make(map[string]servicepoint.ServicePoint),
		credentials:   make(map[string]*credential.Credential),
		entitlements:  make(map[string][]entitlements.Entitlement),
		confirmations: make(map[ledger.Key]*entitlements.Confirmation),
		records:       make(map[ledger.Key]ledger.Record),
	}
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func normKey(k ledger.Key) ledger.Key {
	k.Date = day(k.Date)
	return k
}

// Seeding. These stand in for the administrative and billing workflows.

func (s *Store) PutServicePoint(sp servicepoint.ServicePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[sp.ID] = sp
}

func (s *Store) PutEntitlement(e entitlements.Entitlement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := e.IdentityID + "\x00" + e.ServicePointID
	list := s.entitlements[k]
	for i := range list {
		if list[i].ID == e.ID {
			list[i] = e
			return
		}
	}
	s.entitlements[k] = append(list, e)
}

func (s *Store) PutConfirmation(c entitlements.Confirmation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := normKey(ledger.Key{IdentityID: c.IdentityID, ServicePointID: c.ServicePointID, Date: c.Date, Slot: c.Slot})
	c.Date = k.Date
	s.confirmations[k] = &c
}

// Service points.

func (s *Store) Get(_ context.Context, id string) (servicepoint.ServicePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.points[id]
	if !ok {
		return servicepoint.ServicePoint{}, servicepoint.ErrNotFound
	}
	return sp, nil
}

// Credentials.

func (s *Store) Create(_ context.Context, c credential.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[c.CredentialID]; ok {
		return credential.ErrDuplicateID
	}
	for _, cur := range s.credentials {
		if cur.IdentityID == c.IdentityID && cur.Status != credential.StatusRevoked {
			return credential.ErrAlreadyEnrolled
		}
	}
	s.credentials[c.CredentialID] = &c
	return nil
}

func (s *Store) GetByCredentialID(_ context.Context, credentialID string) (credential.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[credentialID]
	if !ok {
		return credential.Credential{}, credential.ErrNotFound
	}
	return *c, nil
}

func (s *Store) ListByIdentity(_ context.Context, identityID string) ([]credential.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []credential.Credential
	for _, c := range s.credentials {
		if c.IdentityID == identityID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrolledAt.Before(out[j].EnrolledAt) })
	return out, nil
}

func (s *Store) AdvanceCounter(_ context.Context, credentialID string, counter uint32, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[credentialID]
	if !ok || c.Status != credential.StatusActive || counter <= c.Counter {
		return false, nil
	}
	c.Counter = counter
	c.UseCount++
	c.LastUsedAt = &at
	return true, nil
}

func (s *Store) Suspend(_ context.Context, credentialID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[credentialID]
	if !ok {
		return credential.ErrNotFound
	}
	if c.Status == credential.StatusActive {
		c.Status = credential.StatusSuspended
		c.StatusReason = reason
		c.StatusAt = &at
	}
	return nil
}

func (s *Store) RevokeAll(_ context.Context, identityID, reason string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.credentials {
		if c.IdentityID != identityID || c.Status == credential.StatusRevoked {
			continue
		}
		c.Status = credential.StatusRevoked
		c.StatusReason = reason
		c.StatusAt = &at
		n++
	}
	return n, nil
}

// Entitlements and confirmations.

func (s *Store) ListEntitlements(_ context.Context, identityID, servicePointID string) ([]entitlements.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.entitlements[identityID+"\x00"+servicePointID]
	return append([]entitlements.Entitlement(nil), list...), nil
}

func (s *Store) GetConfirmation(_ context.Context, identityID, servicePointID string, date time.Time, slot mealwindow.Slot) (entitlements.Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.confirmations[normKey(ledger.Key{IdentityID: identityID, ServicePointID: servicePointID, Date: date, Slot: slot})]
	if !ok {
		return entitlements.Confirmation{}, entitlements.ErrNotFound
	}
	return *c, nil
}

// Ledger.

func (s *Store) Exists(_ context.Context, k ledger.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[normKey(k)]
	return ok, nil
}

func (s *Store) Commit(_ context.Context, rec ledger.Record, attend *entitlements.Confirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Date = day(rec.Date)
	k := rec.Key()
	if _, ok := s.records[k]; ok {
		return ledger.ErrDuplicate
	}
	var conf *entitlements.Confirmation
	if attend != nil {
		ck := normKey(ledger.Key{IdentityID: attend.IdentityID, ServicePointID: attend.ServicePointID, Date: attend.Date, Slot: attend.Slot})
		conf = s.confirmations[ck]
		if conf == nil || conf.Status != entitlements.ConfirmationConfirmed {
			return ledger.ErrConfirmationChanged
		}
	}
	s.records[k] = rec
	if conf != nil {
		at := rec.Timestamp
		conf.Status = entitlements.ConfirmationAttended
		conf.AttendedAt = &at
	}
	return nil
}

func (s *Store) List(_ context.Context, identityID string, date time.Time) ([]ledger.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := day(date)
	var out []ledger.Record
	for k, r := range s.records {
		if k.IdentityID == identityID && k.Date.Equal(d) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Count returns the number of ledger records.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
