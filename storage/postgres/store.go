// Package pgstore implements the engine's stores on PostgreSQL via pgx.
//
// The two races the engine cares about are settled by the database: the
// credential counter advances with a single conditional UPDATE, and the
// attendance unique constraint picks the winner among duplicate scans.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PaulFidika/mealkit/credential"
	"github.com/PaulFidika/mealkit/entitlements"
	"github.com/PaulFidika/mealkit/ledger"
	"github.com/PaulFidika/mealkit/servicepoint"
)

// ErrNoPool is returned by every call on a Store built without a pool.
var ErrNoPool = errors.New("pgstore: no database pool")

// Store is backed by a pgx pool. Tables are qualified with schema.
type Store struct {
	pg     *pgxpool.Pool
	schema string
}

var (
	_ credential.Store       = (*Store)(nil)
	_ entitlements.Store     = (*Store)(nil)
	_ ledger.Store           = (*Store)(nil)
	_ servicepoint.Directory = (*Store)(nil)
)

// NewStore wraps pg. An empty schema means "mealkit".
func NewStore(pg *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "mealkit"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) table(name string) string { return s.schema + "." + name }

// execTx runs fn in a transaction, rolling back when fn fails.
func (s *Store) execTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if s.pg == nil {
		return ErrNoPool
	}
	tx, err := s.pg.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback failed: %v, original error: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func uniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}
