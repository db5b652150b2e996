// Package migrations embeds the PostgreSQL schema of the attendance engine.
package migrations

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var migrationFS embed.FS

// FS exposes the embedded SQL for external runners.
var FS = migrationFS

// Migrations is the bun/migrate registry; every table lives in the
// "mealkit" schema.
var Migrations = migrate.NewMigrations()

func init() {
	if err := Migrations.Discover(migrationFS); err != nil {
		panic("mealkit migrations: " + err.Error())
	}
}

// Open wraps a pgx pool in a bun DB for the migrator.
func Open(pool *pgxpool.Pool) *bun.DB {
	return bun.NewDB(stdlib.OpenDBFromPool(pool), pgdialect.New())
}

func migrator(ctx context.Context, db *bun.DB) (*migrate.Migrator, error) {
	m := migrate.NewMigrator(db, Migrations)
	if err := m.Init(ctx); err != nil {
		return nil, err
	}
	if err := m.Lock(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Up applies every pending migration and returns the group it ran.
func Up(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	m, err := migrator(ctx, db)
	if err != nil {
		return nil, err
	}
	defer m.Unlock(ctx) //nolint:errcheck
	return m.Migrate(ctx)
}

// Down rolls back the most recent migration group.
func Down(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	m, err := migrator(ctx, db)
	if err != nil {
		return nil, err
	}
	defer m.Unlock(ctx) //nolint:errcheck
	return m.Rollback(ctx)
}
