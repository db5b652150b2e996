package main

import (
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"

	"github.com/PaulFidika/mealkit/config"
	"github.com/PaulFidika/mealkit/jobs"
	migrations "github.com/PaulFidika/mealkit/migrations/postgres"
)

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations, including the job queue tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, true)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, false)
		},
	})
	return cmd
}

func runMigrate(cmd *cobra.Command, up bool) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	log := cfg.Logger()

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	db := migrations.Open(pool)
	defer db.Close()

	var group *migrate.MigrationGroup
	if up {
		group, err = migrations.Up(ctx, db)
	} else {
		group, err = migrations.Down(ctx, db)
	}
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info("schema already at the requested version")
	} else {
		log.WithField("group", group.String()).Info("schema migrated")
	}

	if up {
		n, err := jobs.Migrate(ctx, pool)
		if err != nil {
			return err
		}
		log.WithField("versions", n).Info("job queue migrated")
	}
	return nil
}
