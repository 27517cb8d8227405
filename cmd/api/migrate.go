package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/exmoboty/starter/internal/config"
	"github.com/exmoboty/starter/internal/repository"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply or roll back the MySQL schema. The mongo backend creates its
indexes at startup and the memory backend needs no schema.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, (*repository.Migrator).Up)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, (*repository.Migrator).Down)
		},
	})

	return cmd
}

func runMigrate(cmd *cobra.Command, step func(*repository.Migrator) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StoreBackend != config.BackendMySQL {
		cmd.Printf("Store backend %q has no migrations, nothing to do\n", cfg.StoreBackend)
		return nil
	}

	m, err := repository.NewMigrator(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer m.Close()

	cmd.Println("Running migrations...")
	if err := step(m); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", cmd.Name()).Wrap(err)
	}

	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Schema at version %d (dirty: %t)\n", v, dirty)
	return nil
}
