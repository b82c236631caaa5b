package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gatewarden/gatewarden/database"
	"github.com/gatewarden/gatewarden/pkg/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply policy store schema migrations",
	Long: `Apply the schema migrations for the PostgreSQL policy store used by the
casbin-postgres backend. The database connection is taken from the authz
section of the configuration file.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	migrateCmd.Flags().Bool("down", false, "Roll back all migrations instead of applying them")

	if err := viper.BindPFlag("migrate-config", migrateCmd.Flags().Lookup("config")); err != nil {
		slog.Error("Failed to bind config flag", "error", err)
	}

	if err := migrateCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(config.WithConfigPath(viper.GetString("migrate-config")))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Authz.Postgres == nil {
		return errors.New("migrations require a postgres configuration in the authz section")
	}

	connString, err := cfg.Authz.Postgres.GetConnectionString()
	if err != nil {
		return err
	}

	m, err := database.NewFromConnectionString(connString)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	down, err := cmd.Flags().GetBool("down")
	if err != nil {
		return err
	}

	if down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("Policy store schema already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	slog.Info("Policy store migrations applied", "version", version, "dirty", dirty)
	return nil
}
