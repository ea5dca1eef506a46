package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"trivia-service/internal/config"
	"trivia-service/internal/infra/postgres"
	"trivia-service/internal/observability"
)

// NewMigrateCmd applies Postgres schema migrations. SQLite migrates itself on open.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run Postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	log := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)

	group, err := postgres.Migrate(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info("no new migrations")
		return nil
	}
	log.Info("migrations applied", "group", group.String())
	return nil
}
