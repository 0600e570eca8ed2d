package db

import (
	"database/sql"

	"github.com/jailfriend/go-call-infra/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	// Import postgres driver for database/sql package
	_ "github.com/lib/pq"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS user_profiles (
		user_id       TEXT PRIMARY KEY,
		available_from TEXT NOT NULL DEFAULT '',
		available_to   TEXT NOT NULL DEFAULT '',
		working_hours  JSONB NOT NULL DEFAULT '[]',
		timezone       TEXT NOT NULL DEFAULT 'UTC',
		matchable      BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_profiles_matchable
		ON user_profiles (matchable, updated_at DESC)`,
}

func newMigrate() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies the database schema",
		Run: func(cmd *cobra.Command, args []string) {
			if err := applyMigrations(); err != nil {
				log.Fatal().Err(err).Msg("Failed to apply migrations")
			}
		},
	}
}

func applyMigrations() error {
	cfg := config.DefaultServerConfigFromEnv()

	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()

	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
		log.Info().Int("migration", i+1).Msg("Migration applied")
	}

	log.Info().Int("count", len(migrations)).Msg("Database schema up to date")
	return nil
}
