package db

import (
	"database/sql"

	"github.com/jailfriend/go-call-infra/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	_ "github.com/lib/pq"
)

type seedProfile struct {
	userID        string
	availableFrom string
	availableTo   string
	workingHours  string
	timezone      string
}

// seedProfiles covers the interesting availability shapes: a plain daytime
// window, a window that wraps midnight, and a profile in a non-UTC zone.
var seedProfiles = []seedProfile{
	{
		userID:        "user-day",
		availableFrom: "09:00",
		availableTo:   "17:00",
		workingHours:  `[{"day":1,"from":"09:00","to":"17:00"},{"day":2,"from":"09:00","to":"17:00"},{"day":3,"from":"09:00","to":"17:00"},{"day":4,"from":"09:00","to":"17:00"},{"day":5,"from":"09:00","to":"17:00"}]`,
		timezone:      "UTC",
	},
	{
		userID:        "user-night",
		availableFrom: "22:00",
		availableTo:   "06:00",
		workingHours:  `[{"day":1,"from":"22:00","to":"06:00"},{"day":2,"from":"22:00","to":"06:00"},{"day":3,"from":"22:00","to":"06:00"}]`,
		timezone:      "UTC",
	},
	{
		userID:        "user-tokyo",
		availableFrom: "10:00",
		availableTo:   "19:00",
		workingHours:  `[{"day":1,"from":"10:00","to":"19:00"},{"day":2,"from":"10:00","to":"19:00"},{"day":3,"from":"10:00","to":"19:00"},{"day":4,"from":"10:00","to":"19:00"},{"day":5,"from":"10:00","to":"19:00"}]`,
		timezone:      "Asia/Tokyo",
	},
}

func newSeed() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Inserts development fixture profiles",
		Run: func(cmd *cobra.Command, args []string) {
			if err := applySeeds(); err != nil {
				log.Fatal().Err(err).Msg("Failed to seed database")
			}
		},
	}
}

func applySeeds() error {
	cfg := config.DefaultServerConfigFromEnv()

	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()

	for _, p := range seedProfiles {
		_, err := db.Exec(`
			INSERT INTO user_profiles (user_id, available_from, available_to, working_hours, timezone)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id) DO UPDATE SET
				available_from = EXCLUDED.available_from,
				available_to = EXCLUDED.available_to,
				working_hours = EXCLUDED.working_hours,
				timezone = EXCLUDED.timezone,
				updated_at = now()`,
			p.userID, p.availableFrom, p.availableTo, p.workingHours, p.timezone)
		if err != nil {
			return err
		}
		log.Info().Str("user_id", p.userID).Msg("Seeded profile")
	}

	return nil
}
