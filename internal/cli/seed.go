package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vaywinar/cerdas-cermat/internal/config"
)

// NewSeedCmd loads the built-in demo question bank into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the demo question bank into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath)
		},
	}
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	seeded := 0
	for _, q := range demoQuestions() {
		var options []byte
		if len(q.Options) > 0 {
			options, err = json.Marshal(q.Options)
			if err != nil {
				return err
			}
		}
		tag, err := pool.Exec(ctx, `
			INSERT INTO questions (id, text, type, category, options, correct_answer, points, wrong_answer_penalty)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`,
			q.ID, q.Text, string(q.Type), q.Category, options, q.CorrectAnswer, q.Points, q.WrongAnswerPenalty)
		if err != nil {
			return fmt.Errorf("seed question %d: %w", q.ID, err)
		}
		seeded += int(tag.RowsAffected())
	}

	log.Info().Int("seeded", seeded).Msg("question bank seeded")
	return nil
}
