package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vaywinar/cerdas-cermat/internal/config"
	"github.com/vaywinar/cerdas-cermat/internal/domain"
	"github.com/vaywinar/cerdas-cermat/internal/game"
	"github.com/vaywinar/cerdas-cermat/internal/infra/memory"
	pgloader "github.com/vaywinar/cerdas-cermat/internal/infra/postgres"
	redisinfra "github.com/vaywinar/cerdas-cermat/internal/infra/redis"
	transport "github.com/vaywinar/cerdas-cermat/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(demoQuestions())
	if pool != nil {
		loader = pgloader.NewQuestionLoader(pool)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questions game.QuestionRepository
	if redisClient != nil {
		questions = redisinfra.NewQuestionCatalog(redisClient, loader, questionTTL)
	} else {
		questions = memory.NewQuestionCatalog(loader, questionTTL)
	}

	var store game.Store
	if redisClient != nil {
		store = redisinfra.NewStore(redisClient)
	} else {
		store = memory.NewStore()
	}

	gameCfg := game.DefaultConfig()
	if cfg.Game.QuestionSeconds > 0 {
		gameCfg.QuestionSeconds = cfg.Game.QuestionSeconds
	}
	if cfg.Game.AdvanceDelaySeconds > 0 {
		gameCfg.AdvanceDelay = time.Duration(cfg.Game.AdvanceDelaySeconds) * time.Second
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := game.NewHub()
	engine := game.NewEngine(store, questions, hub, clockwork.NewRealClock(), gameCfg)
	go engine.Run(runCtx)

	wsHandler := transport.NewWSHandler(engine, hub)
	apiHandler := transport.NewAPIHandler(engine, store, questions)

	router := httprouter.New()
	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Write([]byte("ok"))
	})
	router.HandlerFunc(http.MethodGet, "/ws", wsHandler.ServeWS)
	apiHandler.Register(router)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting game server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// demoQuestions is the built-in question bank used when no Postgres is
// configured; swap in the Postgres loader for real tournaments.
func demoQuestions() []domain.Question {
	return []domain.Question{
		{ID: 1, Text: "Siapakah penemu bola lampu?", Type: domain.MultipleChoice, Category: "Sains",
			Options: []string{"Thomas Edison", "Albert Einstein", "Isaac Newton", "Nikola Tesla"},
			CorrectAnswer: "Thomas Edison", Points: 10, WrongAnswerPenalty: 5},
		{ID: 2, Text: "Berapa jumlah planet dalam tata surya kita?", Type: domain.MultipleChoice, Category: "Sains",
			Options:       []string{"7", "8", "9", "10"},
			CorrectAnswer: "8", Points: 10, WrongAnswerPenalty: 5},
		{ID: 3, Text: "Apa nama ibukota Indonesia?", Type: domain.ShortAnswer, Category: "Geografi",
			CorrectAnswer: "Jakarta", Points: 20, WrongAnswerPenalty: 15},
		{ID: 4, Text: "Siapakah presiden pertama Indonesia?", Type: domain.ShortAnswer, Category: "Sejarah",
			CorrectAnswer: "Soekarno", Points: 20, WrongAnswerPenalty: 15},
		{ID: 5, Text: "Berapakah hasil dari 15 × 12?", Type: domain.MultipleChoice, Category: "Matematika",
			Options:       []string{"150", "180", "190", "200"},
			CorrectAnswer: "180", Points: 10, WrongAnswerPenalty: 5},
		{ID: 6, Text: "Simbol kimia untuk emas adalah?", Type: domain.MultipleChoice, Category: "Sains",
			Options:       []string{"Au", "Ag", "Fe", "Cu"},
			CorrectAnswer: "Au", Points: 10, WrongAnswerPenalty: 5},
		{ID: 7, Text: "Nama sungai terpanjang di dunia?", Type: domain.ShortAnswer, Category: "Geografi",
			CorrectAnswer: "Nil", Points: 20, WrongAnswerPenalty: 15},
		{ID: 8, Text: "Berapakah jumlah provinsi di Indonesia saat ini?", Type: domain.MultipleChoice, Category: "Geografi",
			Options:       []string{"33", "34", "35", "36"},
			CorrectAnswer: "34", Points: 10, WrongAnswerPenalty: 5},
		{ID: 9, Text: "Siapa yang menemukan teori relativitas?", Type: domain.ShortAnswer, Category: "Sains",
			CorrectAnswer: "Albert Einstein", Points: 20, WrongAnswerPenalty: 15},
		{ID: 10, Text: "Berapa hasil dari 25 kuadrat?", Type: domain.MultipleChoice, Category: "Matematika",
			Options:       []string{"525", "625", "725", "825"},
			CorrectAnswer: "625", Points: 10, WrongAnswerPenalty: 5},
	}
}
