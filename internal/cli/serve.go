package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-play-gateway/internal/app"
	"quiz-play-gateway/internal/backend"
	"quiz-play-gateway/internal/config"
	"quiz-play-gateway/internal/infra/memory"
	pgjournal "quiz-play-gateway/internal/infra/postgres"
	redisledger "quiz-play-gateway/internal/infra/redis"
	"quiz-play-gateway/internal/retry"
	transport "quiz-play-gateway/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the gateway.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the play gateway",
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
	if cfg.Backend.URL == "" {
		return fmt.Errorf("backend url not configured")
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

	var ledger app.Ledger = memory.NewLedger()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ledger = redisledger.NewLedger(client, config.Duration(cfg.Redis.PlayTTL, 48*time.Hour))
	}

	var journal app.Journal = memory.NewJournal()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		journal = pgjournal.NewJournal(pool)
	}

	env := retry.Envelope{
		MaxAttempts: config.IntOr(cfg.Retry.MaxAttempts, 3),
		BaseDelay:   config.Duration(cfg.Retry.BaseDelay, time.Second),
		Strategy:    retry.Strategy(cfg.Retry.Strategy),
		MaxDelay:    config.Duration(cfg.Retry.MaxDelay, 0),
	}

	client := backend.New(cfg.Backend.URL, config.Duration(cfg.Backend.HTTPTimeout, 30*time.Second))
	gate := app.NewPlayGate(ledger, config.IntOr(cfg.Play.DailyLimit, 2))

	opts := app.Options{
		QuestionCount:    config.IntOr(cfg.Play.QuestionCount, 10),
		AutoSubmitBuffer: config.Duration(cfg.Play.AutoSubmitBuffer, 0),
		FinishTimeout:    config.Duration(cfg.Play.FinishTimeout, 15*time.Second),
		AnswerRetry:      env,
		FinishRetry:      env,
		Settlement: app.SettlementPoller{
			Interval:    config.Duration(cfg.Settlement.Interval, 3*time.Second),
			MaxAttempts: config.IntOr(cfg.Settlement.MaxAttempts, 15),
			Growth:      cfg.Settlement.Growth,
			MaxDelay:    config.Duration(cfg.Settlement.MaxDelay, 0),
		},
	}

	wsHandler := transport.NewWSHandler(transport.Deps{
		Backend:    client,
		Ledger:     ledger,
		Journal:    journal,
		Gate:       gate,
		Controller: opts,
		RetryEnv:   env,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting play gateway on :%s (backend %s)", finalPort, cfg.Backend.URL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down gateway...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down gateway...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
