package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/events"
	"quiz-attempt-service/internal/infra/memory"
	pgstore "quiz-attempt-service/internal/infra/postgres"
	infraredis "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/infra/sqlstore"
	"quiz-attempt-service/internal/logging"
	transport "quiz-attempt-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	return logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	quizzes, attempts, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	var quizRepo app.QuizRepository
	var registry app.PlayRegistry
	if redisClient != nil {
		quizRepo = infraredis.NewCachedQuizRepository(redisClient, quizzes, quizTTL)
		registry = infraredis.NewPlayRegistry(redisClient, redisTTL)
	} else {
		quizRepo = memory.NewCachedQuizRepository(quizzes, quizTTL)
		registry = memory.NewPlayRegistry()
	}

	publisher, subscriber, err := events.NewPublisher(events.Config{
		KafkaBrokers: cfg.Events.KafkaBrokers,
		Topic:        cfg.Events.Topic,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer publisher.Close()
	if subscriber != nil {
		go func() {
			if err := events.Consume(ctx, subscriber, publisher.Topic(), logger, events.LogHandler(logger)); err != nil {
				logger.Error("event consumer stopped", "error", err)
			}
		}()
	}

	opts := []app.Option{app.WithLogger(logger), app.WithEvents(publisher)}
	gate, err := organizerGate(cfg)
	if err != nil {
		return err
	}
	if gate != nil {
		opts = append(opts, app.WithOrganizerGate(gate))
	} else {
		logger.Warn("no organizer password configured; organizer operations are disabled")
	}
	service := app.NewQuizService(quizRepo, attempts, opts...)

	router := transport.NewRouter(
		transport.NewHandler(service, registry, logger),
		transport.NewWSHandler(service, registry, logger),
		logger,
		transport.RouterConfig{AllowedOrigins: cfg.Server.AllowedOrigins},
	)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting quiz service", "port", finalPort, "storage", cfg.StorageDriver(), "redis", redisClient != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStores picks the quiz and attempt stores for the configured driver.
func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (app.QuizRepository, app.AttemptRepository, func(), error) {
	switch cfg.StorageDriver() {
	case "memory":
		logger.Warn("using in-memory storage; data is lost on restart")
		return memory.NewQuizStore(), memory.NewAttemptStore(), func() {}, nil
	case "sqlite":
		db, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, cfg.SQLite.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return sqlstore.NewQuizStore(db), sqlstore.NewAttemptStore(db), func() { db.Close() }, nil
	case "postgres":
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return nil, nil, nil, err
		}
		db, err := sqlstore.Open(ctx, sqlstore.DriverPostgres, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		closeAll := func() {
			pool.Close()
			db.Close()
		}
		return pgstore.NewQuizStore(pool), sqlstore.NewAttemptStore(db), closeAll, nil
	default:
		return nil, nil, nil, errors.New("unknown storage driver: " + cfg.StorageDriver())
	}
}

func organizerGate(cfg config.Config) (app.OrganizerGate, error) {
	var (
		gate *auth.PasswordGate
		err  error
	)
	switch {
	case cfg.Organizer.PasswordHash != "":
		gate, err = auth.NewPasswordGate(cfg.Organizer.PasswordHash)
	case os.Getenv("ORGANIZER_PASSWORD") != "":
		gate, err = auth.NewPasswordGateFromPlain(os.Getenv("ORGANIZER_PASSWORD"))
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return gate, nil
}
