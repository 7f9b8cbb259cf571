package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	infra_metrics "github.com/kotche/notes/infrastructure/metrics"
	"github.com/kotche/notes/infrastructure/tracing"
	"github.com/kotche/notes/internal/app/api"
	"github.com/kotche/notes/internal/config"
	"github.com/kotche/notes/internal/logging"
	"github.com/kotche/notes/internal/metrics"
	notes_repo "github.com/kotche/notes/internal/repository/notes"
	"github.com/kotche/notes/internal/service/export"
	"github.com/kotche/notes/internal/service/kafka"
	notes_serv "github.com/kotche/notes/internal/service/notes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err = run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra_metrics.Init()
	metrics.Init()
	metricsSrv := infra_metrics.StartMetricsServer(cfg.MetricsConfig.Addr, logger)

	_, cleanup, err := tracing.InitTracing(cfg.TracingConfig.Endpoint, "notes-api", logger)
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := openStore(cfg.PostgresConfig, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	broker, err := kafka.New(kafka.Config{
		Brokers:           cfg.KafkaConfig.Brokers,
		Topic:             cfg.KafkaConfig.ExportTopic,
		NumPartitions:     cfg.KafkaConfig.NumPartitions,
		ReplicationFactor: cfg.KafkaConfig.ReplicationFactor,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize kafka: %w", err)
	}
	defer broker.Close()

	notesServ := notes_serv.NewDefaultService(store)
	dispatcher := export.NewDefaultDispatcher(broker, cfg.KafkaConfig.ExportTopic, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPConfig.Addr,
		Handler:           api.New(notesServ, dispatcher, logger, cfg.HTTPConfig.RequestTimeout).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api server running", zap.String("addr", cfg.HTTPConfig.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown http server: %w", err)
		}
		return metricsSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(cfg config.PostgresConfig, logger *zap.Logger) (notes_repo.Store, error) {
	if cfg.InMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		return notes_repo.NewMemoryRepository(), nil
	}

	connStr := cfg.DSN()
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err = runMigrations(cfg.MigrationsPath, connStr); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return notes_repo.NewDefaultRepository(db), nil
}

func runMigrations(sourceURL, dbURL string) error {
	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()

	if err = m.Up(); !errors.Is(err, migrate.ErrNoChange) && err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}
