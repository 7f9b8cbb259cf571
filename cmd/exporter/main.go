package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	infra_metrics "github.com/kotche/notes/infrastructure/metrics"
	"github.com/kotche/notes/infrastructure/tracing"
	"github.com/kotche/notes/internal/app/exporter"
	"github.com/kotche/notes/internal/config"
	"github.com/kotche/notes/internal/logging"
	"github.com/kotche/notes/internal/metrics"
	notes_repo "github.com/kotche/notes/internal/repository/notes"
	"github.com/kotche/notes/internal/service/kafka"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/telebot.v3"

	_ "github.com/lib/pq"
)

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
		logger.Fatal("exporter stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if cfg.TelegramConfig.TokenExportBot == "" {
		return fmt.Errorf("TOKEN_EXPORT_BOT is required")
	}

	if cfg.PostgresConfig.InMemory {
		return fmt.Errorf("the exporter needs the shared postgres store, STORAGE_IN_MEMORY is not supported")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra_metrics.Init()
	metrics.Init()
	metricsSrv := infra_metrics.StartMetricsServer(cfg.MetricsConfig.Addr, logger)
	defer metricsSrv.Close()

	_, cleanup, err := tracing.InitTracing(cfg.TracingConfig.Endpoint, "notes-exporter", logger)
	if err != nil {
		return err
	}
	defer cleanup()

	bot, err := telebot.NewBot(telebot.Settings{
		Token:  cfg.TelegramConfig.TokenExportBot,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresConfig.DSN())
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	repo := notes_repo.NewDefaultRepository(db)
	defer repo.Close()

	broker, err := kafka.New(kafka.Config{
		Brokers:           cfg.KafkaConfig.Brokers,
		Topic:             cfg.KafkaConfig.ExportTopic,
		GroupID:           cfg.KafkaConfig.GroupID,
		NumPartitions:     cfg.KafkaConfig.NumPartitions,
		ReplicationFactor: cfg.KafkaConfig.ReplicationFactor,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize kafka: %w", err)
	}
	defer broker.Close()

	telegram := exporter.NewTelegramSender(bot)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		telegram.Listen(ctx)
		return nil
	})
	g.Go(func() error {
		return exporter.New(broker, repo, telegram, logger).Start(ctx)
	})

	return g.Wait()
}
