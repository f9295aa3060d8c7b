package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/image-tasks/internal/cache"
	"github.com/cuongbtq/image-tasks/internal/config"
	"github.com/cuongbtq/image-tasks/internal/filestore"
	"github.com/cuongbtq/image-tasks/internal/imageproc"
	"github.com/cuongbtq/image-tasks/internal/storage"
	"github.com/cuongbtq/image-tasks/internal/worker"
	"github.com/cuongbtq/image-tasks/shared/database"
	"github.com/cuongbtq/image-tasks/shared/logger"
	"github.com/cuongbtq/image-tasks/shared/rabbitmq"
	"github.com/joho/godotenv"
)

func main() {
	bootLogger := logger.NewDefault()
	if err := run(bootLogger); err != nil {
		bootLogger.Error("Service stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(bootLogger *logger.Logger) error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		bootLogger.Info("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := database.NewClient(cfg.Database.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.AutoMigrate {
		if err := storage.Migrate(ctx, dbClient.GetDB()); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQ.BrokerConfig(), appLogger.With("component", "consumer").Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ consumer: %w", err)
	}

	if dl := cfg.RabbitMQ.DeadLetter; dl.Enabled {
		if err := consumer.DeclareDeadLetterQueue(ctx, dl.QueueName, dl.MessageTTL); err != nil {
			return fmt.Errorf("failed to declare dead-letter queue: %w", err)
		}
	}

	id := workerID(cfg.Worker.ID)
	workerLogger := appLogger.WithAttrs(slog.String("worker_id", id))

	workerCfg := &worker.Config{
		Logger:      workerLogger.Logger,
		Store:       storage.NewStorage(dbClient.GetDB(), appLogger.Logger),
		Files:       filestore.NewClient(cfg.FileService.ClientConfig(), workerLogger.With("component", "filestore").Logger),
		Transform:   imageproc.Transform,
		Consume:     worker.ConsumeFrom(consumer),
		WorkerID:    id,
		Concurrency: cfg.Worker.Concurrency,
		ScratchDir:  cfg.Worker.ScratchDir,
	}

	if cfg.Redis.Enabled {
		taskCache, err := cache.New(ctx, cfg.Redis.CacheConfig())
		if err != nil {
			return fmt.Errorf("failed to initialize task cache: %w", err)
		}
		defer taskCache.Close()
		workerCfg.Cache = taskCache
	}

	workerInstance := worker.NewWorker(workerCfg)

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully",
		slog.String("queue", consumer.QueueName()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

func workerID(configured string) string {
	if configured != "" {
		return configured
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "worker"
}
