package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/image-tasks/internal/api/handler"
	"github.com/cuongbtq/image-tasks/internal/api/router"
	"github.com/cuongbtq/image-tasks/internal/cache"
	"github.com/cuongbtq/image-tasks/internal/config"
	"github.com/cuongbtq/image-tasks/internal/filestore"
	"github.com/cuongbtq/image-tasks/internal/storage"
	"github.com/cuongbtq/image-tasks/internal/tasks"
	"github.com/cuongbtq/image-tasks/shared/database"
	"github.com/cuongbtq/image-tasks/shared/logger"
	"github.com/cuongbtq/image-tasks/shared/rabbitmq"
	"github.com/gin-gonic/gin"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := database.NewClient(cfg.Database.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	if cfg.Database.AutoMigrate {
		if err := storage.Migrate(context.Background(), dbClient.GetDB()); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		appLogger.Info("Database schema ready")
	}

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ.BrokerConfig(), appLogger.With("component", "publisher").Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ publisher: %w", err)
	}

	var opts []tasks.Option
	if cfg.Redis.Enabled {
		taskCache, err := cache.New(context.Background(), cfg.Redis.CacheConfig())
		if err != nil {
			return fmt.Errorf("failed to initialize task cache: %w", err)
		}
		defer taskCache.Close()

		opts = append(opts, tasks.WithCache(taskCache))
		appLogger.Info("Task cache enabled", slog.String("addr", cfg.Redis.Addr))
	}

	service := tasks.NewService(
		storage.NewStorage(dbClient.GetDB(), appLogger.Logger),
		publisher,
		filestore.NewClient(cfg.FileService.ClientConfig(), appLogger.With("component", "filestore").Logger),
		appLogger.With("component", "tasks").Logger,
		opts...,
	)

	r := initRouter(cfg.App.Environment, appLogger.Logger, service, dbClient)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down server",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
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

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, logger *slog.Logger, service handler.TaskService, health handler.HealthChecker) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger:  logger,
		Service: service,
		Health:  health,
	})
}
