package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fsayahmob/DataTalk-sub001/pkg/adapters/datasource"
	_ "github.com/fsayahmob/DataTalk-sub001/pkg/adapters/datasource/mssql"
	_ "github.com/fsayahmob/DataTalk-sub001/pkg/adapters/datasource/postgres"
	"github.com/fsayahmob/DataTalk-sub001/pkg/config"
	"github.com/fsayahmob/DataTalk-sub001/pkg/database"
	"github.com/fsayahmob/DataTalk-sub001/pkg/events"
	"github.com/fsayahmob/DataTalk-sub001/pkg/handlers"
	"github.com/fsayahmob/DataTalk-sub001/pkg/llm"
	"github.com/fsayahmob/DataTalk-sub001/pkg/logging"
	"github.com/fsayahmob/DataTalk-sub001/pkg/repositories"
	"github.com/fsayahmob/DataTalk-sub001/pkg/services"
	"github.com/fsayahmob/DataTalk-sub001/pkg/workqueue"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("source_driver", cfg.Source.Driver),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_endpoint", cfg.LLM.Endpoint))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to catalog store", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	client, err := llm.NewFromConfig(&llm.Config{
		Provider: cfg.LLM.Provider,
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create LLM client", zap.Error(err))
	}

	breaker := llm.NewCircuitBreaker(llm.CircuitBreakerConfig{
		Threshold:          cfg.Breaker.FailureThreshold,
		TransientThreshold: cfg.Breaker.TransientThreshold,
		TransientWindow:    cfg.Breaker.TransientWindow(),
		ResetAfter:         cfg.Breaker.Cooldown(),
	})

	var limiter *rate.Limiter
	if cfg.LLM.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.LLM.RequestsPerSecond), 1)
	}
	caller := llm.NewCaller(client, breaker, limiter, logger)

	catalogRepo := repositories.NewCatalogRepository(db)
	jobRepo := repositories.NewJobRepository(db)

	publisher := events.NewPublisher(redisClient, logger)
	tracker := services.NewJobTracker(jobRepo, publisher, logger)

	opener := func(openCtx context.Context) (datasource.SchemaDiscoverer, error) {
		return datasource.Open(openCtx, cfg.Source.Driver, &datasource.Config{
			Host:     cfg.Source.Host,
			Port:     cfg.Source.Port,
			User:     cfg.Source.User,
			Password: cfg.Source.Password,
			Database: cfg.Source.Database,
			SSLMode:  cfg.Source.SSLMode,
		}, logger)
	}

	extraction := services.NewExtractionService(opener, catalogRepo, tracker, cfg.Source.MaxConcurrent, logger)
	planner := services.NewBatchPlanner(cfg.Enrichment.MaxTablesPerBatch, cfg.Enrichment.MaxInputTokens, logger)
	enrichment := services.NewEnrichmentService(catalogRepo, caller, planner, tracker, cfg.LLM.Temperature, logger)

	runner := workqueue.NewRunner(logger)
	catalogService := services.NewCatalogService(extraction, enrichment, tracker, runner, logger)

	retention := services.NewRetentionService(jobRepo, cfg.Retention.JobTTL(), cfg.Retention.SweepInterval(), logger)
	go retention.Run(ctx)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewJobsHandler(catalogService, redisClient, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting catalog-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Error("job runner shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

// runMigrations applies catalog-store migrations through a short-lived
// database/sql connection.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()

	return database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger)
}
