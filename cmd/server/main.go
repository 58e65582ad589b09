package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/adapters/gemini"
	httpadapter "github.com/AdityaDeshmukh2023/supplier-compliance/internal/adapters/http"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/adapters/objectstore"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/adapters/openweather"
	pg "github.com/AdityaDeshmukh2023/supplier-compliance/internal/adapters/postgres"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/adapters/rediscache"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/adapters/sqlite"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/compliance"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/config"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/observability"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
	checksvc "github.com/AdityaDeshmukh2023/supplier-compliance/internal/services/checks"
	insightsvc "github.com/AdityaDeshmukh2023/supplier-compliance/internal/services/insights"
	suppliersvc "github.com/AdityaDeshmukh2023/supplier-compliance/internal/services/suppliers"
	weathersvc "github.com/AdityaDeshmukh2023/supplier-compliance/internal/services/weather"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/workers/weatherrunner"
)

const serviceName = "supplier-compliance"

// database is what the process needs from either store.
type database interface {
	ports.Store
	ports.JobRepository
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.Setup(ctx, observability.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Insecure:     cfg.OTLPInsecure,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	db, closeDB, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	policy, err := config.LoadMetricPolicy(cfg.MetricPolicyFile)
	if err != nil {
		return err
	}

	var weather ports.WeatherService = openweather.New(openweather.Config{
		APIKey:      cfg.OpenWeatherAPIKey,
		BaseURL:     cfg.OpenWeatherBaseURL,
		GeocoderURL: cfg.GeocoderBaseURL,
		GeocoderRPS: cfg.GeocoderRPS,
		Logger:      logger,
	})
	if cfg.RedisAddr != "" {
		client := rediscache.NewClient(cfg.RedisAddr)
		defer func() { _ = client.Close() }()
		cache := rediscache.NewLocations(weather, client, cfg.LocationCacheTTL, logger)
		if err := cache.Ping(ctx); err != nil {
			logger.Warn("redis unreachable; geocoding uncached until it recovers", "addr", cfg.RedisAddr, "err", err)
		}
		weather = cache
	}

	var analyzer ports.Analyzer
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.New(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel, BaseURL: cfg.GeminiBaseURL})
		if err != nil {
			return err
		}
		analyzer = client
	} else {
		logger.Warn("GEMINI_API_KEY not set; narratives will be marked unavailable")
	}
	gateway, err := compliance.NewNarrativeGateway(analyzer, cfg.NarrativeTimeout, logger)
	if err != nil {
		return err
	}
	engine := compliance.NewEngine(policy, gateway, compliance.NewWeatherEvaluator(weather, cfg.WeatherTimeout, logger), logger)

	var archive ports.ReportArchive
	if cfg.MinIO.Enabled() {
		a, err := objectstore.NewArchive(ctx, objectstore.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("report archive: %w", err)
		}
		archive = a
	}

	suppliers := suppliersvc.New(db, logger)
	checks := checksvc.New(db, db, engine, cfg.AutoWeatherCheck, logger)
	weatherChecks := weathersvc.New(db, engine, logger)
	insights := insightsvc.New(db, engine, archive, logger)

	workersDone := weatherrunner.Run(ctx, db, weatherChecks, cfg.WeatherWorkers, cfg.WeatherPollInterval, logger)
	if cfg.WeatherWorkers > 0 {
		logger.Info("weather workers started", "workers", cfg.WeatherWorkers)
	}

	srv := httpadapter.New(suppliers, checks, weatherChecks, insights, db.Ping, logger)
	err = httpadapter.Run(ctx, logger, cfg.ListenAddr, srv.Routes(), 10*time.Second)
	stop()
	<-workersDone
	logger.Info("shut down")
	return err
}

func openDatabase(ctx context.Context, cfg config.Config) (database, func(), error) {
	switch cfg.DatabaseDriver() {
	case "postgres":
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		return db, db.Close, nil
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.SQLitePath())
		if err != nil {
			return nil, nil, fmt.Errorf("db open: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	}
	return nil, nil, errors.New("DATABASE_URL must be a postgres:// or sqlite:// URL")
}
