package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"carbonsense/internal/api"
	"carbonsense/internal/core"
	"carbonsense/internal/domain/repository"
	"carbonsense/internal/infrastructure/gcs"
	"carbonsense/internal/infrastructure/metrics"
	"carbonsense/internal/infrastructure/mlclient"

	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

type Config struct {
	HTTPAddr         string
	MetricsAddr      string
	PostgresURL      string
	DBDriver         string
	ModelMode        string
	ModelStore       string
	ModelPath        string
	GCSBucket        string
	GCSModelObject   string
	GCSDatasetObject string
	DatasetCSV       string
	MLServiceURL     string
	OverpassURL      string
	OverpassTimeout  time.Duration
	RetrainSchedule  string
	TrainOnStart     bool
	SaveTrainingData bool
	RateLimitRPS     float64
	Service          core.ServiceConfig
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Error("invalid number in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func config() Config {
	svc := core.DefaultServiceConfig()
	mode, err := core.ParseMode(os.Getenv("MODEL_MODE"))
	if err != nil {
		slog.Error("invalid MODEL_MODE, using auto", "error", err)
		mode = core.ModeAuto
	}
	svc.Mode = mode
	svc.TrainOnStart = os.Getenv("TRAIN_ON_START") == "true"
	svc.SaveSamples = os.Getenv("SAVE_TRAINING_DATA") == "true"
	svc.Optimizer.TypicalSpeed = getenvFloat("TYPICAL_SPEED_MPH", svc.Optimizer.TypicalSpeed)
	svc.Optimizer.MaxRelativeChange = getenvFloat("MAX_SPEED_CHANGE", svc.Optimizer.MaxRelativeChange)
	svc.Savings.FuelCostPerGallon = getenvFloat("FUEL_COST_PER_GALLON", svc.Savings.FuelCostPerGallon)
	svc.Savings.FloorPercent = getenvFloat("SAVINGS_FLOOR_PERCENT", svc.Savings.FloorPercent)
	svc.Savings.CeilingPercent = getenvFloat("SAVINGS_CEILING_PERCENT", svc.Savings.CeilingPercent)

	return Config{
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		MetricsAddr:      getenv("METRICS_ADDR", ":2112"),
		PostgresURL:      os.Getenv("POSTGRES_URL"),
		DBDriver:         getenv("DB_DRIVER", repository.DriverPQ),
		ModelMode:        string(mode),
		ModelStore:       getenv("MODEL_STORE", "file"),
		ModelPath:        getenv("MODEL_PATH", "models/carbonsense_bundle.json"),
		GCSBucket:        os.Getenv("GCS_BUCKET"),
		GCSModelObject:   getenv("GCS_MODEL_OBJECT", "models/carbonsense_bundle.json"),
		GCSDatasetObject: os.Getenv("GCS_DATASET_OBJECT"),
		DatasetCSV:       os.Getenv("DATASET_CSV"),
		MLServiceURL:     os.Getenv("ML_SERVICE_URL"),
		OverpassURL:      os.Getenv("OVERPASS_URL"),
		OverpassTimeout:  time.Duration(getenvFloat("OVERPASS_TIMEOUT_SECONDS", 5) * float64(time.Second)),
		RetrainSchedule:  os.Getenv("RETRAIN_SCHEDULE"),
		TrainOnStart:     svc.TrainOnStart,
		SaveTrainingData: svc.SaveSamples,
		RateLimitRPS:     getenvFloat("RATE_LIMIT_RPS", 20),
		Service:          svc,
	}
}

func logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, config())
	stop()
	if err != nil {
		slog.Error("service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) error {
	deps := core.Dependencies{Metrics: metrics.Recorder{}}

	var postgresRepo *repository.PostgresRepository
	if cfg.PostgresURL != "" {
		repo, err := repository.NewPostgresRepository(cfg.DBDriver, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable: %w", err)
		}
		defer repo.Close()
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare database: %w", err)
		}
		postgresRepo = repo
		samples := repository.NewPostgresSampleStore(repo.DB)
		deps.Recorder = samples
		deps.Dataset = samples
	}

	var gcsClient *gcs.Client
	if cfg.GCSBucket != "" {
		client, err := gcs.NewClient(ctx, cfg.GCSBucket)
		if err != nil {
			return fmt.Errorf("GCS unavailable: %w", err)
		}
		defer client.Close()
		gcsClient = client
	}

	// A file or object dataset takes precedence over the telemetry table.
	switch {
	case cfg.DatasetCSV != "":
		deps.Dataset = repository.NewCSVFileSource(cfg.DatasetCSV)
	case gcsClient != nil && cfg.GCSDatasetObject != "":
		deps.Dataset = gcs.NewDatasetSource(gcsClient, cfg.GCSDatasetObject)
	}

	switch cfg.ModelStore {
	case "file":
		deps.Store = repository.NewFileModelStore(cfg.ModelPath)
	case "postgres":
		if postgresRepo == nil {
			return errors.New("MODEL_STORE=postgres requires POSTGRES_URL")
		}
		deps.Store = repository.NewPostgresModelStore(postgresRepo.DB)
	case "gcs":
		if gcsClient == nil {
			return errors.New("MODEL_STORE=gcs requires GCS_BUCKET")
		}
		deps.Store = gcs.NewModelStore(gcsClient, cfg.GCSModelObject)
	case "http":
		if cfg.MLServiceURL == "" {
			return errors.New("MODEL_STORE=http requires ML_SERVICE_URL")
		}
		deps.Store = mlclient.NewHTTPModelStore(cfg.MLServiceURL)
	default:
		return fmt.Errorf("unknown MODEL_STORE %q", cfg.ModelStore)
	}

	if cfg.OverpassURL != "" {
		deps.Locator = repository.NewOverpassRepository(cfg.OverpassURL, cfg.OverpassTimeout, 250)
	}

	service := core.NewOptimizationService(cfg.Service, deps, slog.Default())
	if err := service.Init(ctx); err != nil {
		slog.Error("model not ready, serving until trained or loaded", "mode", cfg.ModelMode, "error", err)
	}

	if cfg.RetrainSchedule != "" {
		scheduler := cron.New()
		_, err := scheduler.AddFunc(cfg.RetrainSchedule, func() {
			if _, err := service.Retrain(ctx); err != nil {
				slog.Error("scheduled retraining failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid RETRAIN_SCHEDULE: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	metricsServer := metrics.StartServer(cfg.MetricsAddr)

	routes := api.NewHandler(service).Routes()
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Observe(api.RateLimit(routes, cfg.RateLimitRPS, int(cfg.RateLimitRPS)*2+1), routes, metrics.Recorder{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("starting server", "addr", cfg.HTTPAddr, "model", service.ModelInfo().Mode)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
