package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"prenota/internal/api"
	"prenota/internal/cache"
	"prenota/internal/config"
	"prenota/internal/database"
	"prenota/internal/events"
	"prenota/internal/metrics"
	"prenota/internal/service"
	"prenota/shared/audit"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load(os.Getenv("PRENOTA_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if !cfg.Logging.Pretty {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	logger = logger.Level(cfg.LogLevel())

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var (
		availCache  *cache.AvailabilityCache
		resultCache service.ResultCache
	)
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		availCache = cache.New(rdb, cfg.CacheTTL())
		resultCache = availCache
		logger.Info().Str("addr", cfg.Redis.Address).Dur("ttl", cfg.CacheTTL()).Msg("Availability cache enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	avail := service.NewAvailabilityService(db, resultCache, &logger, cfg.MaxRangeDays())

	bus := events.NewEventBus(&logger)
	bus.Subscribe(func(ev events.Event) error {
		return avail.InvalidateService(ctx, ev.ServiceID)
	}, events.VersionChanged, events.WeeklyDayChanged, events.PolicyChanged, events.ExceptionChanged, events.SchedulesSynced)

	admin := service.NewScheduleService(db, bus, &logger)

	err = config.WatchSchedules(ctx, cfg.SchedulesPath(), cfg.SchedulesWatchInterval(), &logger, func(sc *config.SchedulesConfig) {
		syncSchedules(ctx, db, bus, sc, &logger)
	})
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info().Str("path", cfg.SchedulesPath()).Msg("No schedules file; configuration comes from the API only")
	case err != nil:
		logger.Fatal().Err(err).Str("path", cfg.SchedulesPath()).Msg("failed to load schedules")
	}

	go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)

	if cfg.Export.Enabled {
		exporter := audit.NewService(
			&audit.Config{Interval: cfg.ExportInterval(), RetentionDays: cfg.Backup.RetentionDays},
			db, db, avail,
			audit.NewExcelizeWriter,
			audit.DirSink{Dir: cfg.ExportDir(), RetentionDays: cfg.Backup.RetentionDays},
			audit.ZerologLogger{Logger: &logger},
		)
		exporter.Start()
		defer exporter.Stop()
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, availCache, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	srv := api.NewHTTPServer(cfg, avail, admin, &logger)
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("API shutdown error")
		}
	}()

	logger.Info().Msg("Availability server started")
	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("API server error")
	}
}

// syncSchedules applies one version of schedules.yaml and tells subscribers which
// services changed.
func syncSchedules(ctx context.Context, db *database.DB, bus *events.EventBus, sc *config.SchedulesConfig, logger *zerolog.Logger) {
	report, err := db.SyncSchedulesFromConfig(ctx, sc)
	if err != nil {
		metrics.IncScheduleSync("error")
		logger.Error().Err(err).Msg("Schedules sync failed")
	} else {
		metrics.IncScheduleSync("ok")
	}
	if report == nil {
		return
	}
	for _, id := range report.Services {
		bus.Publish(events.Event{Type: events.SchedulesSynced, ServiceID: id})
	}
}

func startHealthServer(ctx context.Context, port int, db *database.DB, availCache *cache.AvailabilityCache, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if err := availCache.Ping(ctxPing); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
