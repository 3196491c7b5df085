package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"atelier/internal/access"
	"atelier/internal/agenda"
	"atelier/internal/api"
	"atelier/internal/audit"
	"atelier/internal/availability"
	"atelier/internal/booking"
	"atelier/internal/calendar"
	"atelier/internal/config"
	"atelier/internal/db"
	"atelier/internal/events"
	"atelier/internal/manager"
	"atelier/internal/metrics"
	"atelier/internal/mirror"
	"atelier/internal/notify"
	"atelier/internal/reservation"
	"atelier/internal/slots"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", os.Getenv("ATELIER_CONFIG_PATH"), "path to config.yaml")
	flag.Parse()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	metrics.Register()

	database, err := db.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	avail := availability.NewService(database, availability.Options{
		RejectUnknownService:   cfg.RejectUnknownService(),
		DefaultDurationMinutes: cfg.Booking.DefaultDurationMinutes,
		Mode:                   slots.OccupancyMode(cfg.Booking.Occupancy),
	}, &logger)
	if rdb != nil && cfg.SlotsCacheTTL() > 0 {
		avail.UseRedisCache(rdb, cfg.SlotsCacheTTL())
	}

	applySchedule := func(sc *config.ScheduleConfig) {
		if err := database.SyncScheduleFromConfig(ctx, sc); err != nil {
			logger.Error().Err(err).Msg("failed to apply schedule config")
			return
		}
		if err := avail.InvalidateAll(ctx); err != nil {
			logger.Warn().Err(err).Msg("slot cache flush failed")
		}
	}
	if err := config.WatchSchedule(ctx, cfg.ScheduleConfigPath, 30*time.Second, func(sc *config.ScheduleConfig) {
		applySchedule(sc)
		logger.Info().Str("path", cfg.ScheduleConfigPath).Str("summary", sc.String()).Msg("schedule config applied")
	}, func(err error) {
		logger.Error().Err(err).Msg("schedule config reload rejected")
	}); err != nil {
		logger.Warn().Err(err).Str("path", cfg.ScheduleConfigPath).Msg("schedule config not applied")
	}

	var holder reservation.Holder = reservation.NoopHolder{}
	if rdb != nil {
		holder = reservation.NewRedisHolder(rdb, cfg.HoldTTL())
	}

	// Integrations run on their own workers so slow APIs never hold up a request.
	bus := events.NewAsyncEventBus(256)
	bus.OnError(func(e events.Event, err error) {
		logger.Error().Err(err).Str("event", string(e.Type)).Str("reference", e.Booking.Reference).Msg("event handler failed")
	})

	var reportNotifier audit.Notifier
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, notify.Config{AdminChats: cfg.Telegram.AdminChats}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram notifier")
		}
		tg.Subscribe(bus)
		reportNotifier = tg

		if cfg.Agenda.Enabled {
			startAgenda(ctx, database, tg, rdb, cfg, logger)
		}
	}

	if cfg.Calendar.Enabled {
		eventsAPI, err := calendar.NewGoogleEventsAPI(ctx, cfg.Calendar.CredentialsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("create calendar client")
		}
		syncer, err := calendar.NewSyncer(eventsAPI, database, cfg.Calendar.CalendarID, cfg.Calendar.TimeZone, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create calendar syncer")
		}
		syncer.Subscribe(bus)
	}

	if cfg.Firestore.Enabled {
		writer, err := mirror.NewFirestoreWriter(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("create firestore client")
		}
		m := mirror.NewMirror(writer, cfg.Firestore.Collection, logger)
		m.Subscribe(bus)
		defer m.Close()
	}
	defer bus.Close()

	bookings := booking.NewService(database, avail, holder, bus, logger)
	auditSvc := audit.NewService(database, nil, reportNotifier, logger)
	go auditSvc.Run(ctx)
	mgr := manager.NewService(database, avail, auditSvc, bus, logger)
	auth := access.NewAuthenticator(cfg.Admin.Tokens, logger)
	if !auth.Enabled() {
		logger.Warn().Msg("no admin tokens configured; admin API is closed")
	}

	var limiter api.Limiter
	if rdb != nil {
		limiter = api.NewRedisRateLimiter(rdb, int(cfg.RateLimit.RequestsPerSecond*60), time.Minute)
	} else {
		ipLimiter := api.NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		go sweepLimiter(ctx, ipLimiter)
		limiter = ipLimiter
	}

	trusted, err := cfg.TrustedProxies()
	if err != nil {
		logger.Fatal().Err(err).Msg("trusted proxies")
	}
	server := api.NewHTTPServer(api.Options{
		Address:        cfg.Server.Address,
		ReadTimeout:    cfg.ReadTimeout(),
		WriteTimeout:   cfg.WriteTimeout(),
		TrustedProxies: trusted,
	}, avail, database, bookings, mgr, auth, limiter, logger)

	checks := map[string]api.Check{"db": database.PingContext}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	go serve(ctx, fmt.Sprintf(":%d", cfg.Monitoring.HealthCheckPort), api.NewOpsHandler(checks), "health", &logger)

	if cfg.Monitoring.PrometheusEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go serve(ctx, fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort), mux, "metrics", &logger)
	}

	if cfg.Backup.Enabled {
		go backupLoop(ctx, database, cfg.Backup.Path, cfg.BackupInterval(), cfg.BackupRetention(), &logger)
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
	}()

	logger.Info().Msg("atelier booking service started")
	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("api server error")
		stop()
	}
	<-drained
	logger.Info().Msg("atelier booking service stopped")
}

func startAgenda(ctx context.Context, database *db.DB, sender agenda.Sender, rdb *redis.Client, cfg *config.Config, logger zerolog.Logger) {
	hour, minute, err := agenda.ParseTime(cfg.Agenda.Time)
	if err != nil {
		logger.Fatal().Err(err).Msg("agenda time")
	}
	loc, err := time.LoadLocation(cfg.Agenda.TimeZone)
	if err != nil {
		logger.Fatal().Err(err).Msg("agenda time zone")
	}
	scheduler := agenda.NewScheduler(database, sender, agenda.Config{Hour: hour, Minute: minute, Location: loc}, logger)
	if rdb != nil {
		scheduler.UseRedisLock(rdb)
	}
	go scheduler.Start(ctx)
}

func sweepLimiter(ctx context.Context, l *api.IPRateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep(10 * time.Minute)
		case <-ctx.Done():
			return
		}
	}
}

// backupLoop snapshots the database a minute after startup and then every
// interval, pruning snapshots older than retention.
func backupLoop(ctx context.Context, database *db.DB, dir string, interval, retention time.Duration, logger *zerolog.Logger) {
	wait := time.Minute
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		runBackupTask(ctx, database, dir, retention, logger)
		wait = interval
	}
}

func runBackupTask(ctx context.Context, database *db.DB, dir string, retention time.Duration, logger *zerolog.Logger) {
	dest, err := database.Backup(ctx, dir)
	if err != nil {
		logger.Error().Err(err).Msg("backup failed")
	} else {
		logger.Info().Str("path", dest).Msg("backup completed")
	}

	deleted, err := db.CleanupBackups(dir, retention)
	if err != nil {
		logger.Error().Err(err).Msg("backup cleanup failed")
	} else if deleted > 0 {
		logger.Info().Int("deleted", deleted).Msg("cleaned up old backups")
	}
}

func serve(ctx context.Context, addr string, h http.Handler, name string, logger *zerolog.Logger) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
