package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/instant-dispatch/internal/config"
	"github.com/example/instant-dispatch/internal/directory"
	"github.com/example/instant-dispatch/internal/geomath"
	httpapi "github.com/example/instant-dispatch/internal/http"
	"github.com/example/instant-dispatch/internal/ingest"
	"github.com/example/instant-dispatch/internal/lifecycle"
	"github.com/example/instant-dispatch/internal/logging"
	"github.com/example/instant-dispatch/internal/matcher"
	"github.com/example/instant-dispatch/internal/notify"
	"github.com/example/instant-dispatch/internal/scheduler"
	"github.com/example/instant-dispatch/internal/storage"
	"github.com/example/instant-dispatch/internal/tracking"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		panic(err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	var dir directory.Directory
	if cfg.RedisAddr != "" {
		dir = directory.NewRedisDirectory(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		dir = directory.NewMemoryIndex()
		logger.Warn("REDIS_ADDR unset, using in-memory transporter directory")
	}

	var requests storage.RequestStore
	var trips storage.TripStore
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			runMigrations(cfg.PGDSN, logger)
		}
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable, falling back to memory store", "error", err)
		} else {
			requests, trips = ps, ps
			defer ps.Close()
		}
	}
	if requests == nil {
		mem := storage.NewMemoryStore()
		requests, trips = mem, mem
	}

	var gateway notify.Gateway = &notify.LogGateway{Logger: logger}
	if cfg.AMQPURL != "" {
		amqpGW, err := notify.NewAMQPGateway(cfg.AMQPURL, cfg.NotifyExchange, logger)
		if err != nil {
			logger.Error("amqp unavailable, notifications go to log only", "error", err)
		} else {
			gateway = notify.Multi{amqpGW, &notify.LogGateway{Logger: logger}}
			defer amqpGW.Close()
		}
	}

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
	}

	sched := scheduler.New(logger)
	defer sched.StopAll()

	profile := geomath.ProfileHighway
	if cfg.SpeedProfile == "urban" {
		profile = geomath.ProfileUrban
	}

	m := &matcher.Service{Directory: dir, Logger: logger, Profile: profile, TopN: cfg.MatcherTopN}
	mon := tracking.NewMonitor(trips, gateway, sched, logger)
	mon.Profile = profile
	mon.Poll = cfg.PollInterval
	lc := &lifecycle.Service{
		Store:   requests,
		Trips:   trips,
		Matcher: m,
		Gateway: gateway,
		Tracker: mon,
		Sched:   sched,
		Logger:  logger,
		TTL:     cfg.RequestTTL,
		Poll:    cfg.PollInterval,
	}

	srv := httpapi.NewServer(lc, mon, trips, dir, kp, httpapi.Options{
		Logger:      logger,
		JWTSecret:   cfg.JWTSecret,
		MaxRadiusKm: cfg.MaxRadiusKm,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("instant-dispatch listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_dispatch.sql"))
	if err != nil {
		logger.Error("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec error", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_dispatch.sql")
}
