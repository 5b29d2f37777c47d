package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/mr1hm/guard-dispatch/internal/api"
	"github.com/mr1hm/guard-dispatch/internal/config"
	"github.com/mr1hm/guard-dispatch/internal/dispatch"
	"github.com/mr1hm/guard-dispatch/internal/escalation"
	"github.com/mr1hm/guard-dispatch/internal/ingestion"
	"github.com/mr1hm/guard-dispatch/internal/logging"
	"github.com/mr1hm/guard-dispatch/internal/notify"
	"github.com/mr1hm/guard-dispatch/internal/notify/redisnotify"
	"github.com/mr1hm/guard-dispatch/internal/repository"
	"github.com/mr1hm/guard-dispatch/internal/seed"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Seed.File != "" {
		f, err := seed.Load(cfg.Seed.File)
		if err != nil {
			logging.Fatalf("Failed to load seed file: %v", err)
		}
		sum, err := seed.Apply(ctx, db, f, time.Now())
		if err != nil {
			logging.Fatalf("Failed to apply seed file: %v", err)
		}
		slog.Info("seed applied", "file", cfg.Seed.File, "beacons", sum.Beacons, "edges", sum.Edges, "guards", sum.Guards, "new_guards", sum.NewGuards)
	}

	// In-process fan-out for the guard alert streams
	broadcaster := notify.NewBroadcaster()

	notifiers := notify.Multi{broadcaster}
	monitors := notify.Monitors{}

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, stream notifications will fail until it recovers", "addr", cfg.Redis.Addr, "error", err)
		}
		streams := redisnotify.New(rdb, redisnotify.Options{
			AlertStream:     cfg.Redis.AlertStream,
			ExhaustedStream: cfg.Redis.ExhaustedStream,
			MaxLen:          cfg.Redis.MaxLen,
		})
		notifiers = append(notifiers, streams)
		monitors = append(monitors, streams)
	}

	// Delivery outlives ctx so queued notifications drain on shutdown.
	queue := notify.NewQueue(notifiers, cfg.Worker.Count, cfg.Worker.BufferSize)
	queue.Start(context.WithoutCancel(ctx))

	engine, err := dispatch.New(ctx, db, dispatch.Config{
		DedupWindow:     cfg.Dispatch.DedupWindow,
		ResponseTimeout: cfg.Dispatch.ResponseTimeout,
	}, dispatch.WithNotifier(queue), dispatch.WithMonitor(monitors))
	if err != nil {
		logging.Fatalf("Failed to initialize dispatch engine: %v", err)
	}

	scheduler := escalation.New(engine, cfg.Dispatch.SweepInterval, nil)
	scheduler.Start(ctx)

	mgr := ingestion.NewManager(cfg.MQTT, cfg.Worker, engine)
	if err := mgr.Start(ctx); err != nil {
		logging.Fatalf("Failed to start ingestion: %v", err)
	}

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))

	handler := api.NewHandler(engine, broadcaster)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}
	// Alert streams only end when the broadcaster closes them.
	srv.RegisterOnShutdown(broadcaster.Close)

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	// SIGHUP picks up beacon graph changes made with dispatchctl seed
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := engine.ReloadGraph(ctx); err != nil {
				slog.Error("graph reload failed", "error", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := shutdown(shutdownCtx, srv, queue, mgr.Stop, scheduler.Stop); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if rdb != nil {
		rdb.Close()
	}

	slog.Info("shutdown complete")
}
