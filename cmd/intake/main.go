package main

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/intake/internal/audit"
	"github.com/dukerupert/intake/internal/config"
	"github.com/dukerupert/intake/internal/database"
	"github.com/dukerupert/intake/internal/lock"
	"github.com/dukerupert/intake/internal/logging"
	"github.com/dukerupert/intake/internal/middleware"
	"github.com/dukerupert/intake/internal/policy"
	"github.com/dukerupert/intake/internal/server"
	"github.com/dukerupert/intake/internal/store"
	ws "github.com/dukerupert/intake/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()

	defaults := policy.DefaultSettings()
	maps.Copy(defaults, map[string]string{
		middleware.KeyAllowedIPs: "",
		middleware.KeyAllowedDNS: "",
	})
	if err := store.NewSettingsStore(db).SeedDefaults(ctx, defaults); err != nil {
		slog.Error("failed to seed settings", "error", err)
		os.Exit(1)
	}

	var locker lock.Locker = lock.NewLocal(cfg.LockWait)
	if cfg.RedisAddr != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Warn("redis unavailable, using in-process locks", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer client.Close()
			locker = lock.NewRedis(client, cfg.LockTTL, cfg.LockWait, logger)
			slog.Info("using redis customer locks", "addr", cfg.RedisAddr)
		}
	}

	hub := ws.NewHub(logger)
	sinks := []audit.Sink{audit.NewHubSink(hub)}
	if cfg.RabbitMQURL != "" {
		pub, err := audit.DialAMQP(cfg.RabbitMQURL, cfg.AuditQueue, logger)
		if err != nil {
			slog.Warn("audit broker unavailable, entries stay local", "error", err)
		} else {
			defer pub.Close()
			sinks = append(sinks, pub)
		}
	}
	auditLog := audit.NewLogger(logger, sinks...)

	srv := server.New(db, server.Config{
		JWTSecret:      []byte(cfg.JWTSecret),
		TokenTTL:       cfg.TokenTTL,
		BcryptCost:     cfg.BcryptCost,
		AccessFailOpen: cfg.AccessFailOpen,
		TrustProxy:     cfg.TrustProxy,
		WSOrigins:      cfg.WSOrigins,
	}, hub, locker, auditLog, logger)

	if created, err := srv.Employees().EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		slog.Error("failed to create bootstrap admin", "error", err)
		os.Exit(1)
	} else if created {
		slog.Info("bootstrap admin created", "username", cfg.AdminUsername)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	defer cleanupCancel()
	go srv.RateLimiter().Run(cleanupCtx, 10*time.Minute)

	go func() {
		slog.Info("intake service starting", "addr", ":"+cfg.Port, "driver", cfg.DBDriver)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	auditLog.Wait()
}
