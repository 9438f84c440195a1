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

	internalhttp "github.com/fleetlink/fleetlink/internal/api/http"
	"github.com/fleetlink/fleetlink/internal/command"
	"github.com/fleetlink/fleetlink/internal/devices"
	"github.com/fleetlink/fleetlink/internal/geo"
	"github.com/fleetlink/fleetlink/internal/ingest"
	"github.com/fleetlink/fleetlink/internal/poll"
	"github.com/fleetlink/fleetlink/internal/session"
	"github.com/fleetlink/fleetlink/internal/store"
	"github.com/fleetlink/fleetlink/internal/store/memory"
	"github.com/fleetlink/fleetlink/internal/store/postgres"
	"github.com/fleetlink/fleetlink/internal/transfer"
	"github.com/fleetlink/fleetlink/internal/transport/ws"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("FleetLink Server", "version", AppVersion)

	ctx := context.Background()

	// A broken persistence layer aborts startup; there is no degraded mode.
	var st store.Store
	var closeStore func()
	if config.Database.Url != "" {
		if err := postgres.RunMigrations(config.Database.Url); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
		pool, err := postgres.InitPool(ctx, config.Database.Url)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		st = postgres.New(pool)
		closeStore = pool.Close
	} else {
		slog.Warn("No database configured, using in-memory store; nothing will survive a restart")
		st = memory.New()
		closeStore = func() {}
	}

	var resolver geo.Resolver = geo.NoopResolver{}
	if config.Geo.DatabasePath != "" {
		mmdb, err := geo.OpenMaxMind(config.Geo.DatabasePath)
		if err != nil {
			slog.Error("Failed to open geolocation database", "error", err)
			os.Exit(1)
		}
		defer mmdb.Close()
		resolver = mmdb
	}

	deviceService := devices.NewService(st)
	dedup := ingest.NewDeduplicator(st)
	transfers := transfer.New(st)
	reports := ingest.NewRouter(st, dedup, transfers)
	dispatcher := command.NewDispatcher(st, deviceService)
	poller := poll.NewDriver(st, dispatcher)
	registry := session.NewRegistry(deviceService, dispatcher, poller, reports)
	dispatcher.SetChannels(registry)

	services := &internalhttp.Services{
		Devices:    deviceService,
		Dispatcher: dispatcher,
		Registry:   registry,
		Poller:     poller,
		Store:      st,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	channelHandler := ws.NewHandler(registry, resolver)
	engine.GET("/channel", gin.WrapH(channelHandler))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	registry.Shutdown()
	transfers.Stop()
	closeStore()

	slog.Info("Shutdown complete")
}
