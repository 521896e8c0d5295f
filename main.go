package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oddrm/pse25/internal/catalog"
	"github.com/oddrm/pse25/internal/config"
	"github.com/oddrm/pse25/internal/domain"
	"github.com/oddrm/pse25/internal/hub"
	"github.com/oddrm/pse25/internal/logging"
	"github.com/oddrm/pse25/internal/logsink"
	"github.com/oddrm/pse25/internal/policy"
	"github.com/oddrm/pse25/internal/repository"
	"github.com/oddrm/pse25/internal/scheduler"
	"github.com/oddrm/pse25/internal/service"
	"github.com/oddrm/pse25/internal/tracker"
	"github.com/oddrm/pse25/internal/transport/grpchealth"
	handler "github.com/oddrm/pse25/internal/transport/http"
	"github.com/oddrm/pse25/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, os.Stdout)
	logger.Info().
		Int("http_port", cfg.HTTPPort).
		Int("grpc_port", cfg.GRPCPort).
		Str("database", cfg.DatabaseURL).
		Dur("tick_interval", cfg.TickInterval).
		Int("progress_step", cfg.ProgressStep).
		Dur("finalize_delay", cfg.FinalizeDelay).
		Msg("starting bagdesk")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer db.Close()

	if cfg.SeedDemo {
		if err := db.SeedDemo(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed demo data")
		}
	}

	// Initialize catalog
	var seed []domain.PluginDefinition
	for _, p := range cfg.Plugins {
		seed = append(seed, domain.PluginDefinition{ID: p.ID, Name: p.Name, Description: p.Description})
	}
	cat := catalog.New(seed)

	// Initialize policy engine
	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize policy engine")
	}

	// Initialize run tracker on the event loop
	loop := scheduler.NewLoop()
	go loop.Run(ctx)

	sink := logsink.New()
	trk := tracker.New(loop, cat, sink, tracker.Options{
		TickInterval:  cfg.TickInterval,
		Step:          cfg.ProgressStep,
		FinalizeDelay: cfg.FinalizeDelay,
	},
		tracker.WithGate(policy.NewStartGate(policyEngine, cat.Enabled)),
		tracker.WithLogger(logger.With().Str("component", "tracker").Logger()),
	)

	// Initialize service
	svc := service.New(db, cat, trk, sink, cfg, logger.With().Str("component", "service").Logger())

	// Initialize hub
	streamHub := hub.NewHub(ws.SnapshotFunc(svc), logger.With().Str("component", "hub").Logger())
	go streamHub.Run(ctx)
	trk.Subscribe(streamHub.PublishRun)
	sink.Subscribe(streamHub.PublishLog)

	// Initialize WebSocket and HTTP servers
	wsServer := ws.NewServer(cfg, streamHub, svc, logger.With().Str("component", "ws").Logger())
	httpServer := handler.NewServer(svc, wsServer, logger)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()
	logger.Info().Int("port", cfg.HTTPPort).Msg("HTTP API started")

	// Start gRPC health server
	var healthServer *grpchealth.Server
	if cfg.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to listen for gRPC health")
		}
		healthServer = grpchealth.NewServer(logger.With().Str("component", "grpc").Logger())
		go func() {
			if err := healthServer.Serve(lis); err != nil {
				logger.Error().Err(err).Msg("gRPC health server stopped")
			}
		}()
		go healthServer.Monitor(ctx, 5*time.Second, svc.Ping)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down bagdesk")

	if healthServer != nil {
		healthServer.SetServing(false)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("failed to shutdown HTTP server gracefully")
	}
	svc.Close()
	cancel()
	if healthServer != nil {
		healthServer.Stop()
	}

	logger.Info().Msg("bagdesk stopped")
}
