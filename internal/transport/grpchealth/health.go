// Package grpchealth exposes the standard gRPC health service for bagdesk
// and a small client to probe it.
package grpchealth

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall status.
const ServiceName = "bagdesk"

// Server serves grpc.health.v1.Health.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// NewServer creates a health server. Both the overall and the named service
// start as NOT_SERVING until SetServing is called.
func NewServer(logger zerolog.Logger) *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{grpc: gs, health: hs, logger: logger}
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("grpc health server listening")
	return s.grpc.Serve(lis)
}

// SetServing flips the reported status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Monitor runs check every interval and reports SERVING while it succeeds.
// It returns when ctx is done.
func (s *Server) Monitor(ctx context.Context, interval time.Duration, check func(context.Context) error) {
	probe := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := check(checkCtx)
		cancel()
		if err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
		}
		s.SetServing(err == nil)
	}

	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

// Stop marks the server NOT_SERVING and stops it gracefully.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Check dials addr and returns the status of service ("" for overall).
func Check(ctx context.Context, addr, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("failed to connect to address %s: %w", addr, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check failed: %w", err)
	}
	return resp.GetStatus(), nil
}
