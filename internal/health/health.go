// Package health exposes the standard gRPC health service, reporting SERVING
// while the chat-log store answers pings.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name of the chat API.
const ServiceName = "fitmind.chat"

const (
	defaultInterval = 15 * time.Second
	pingTimeout     = 3 * time.Second
)

// Pinger is anything that can report its own liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves grpc.health.v1.Health.
type Server struct {
	pinger   Pinger
	interval time.Duration
	status   *health.Server
	grpc     *grpc.Server
	logger   *slog.Logger
}

// New returns a Server that re-checks pinger every interval.
func New(pinger Pinger, interval time.Duration, logger *slog.Logger) *Server {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		pinger:   pinger,
		interval: interval,
		status:   health.NewServer(),
		grpc:     grpc.NewServer(),
		logger:   logger,
	}
	healthpb.RegisterHealthServer(s.grpc, s.status)
	return s
}

// Check pings the store once and publishes the result.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.pinger != nil {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := s.pinger.Ping(pctx)
		cancel()
		if err != nil {
			s.logger.Warn("Health check failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.status.SetServingStatus("", status)
	s.status.SetServingStatus(ServiceName, status)
	return status
}

// Serve listens on addr and blocks until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis and blocks until ctx is done.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	s.Check(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
		errCh <- s.grpc.Serve(lis)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Check(ctx)
		case err := <-errCh:
			if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("serve health: %w", err)
			}
			return nil
		case <-ctx.Done():
			s.status.Shutdown()
			s.grpc.GracefulStop()
			<-errCh
			return nil
		}
	}
}
