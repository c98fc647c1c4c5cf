package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"inventra.io/internal/obs"
)

// GRPCServer serves grpc.health.v1.Health for the whole process and for
// serviceName, mirroring the HTTP readiness probe.
type GRPCServer struct {
	health    *health.Server
	readiness readinessChecker
	interval  time.Duration
}

// NewGRPCServer creates the health service wrapper. Status starts as
// NOT_SERVING until the first successful probe.
func NewGRPCServer(r readinessChecker, interval time.Duration) *GRPCServer {
	if r == nil {
		r = ReadyProbe{}
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s := &GRPCServer{
		health:    health.NewServer(),
		readiness: r,
		interval:  interval,
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register attaches the health service to srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Probe runs the readiness check once and publishes the result.
func (s *GRPCServer) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	if err := s.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	obs.SetReady(true)
	s.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Watch probes readiness every interval until ctx is done, then marks the
// service as shutting down.
func (s *GRPCServer) Watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.Probe(ctx); err != nil && ctx.Err() == nil {
			obs.Logger().WarnContext(ctx, "readiness probe failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

func (s *GRPCServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(serviceName, status)
}
