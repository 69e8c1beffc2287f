package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"worktrack.org/internal/obs"
)

// HealthServer publishes readiness over the standard gRPC health protocol,
// both for the empty service name and for worktrack-api.
type HealthServer struct {
	srv   *health.Server
	probe Checker
}

func NewHealthServer(probe Checker) *HealthServer {
	if probe == nil {
		probe = ReadyProbe(nil)
	}
	return &HealthServer{srv: health.NewServer(), probe: probe}
}

// Register attaches the health service to s.
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Refresh runs the probe once and publishes the result.
func (h *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := h.probe.Check(ctx); err != nil {
		obs.Logger().WithError(err).Warn("grpc health: not serving")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(serviceName, status)
	return status
}

// Run refreshes every interval until ctx is done, then marks the service
// as shutting down so watchers drain.
func (h *HealthServer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			h.Refresh(checkCtx)
			cancel()
		}
	}
}
