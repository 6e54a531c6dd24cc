package server

import (
	"context"
	"log/slog"
	"time"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported by the health service besides the overall "" entry.
const ServiceName = "charity.chat.Relay"

// NewServer builds the ops gRPC server. Every unary call is logged.
func NewServer(log *slog.Logger, healthServer *health.Server) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(log)))
	healthpb.RegisterHealthServer(s, healthServer)
	return s
}

// HealthReporter mirrors the relay state into the gRPC health service.
// It runs as a supervised worker and reports NOT_SERVING once stopped.
type HealthReporter struct {
	log      *slog.Logger
	health   *health.Server
	running  func() bool
	interval time.Duration
}

func NewHealthReporter(log *slog.Logger, healthServer *health.Server, running func() bool, interval time.Duration) *HealthReporter {
	return &HealthReporter{log: log, health: healthServer, running: running, interval: interval}
}

func (h *HealthReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	h.report()
	for {
		select {
		case <-ctx.Done():
			h.set(healthpb.HealthCheckResponse_NOT_SERVING)
			return nil
		case <-ticker.C:
			h.report()
		}
	}
}

func (h *HealthReporter) report() {
	if h.running() {
		h.set(healthpb.HealthCheckResponse_SERVING)
		return
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
}

func (h *HealthReporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}
