package grpcserver

import (
	"context"

	"google.golang.org/grpc/health/grpc_health_v1"

	messagesvc "github.com/rzbill/courier/internal/services/messages"
)

// healthSvc answers the standard gRPC health check from storage health.
type healthSvc struct {
	grpc_health_v1.UnimplementedHealthServer
	svc *messagesvc.Service
}

func (h *healthSvc) Check(ctx context.Context, _ *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if err := h.svc.CheckHealth(ctx); err != nil {
		return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
}
