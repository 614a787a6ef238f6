// Package server builds the gRPC server that hosts the tracker process endpoints.
package server

import (
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"project-tracker/backend/internal/server/interceptors"
)

// Health probes are polled constantly; they are traced but not logged.
var quietMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
}

// Deps holds the services registered on the gRPC server.
type Deps struct {
	// Health is the standard health service. If nil, it is not registered.
	Health healthpb.HealthServer
	Logger *slog.Logger
}

// NewGRPCServer returns a server with OpenTelemetry instrumentation, panic recovery and
// request logging, with the services in deps registered.
func NewGRPCServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.RecoveryUnary(logger),
			interceptors.LoggingUnary(logger, quietMethods),
		),
	}
	s := grpc.NewServer(append(base, opts...)...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers every service in deps with s.
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health)
	}
}
