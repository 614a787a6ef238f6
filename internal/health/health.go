// Package health reports readiness through the standard gRPC health service.
package health

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name the tracker reports under, next to the overall "" entry.
const ServiceName = "tracker.membership"

const defaultCheckTimeout = 2 * time.Second

// Pinger checks the database connection (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks the access policy engine (e.g. the Rego decider).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker probes dependencies and publishes the result on a grpc health server.
// A nil Pinger or PolicyChecker is skipped.
type Checker struct {
	server  *health.Server
	pinger  Pinger
	policy  PolicyChecker
	logger  *slog.Logger
	timeout time.Duration
}

// NewChecker returns a Checker publishing to a new health server.
func NewChecker(pinger Pinger, policy PolicyChecker, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		server:  health.NewServer(),
		pinger:  pinger,
		policy:  policy,
		logger:  logger,
		timeout: defaultCheckTimeout,
	}
}

// Server returns the health server to register with grpc.
func (c *Checker) Server() *health.Server {
	return c.server
}

// Check probes every dependency once and updates the published status.
func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			c.logger.WarnContext(ctx, "health: database ping failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			c.logger.WarnContext(ctx, "health: policy engine check failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)
	return status
}

// Run checks immediately and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	c.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING so load balancers drain the instance.
func (c *Checker) Shutdown() {
	c.server.Shutdown()
}
