package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// LifecycleMetrics counts membership lifecycle operations and invariant violations.
type LifecycleMetrics struct {
	operations otelmetric.Int64Counter
	violations otelmetric.Int64Counter
}

// NewLifecycleMetrics registers the lifecycle counters on provider's meter.
func NewLifecycleMetrics(provider otelmetric.MeterProvider) (*LifecycleMetrics, error) {
	meter := provider.Meter(instrumentationName)
	ops, err := meter.Int64Counter("tracker.membership.operations",
		otelmetric.WithDescription("Membership lifecycle operations by name and outcome"))
	if err != nil {
		return nil, err
	}
	violations, err := meter.Int64Counter("tracker.membership.invariant_violations",
		otelmetric.WithDescription("Team ownership invariant violations detected before commit"))
	if err != nil {
		return nil, err
	}
	return &LifecycleMetrics{operations: ops, violations: violations}, nil
}

// Operation records one finished operation. outcome is "ok" or an error class.
func (m *LifecycleMetrics) Operation(ctx context.Context, op, outcome string) {
	m.operations.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

// InvariantViolation records one violation detected by op.
func (m *LifecycleMetrics) InvariantViolation(ctx context.Context, op string) {
	m.violations.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("operation", op)))
}
