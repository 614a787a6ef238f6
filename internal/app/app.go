// Package app wires the membership core and its collaborators from config.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	otelmetric "go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"project-tracker/backend/internal/audit"
	auditrepo "project-tracker/backend/internal/audit/repository"
	"project-tracker/backend/internal/config"
	"project-tracker/backend/internal/email"
	"project-tracker/backend/internal/health"
	"project-tracker/backend/internal/membership/repository"
	membershipservice "project-tracker/backend/internal/membership/service"
	"project-tracker/backend/internal/notification"
	"project-tracker/backend/internal/platform/rbac"
	"project-tracker/backend/internal/policy/engine"
	taskservice "project-tracker/backend/internal/task/service"
	telemetry "project-tracker/backend/internal/telemetry/otel"
)

// App is the assembled core.
type App struct {
	Resolver  *rbac.Resolver
	Lifecycle *membershipservice.Lifecycle
	Tasks     *taskservice.StatusService
	Health    *health.Checker
	// Notifications is the in-app notification store; nil without a database.
	Notifications *notification.Store

	closers []func() error
}

// Resources are the already-opened dependencies App builds on.
type Resources struct {
	// DB backs the notification and audit stores and the health ping. Optional.
	DB *sql.DB
	// Repo is the membership repository; required.
	Repo           repository.Repository
	MeterProvider  otelmetric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	Logger         *slog.Logger
}

// New assembles the core from cfg and res.
func New(ctx context.Context, cfg *config.Config, res Resources) (*App, error) {
	if res.Repo == nil {
		return nil, errors.New("app: repository is required")
	}
	logger := res.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{}

	var (
		decider rbac.Decider = rbac.NativeDecider{}
		policy  health.PolicyChecker
	)
	if cfg.AccessPolicyEngine == config.PolicyEngineRego {
		src := ""
		if cfg.AccessPolicyFile != "" {
			var err error
			if src, err = engine.ReadPolicyFile(cfg.AccessPolicyFile); err != nil {
				return nil, err
			}
		}
		rd, err := engine.NewRegoDecider(ctx, src, logger)
		if err != nil {
			return nil, err
		}
		decider, policy = rd, rd
	}
	a.Resolver = rbac.NewResolver(res.Repo, rbac.WithDecider(decider), rbac.WithLogger(logger))

	sinks := notification.Multi{notification.LogSink{Logger: logger}}
	var auditLogger audit.AuditLogger = audit.Nop{}
	var pinger health.Pinger
	if res.DB != nil {
		a.Notifications = notification.NewStore(res.DB, logger)
		sinks = append(sinks, a.Notifications)
		auditLogger = audit.NewLogger(auditrepo.NewPostgresRepository(res.DB), logger)
		pinger = res.DB
	}
	if cfg.RedisEnabled() {
		pub, err := notification.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		sinks = append(sinks, pub)
		a.closers = append(a.closers, pub.Close)
	}
	if res.LoggerProvider != nil {
		sinks = append(sinks, telemetry.NewNotificationEmitter(res.LoggerProvider))
	}

	var mailer email.Sink = email.LogSink{Logger: logger}
	if cfg.EmailEnabled() {
		mailer = email.NewHTTPClient(cfg.EmailAPIKey, cfg.EmailAPIURL, cfg.EmailSender, logger)
	}

	var metrics membershipservice.Metrics
	if res.MeterProvider != nil {
		m, err := telemetry.NewLifecycleMetrics(res.MeterProvider)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("metrics: %w", err)
		}
		metrics = m
	}

	a.Lifecycle = membershipservice.NewLifecycle(res.Repo, a.Resolver, membershipservice.Deps{
		Notifier: sinks,
		Mailer:   mailer,
		Audit:    auditLogger,
		Metrics:  metrics,
		Logger:   logger,
	})
	a.Tasks = taskservice.NewStatusService(res.Repo, a.Resolver, sinks, auditLogger, logger)
	a.Health = health.NewChecker(pinger, policy, logger)
	return a, nil
}

// Close releases connections App opened. The caller closes Resources itself.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
