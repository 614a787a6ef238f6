package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"project-tracker/backend/internal/app"
	"project-tracker/backend/internal/config"
	"project-tracker/backend/internal/db"
	"project-tracker/backend/internal/logger"
	"project-tracker/backend/internal/membership/repository"
	"project-tracker/backend/internal/server"
	telemetry "project-tracker/backend/internal/telemetry/otel"
)

const healthInterval = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := logger.New(cfg.ServiceName, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.NewProviders(ctx, telemetry.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := db.Open(openCtx, cfg.DatabaseURL, db.PoolOptions{MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: 30 * time.Minute})
	cancel()
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	core, err := app.New(ctx, cfg, app.Resources{
		DB:             conn,
		Repo:           repository.NewPostgresRepository(conn),
		MeterProvider:  providers.MeterProvider,
		LoggerProvider: providers.LoggerProvider,
		Logger:         lg,
	})
	if err != nil {
		log.Fatalf("app: %v", err)
	}
	defer core.Close()
	go core.Health.Run(ctx, healthInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	s := server.NewGRPCServer(server.Deps{Health: core.Health.Server(), Logger: lg})

	go func() {
		lg.Info("gRPC server listening", "addr", cfg.GRPCAddr, "policy_engine", cfg.AccessPolicyEngine)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()

	lg.Info("shutting down gRPC server")
	core.Health.Shutdown()
	s.GracefulStop()
	lg.Info("gRPC server stopped")
}
