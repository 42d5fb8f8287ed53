// Copyright 2026 The Pulsar Console Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsarconsole/pulsarconsole/internal/audit"
	"github.com/pulsarconsole/pulsarconsole/internal/config"
	"github.com/pulsarconsole/pulsarconsole/internal/observability/logger"
	"github.com/pulsarconsole/pulsarconsole/internal/observability/metrics"
	"github.com/pulsarconsole/pulsarconsole/internal/observability/tracing"
	"github.com/pulsarconsole/pulsarconsole/internal/pulsar"
	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
	"github.com/pulsarconsole/pulsarconsole/internal/rbacsync"
	"github.com/pulsarconsole/pulsarconsole/internal/store/postgres"
	transportHTTP "github.com/pulsarconsole/pulsarconsole/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting pulsar console rbac service")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if len(os.Args) > 1 && os.Args[1] == "seed" {
		if err := runSeed(cfg); err != nil {
			fmt.Printf("Seeding failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Initialize context
	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
		os.Exit(1)
	}

	// Initialize database
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize repositories
	permRepo := postgres.NewPermissionRepository(db)
	roleRepo := postgres.NewRoleRepository(db)
	grantRepo := postgres.NewGrantRepository(db)
	assignmentRepo := postgres.NewAssignmentRepository(db)
	identityRepo := postgres.NewIdentityRepository(db)
	environmentRepo := postgres.NewEnvironmentRepository(db)

	// Initialize RBAC service
	catalog, err := rbac.NewCatalogCache(permRepo)
	if err != nil {
		slog.Error("failed to initialize catalog cache", logger.Error(err))
		os.Exit(1)
	}

	rbacService := rbac.NewService(permRepo, roleRepo, grantRepo, assignmentRepo, identityRepo, environmentRepo, catalog, db)

	auditLogger := audit.NewSlogLogger()
	rbacService.AddHook(audit.Hook(auditLogger))
	rbacService.AddHook(func(ctx context.Context, ev rbac.ChangeEvent) {
		if ev.Type == rbac.ChangeCatalogSeeded {
			catalog.Invalidate()
		}
	})

	// Initialize Pulsar admin client
	pulsarClient, err := pulsar.NewClient(pulsar.Config{
		AdminURL:          cfg.Pulsar.AdminURL,
		AuthToken:         cfg.Pulsar.AuthToken,
		Timeout:           cfg.Pulsar.Timeout,
		MaxRetries:        cfg.Pulsar.MaxRetries,
		RequestsPerSecond: cfg.Pulsar.RequestsPerSecond,
		Burst:             cfg.Pulsar.Burst,
	}, slog.Default())
	if err != nil {
		slog.Error("failed to initialize pulsar client", logger.Error(err))
		os.Exit(1)
	}

	// Broker token minting is optional
	var issuer *pulsar.TokenIssuer
	if cfg.Pulsar.TokenSecret != "" {
		issuer, err = pulsar.NewTokenIssuer([]byte(cfg.Pulsar.TokenSecret), 0)
		if err != nil {
			slog.Error("failed to initialize token issuer", logger.Error(err))
			os.Exit(1)
		}
	}

	// Initialize sync engine
	engine, err := rbacsync.NewEngine(rbacService, pulsarClient, environmentRepo, slog.Default(), meter.GetMeter())
	if err != nil {
		slog.Error("failed to initialize sync engine", logger.Error(err))
		os.Exit(1)
	}

	// Scheduled background sync
	if cfg.Sync.Enabled {
		scheduler := rbacsync.NewScheduler(engine, environmentRepo, pulsarClient, slog.Default())
		if err := scheduler.Start(cfg.Sync.Schedule); err != nil {
			slog.Error("failed to start sync scheduler", logger.Error(err))
			os.Exit(1)
		}
		defer scheduler.Stop()
		slog.Info("sync scheduler started", logger.String("schedule", cfg.Sync.Schedule))
	}

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		rbacService,
		engine,
		issuer,
		auditLogger,
		[]byte(cfg.Auth.JWTSecret),
		nil,
	)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func connect(cfg *config.Config) (*postgres.DB, error) {
	return postgres.New(context.Background(), postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}

// runSeed creates the permission catalog and system roles for every
// registered environment.
func runSeed(cfg *config.Config) error {
	ctx := context.Background()
	db, err := connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	permRepo := postgres.NewPermissionRepository(db)
	environmentRepo := postgres.NewEnvironmentRepository(db)

	catalog, err := rbac.NewCatalogCache(permRepo)
	if err != nil {
		return err
	}

	svc := rbac.NewService(
		permRepo,
		postgres.NewRoleRepository(db),
		postgres.NewGrantRepository(db),
		postgres.NewAssignmentRepository(db),
		postgres.NewIdentityRepository(db),
		environmentRepo,
		catalog,
		db,
	)

	envs, err := environmentRepo.List(ctx)
	if err != nil {
		return err
	}
	for _, env := range envs {
		if err := svc.SeedEnvironment(ctx, env.ID); err != nil {
			return fmt.Errorf("seed environment %s: %w", env.Name, err)
		}
		fmt.Printf("Seeded environment %s\n", env.Name)
	}
	return nil
}
