package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-visibility/pkg/auth"
	"github.com/ekaya-inc/ekaya-visibility/pkg/cache"
	"github.com/ekaya-inc/ekaya-visibility/pkg/config"
	"github.com/ekaya-inc/ekaya-visibility/pkg/database"
	"github.com/ekaya-inc/ekaya-visibility/pkg/engines"
	"github.com/ekaya-inc/ekaya-visibility/pkg/handlers"
	"github.com/ekaya-inc/ekaya-visibility/pkg/logging"
	"github.com/ekaya-inc/ekaya-visibility/pkg/middleware"
	"github.com/ekaya-inc/ekaya-visibility/pkg/repositories"
	"github.com/ekaya-inc/ekaya-visibility/pkg/retry"
	"github.com/ekaya-inc/ekaya-visibility/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

var configPath string

var (
	seedOwner string
	seedDays  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ekaya-visibility",
		Short:         "Track how AI answer engines surface your brand",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config file")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and check runner",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE:  runMigrate,
		},
		seedCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(Version)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// setup loads configuration and builds the logger shared by every command.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath, Version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

func migrate(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := database.OpenSQL(cfg.Database.URL())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return database.RunMigrations(sqlDB, logger)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return migrate(cfg, logger)
}

// demoOwnerID owns the seeded demo data unless --owner is given.
const demoOwnerID = "00000000-0000-4000-8000-00000000de30"

func seedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo projects with a completed check history",
		RunE:  runSeed,
	}
	cmd.Flags().StringVar(&seedOwner, "owner", demoOwnerID, "owner ID (JWT subject) that receives the demo data")
	cmd.Flags().IntVar(&seedDays, "days", services.DefaultDemoDays, "days of check history to generate")
	return cmd
}

func runSeed(cmd *cobra.Command, args []string) error {
	ownerID, err := uuid.Parse(seedOwner)
	if err != nil {
		return fmt.Errorf("invalid --owner: %w", err)
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := migrate(cfg, logger); err != nil {
		return err
	}

	scoped, cleanup, err := database.NewScopeProvider(db).WithOwnerScope(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to acquire owner scope: %w", err)
	}
	defer cleanup()

	seeder := services.NewDemoSeeder(
		services.NewProjectService(repositories.NewProjectRepository(), nil, logger),
		repositories.NewCheckRepository(),
		logger,
	)
	result, err := seeder.Seed(scoped, ownerID, time.Now(), seedDays)
	if err != nil {
		return err
	}

	fmt.Printf("Seeded %d projects and %d checks for owner %s\n", len(result.Projects), result.Checks, ownerID)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("redis", cfg.Redis.Host),
	)

	db, err := retry.DoWithResult(ctx, retry.StartupConfig(), func() (*database.DB, error) {
		db, err := database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.URL(),
			MaxConnections: cfg.Database.MaxConnections,
		})
		if err != nil {
			logger.Warn("Database not ready", zap.String("error", logging.SanitizeError(err)))
		}
		return db, err
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := migrate(cfg, logger); err != nil {
		return err
	}

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	// Typed nils would defeat the services' nil checks, so the cache is only
	// assigned to the interfaces when Redis is configured.
	var (
		overviews   services.OverviewCache
		invalidator services.OverviewInvalidator
	)
	if redisClient != nil {
		defer redisClient.Close()
		dashboardCache := cache.NewDashboardCache(redisClient, cfg.Redis.OverviewTTL, logger)
		overviews, invalidator = dashboardCache, dashboardCache
		logger.Info("Dashboard cache enabled", zap.String("addr", cfg.Redis.Addr()))
	}

	registry, err := engines.NewRegistry(ctx, &cfg.Engines, engines.CircuitBreakerConfig{
		Threshold:  cfg.Checks.BreakerThreshold,
		ResetAfter: cfg.Checks.BreakerReset,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to build engine registry: %w", err)
	}
	if len(registry.Configured()) == 0 {
		logger.Warn("No engines configured; every check will fail until credentials are provided")
	}

	jwksClient, err := auth.NewJWKSClient(auth.NewJWKSConfig(&cfg.Auth))
	if err != nil {
		return fmt.Errorf("failed to create JWKS client: %w", err)
	}
	defer jwksClient.Close()
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwksClient, logger), logger)

	scopes := database.NewScopeProvider(db)
	projectRepo := repositories.NewProjectRepository()
	checkRepo := repositories.NewCheckRepository()

	runner := services.NewCheckRunner(checkRepo, registry, scopes, invalidator, services.CheckRunnerConfig{
		DispatchDelay: cfg.Checks.DispatchDelay,
		QueryTimeout:  cfg.Checks.QueryTimeout,
		MaxRetries:    cfg.Checks.MaxRetries,
		Concurrency:   cfg.Checks.Concurrency,
		StaleAfter:    cfg.Checks.StaleAfter,
	}, logger)
	if n, err := runner.RecoverStale(ctx); err != nil {
		logger.Error("Failed to recover stale checks", zap.Error(err))
	} else if n > 0 {
		logger.Info("Recovered stale pending checks", zap.Int64("count", n))
	}
	runner.Start()

	projectService := services.NewProjectService(projectRepo, invalidator, logger)
	checkService := services.NewCheckService(projectRepo, checkRepo, runner, logger)
	dashboardService := services.NewDashboardService(projectRepo, checkRepo, overviews, logger)

	mux := http.NewServeMux()
	ownerMiddleware := database.WithOwnerContext(db, logger)
	handlers.NewHealthHandler(cfg, db, registry.Configured(), logger).RegisterRoutes(mux)
	handlers.NewProjectsHandler(projectService, logger).RegisterRoutes(mux, authMiddleware, ownerMiddleware)
	handlers.NewChecksHandler(checkService, logger).RegisterRoutes(mux, authMiddleware, ownerMiddleware)
	handlers.NewDashboardHandler(dashboardService, logger).RegisterRoutes(mux, authMiddleware, ownerMiddleware)

	limiter := middleware.NewRateLimiter(cfg.RateLimit, logger)
	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           limiter.Middleware(middleware.RequestLogger(logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting ekaya-visibility",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", cfg.TLSCertPath != ""))

		var err error
		if cfg.TLSCertPath != "" {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
		if err := runner.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}
