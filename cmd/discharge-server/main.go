package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/AbhaySingh31/ai-discharge-instructions/internal/config"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/domain/assistant"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/domain/history"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/domain/patient"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/auth"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/db"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/llm"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/logging"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/middleware"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/validation"
	"github.com/AbhaySingh31/ai-discharge-instructions/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "discharge-server",
		Short: "AI discharge instructions API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationSource returns the embedded migrations unless dir names a
// directory on disk.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func openMigrator(ctx context.Context, cmd *cobra.Command) (*db.Migrator, func(), string, error) {
	schema, _ := cmd.Flags().GetString("schema")
	dir, _ := cmd.Flags().GetString("dir")
	if err := db.ValidateSchema(schema); err != nil {
		return nil, nil, "", err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, "", err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, "", err
	}
	return db.NewMigrator(pool, migrationSource(dir)), pool.Close, schema, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closePool, schema, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer closePool()

			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closePool, schema, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
		c.Flags().String("dir", "", "Migrations directory (default: embedded)")
		cmd.AddCommand(c)
	}
	return cmd
}

// newCompleter returns nil when no API key is configured, leaving the
// assistant in its unavailable mode.
func newCompleter(cfg *config.Config) (assistant.Completer, error) {
	client, err := llm.New(llm.Config{
		APIKey:  cfg.OpenRouterAPIKey,
		BaseURL: cfg.OpenRouterBaseURL,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
		Referer: cfg.OpenRouterReferer,
		Title:   cfg.AppName,
	})
	if errors.Is(err, llm.ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

// rateLimitStore shares limits through Redis when REDIS_URL is set and falls
// back to per-process buckets otherwise or when Redis cannot be reached.
func rateLimitStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (middleware.LimiterStore, func() error, error) {
	memory := func() (middleware.LimiterStore, func() error, error) {
		return middleware.NewMemoryStore(cfg.RateLimitRPS, cfg.RateLimitBurst), func() error { return nil }, nil
	}
	if cfg.RedisURL == "" {
		return memory()
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Warn().Err(err).Msg("redis unreachable, using in-memory rate limiter")
		return memory()
	}
	logger.Info().Str("addr", opts.Addr).Msg("rate limiter using redis")
	return middleware.NewRedisStore(client, cfg.RateLimitBurst), client.Close, nil
}

func healthHandler(service string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": service,
		})
	}
}

func appStatusHandler(cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "running",
			"version": cfg.AppVersion,
			"service": cfg.AppName,
		})
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Dev:        cfg.IsDev(),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Service:    cfg.AppName,
		Version:    cfg.AppVersion,
	})
	auditLogger := zerolog.Nop()
	if cfg.AuditLogEnabled {
		auditLogger = logging.NewAudit(cfg.AuditLogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	dbTarget := db.DisplayTarget(cfg.DatabaseURL)
	logger.Info().Str("database", dbTarget).Msg("connected to database")

	// Services
	txm := db.NewTxManager(pool)
	patientRepo := patient.NewPatientRepo(pool)
	recordRepo := patient.NewMedicalRecordRepo(pool)
	noteRepo := patient.NewDischargeNoteRepo(pool)

	historySvc := history.NewService(
		history.NewActivityRepo(pool), history.NewVisitRepo(pool), history.NewTimelineRepo(pool),
		patientRepo, recordRepo, noteRepo, txm, logger)
	patientSvc := patient.NewService(patientRepo, recordRepo, noteRepo, txm, historySvc, logger)

	completer, err := newCompleter(cfg)
	if err != nil {
		return fmt.Errorf("configure llm client: %w", err)
	}
	if completer == nil {
		logger.Warn().Msg("OPENROUTER_API_KEY not set, AI endpoints will report unavailable")
	}
	assistantSvc := assistant.NewService(patientSvc, historySvc, completer, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		AllowCredentials: true,
	}))

	if cfg.AuthEnabled {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.SecretKey),
			Skipper:    auth.AuthSkipper,
		}))
	} else {
		logger.Warn().Msg("AUTH_ENABLED is false, requests run as the anonymous clinician")
		e.Use(auth.AnonymousMiddleware())
	}
	e.Use(middleware.Audit(auditLogger))

	e.GET("/health", healthHandler(cfg.AppName))

	apiV1 := e.Group("/api/v1")

	rlCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		Logger:            &logger,
	}
	if rlCfg.RequestsPerSecond <= 0 {
		def := middleware.DefaultRateLimitConfig()
		rlCfg.RequestsPerSecond, rlCfg.BurstSize = def.RequestsPerSecond, def.BurstSize
	}
	store, closeStore, err := rateLimitStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()
	rlCfg.Store = store
	apiV1.Use(middleware.RateLimit(rlCfg))

	apiV1.GET("/health", healthHandler(cfg.AppName))
	apiV1.GET("/app-status", appStatusHandler(cfg))
	apiV1.GET("/db-health", db.HealthHandler(pool, dbTarget))

	// CRUD routes get the request deadline; AI routes are bounded by LLM_TIMEOUT instead.
	crud := apiV1.Group("", middleware.RequestTimeout(cfg.RequestTimeout))
	patient.NewHandler(patientSvc).RegisterRoutes(crud)
	history.NewHandler(historySvc).RegisterRoutes(crud)
	assistant.NewHandler(assistantSvc).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("llm", assistantSvc.Available()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
