package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/therapy/clinic/internal/config"
	"github.com/therapy/clinic/internal/domain/account"
	"github.com/therapy/clinic/internal/domain/patient"
	"github.com/therapy/clinic/internal/domain/stats"
	"github.com/therapy/clinic/internal/domain/treatment"
	"github.com/therapy/clinic/internal/platform/auth"
	"github.com/therapy/clinic/internal/platform/db"
	"github.com/therapy/clinic/internal/platform/middleware"
	"github.com/therapy/clinic/internal/platform/notification"
	"github.com/therapy/clinic/internal/platform/telemetry"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clinic-server",
		Short:         "Clinic record-keeping API server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := context.Background()
			m, closeFn, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closeFn()

			applied, err := m.Up(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Applied %d migration(s)\n", applied)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := context.Background()
			m, closeFn, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := m.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
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
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func openMigrator(ctx context.Context, dir string) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}
	pool, err := db.NewPool(ctx, db.PoolOptions{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    2,
		MinConns:    0,
	})
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, dir), pool.Close, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg != nil && cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if cfg != nil {
		logger = logger.Level(parseLevel(cfg.LogLevel))
	}
	return logger
}

// parseLevel falls back to info for empty or unknown levels.
func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func authMiddleware(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (echo.MiddlewareFunc, error) {
	switch cfg.AuthMode() {
	case "development":
		logger.Warn().Msg("development auth: every request acts as an administrator and therapist")
		return auth.DevAuthMiddleware(), nil
	case "hmac":
		return auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}), nil
	case "jwks":
		url := cfg.AuthJWKSURL
		if url == "" {
			discovered, err := auth.DiscoverJWKSURL(ctx, cfg.AuthIssuer)
			if err != nil {
				return nil, fmt.Errorf("discover jwks url: %w", err)
			}
			url = discovered
		}
		return auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			Keys:     auth.NewJWKSCache(url, 5*time.Minute),
			Skipper:  auth.AuthSkipper,
		}), nil
	}
	return nil, fmt.Errorf("no authentication configured for ENV=%q", cfg.Env)
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(nil)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolOptions{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		SlowQuery:   cfg.DBSlowQuery,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics := telemetry.New()

	// Notifications
	var sender notification.Sender = notification.NewLogSender(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafka := notification.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafka.Close()
		sender = notification.MultiSender{sender, kafka}
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka notifications enabled")
	}
	notifier := notification.NewManager(sender, notification.NewTemplateEngine())

	// Stats cache
	var statsCache stats.Cache
	if cfg.RedisURL != "" {
		rc, err := stats.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, statistics served uncached")
		} else {
			defer rc.Close()
			statsCache = rc
		}
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(echomw.BodyLimit("1M"))

	// Auth middleware
	authMW, err := authMiddleware(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure authentication")
	}
	e.Use(authMW)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())

	apiV1 := e.Group("/api/v1")
	txm := db.NewTxManager(pool)

	// Accounts
	accountRepo := account.NewRepo(pool)
	accountSvc := account.NewService(accountRepo, notifier, logger.With().Str("domain", "account").Logger())
	account.NewHandler(accountSvc).RegisterRoutes(apiV1)

	// Statistics. Patient and visit writes drop cached aggregates after commit.
	statsSvc := stats.NewService(stats.NewRepo(pool), statsCache, cfg.StatsCacheTTL, metrics,
		logger.With().Str("domain", "stats").Logger())
	stats.NewHandler(statsSvc).RegisterRoutes(apiV1)
	recordNotifier := stats.NewInvalidatingNotifier(notifier, statsSvc)

	// Patients and treatments. The treatment service is the patient
	// service's visit cascade.
	patientRepo := patient.NewRepo(pool)
	treatmentSvc := treatment.NewService(
		txm,
		treatment.NewVisitRepo(pool),
		treatment.NewPointRepo(pool),
		patientRepo,
		accountRepo,
		recordNotifier,
		metrics,
		logger.With().Str("domain", "treatment").Logger(),
	)
	patientSvc := patient.NewService(
		txm,
		patientRepo,
		patient.NewConditionRepo(pool),
		treatmentSvc,
		recordNotifier,
		metrics,
		logger.With().Str("domain", "patient").Logger(),
	)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	treatment.NewHandler(treatmentSvc).RegisterRoutes(apiV1)

	// Notification log
	notifyGroup := apiV1.Group("", auth.RequireCapability(auth.ViewStatistics))
	notification.NewHandler(notifier).RegisterRoutes(notifyGroup)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth", cfg.AuthMode()).Msg("starting server")
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
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
