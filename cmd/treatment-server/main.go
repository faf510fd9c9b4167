package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/treatment-api/internal/config"
	"github.com/ehr/treatment-api/internal/domain/patient"
	"github.com/ehr/treatment-api/internal/domain/treatment"
	"github.com/ehr/treatment-api/internal/platform/auth"
	"github.com/ehr/treatment-api/internal/platform/blobstore"
	"github.com/ehr/treatment-api/internal/platform/db"
	"github.com/ehr/treatment-api/internal/platform/docstore"
	"github.com/ehr/treatment-api/internal/platform/httperr"
	"github.com/ehr/treatment-api/internal/platform/middleware"
	"github.com/ehr/treatment-api/internal/platform/validation"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "treatment-server",
		Short: "Patient and treatment records API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

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

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DocStoreDriver != config.DocStorePostgres {
		return nil, fmt.Errorf("migrations apply to the %q docstore driver, configured driver is %q",
			config.DocStorePostgres, cfg.DocStoreDriver)
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run document table migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.Migrations()).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign or inspect bearer tokens",
	}

	signCmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a bearer token for a doctor",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, _ := cmd.Flags().GetString("uid")
			name, _ := cmd.Flags().GetString("name")
			username, _ := cmd.Flags().GetString("username")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := newCodec(cfg).Sign(auth.Identity{UID: uid, DisplayName: name, PreferredUsername: username})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	signCmd.Flags().String("uid", "", "Doctor identifier (required)")
	signCmd.Flags().String("name", "", "Display name")
	signCmd.Flags().String("username", "", "Preferred username")
	_ = signCmd.MarkFlagRequired("uid")
	cmd.AddCommand(signCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a bearer token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			claims, err := newCodec(cfg).Decode(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claims)
		},
	})

	return cmd
}

func newCodec(cfg *config.Config) *auth.Codec {
	return auth.NewCodec(cfg.JWTSecret, cfg.JWTIssuerName, cfg.JWTExpire)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg != nil && cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if cfg != nil {
		if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
			logger = logger.Level(level)
		}
	}
	return logger
}

// stores bundles the backends selected by configuration.
type stores struct {
	docs    docstore.Backend
	pool    *pgxpool.Pool
	objects blobstore.Store
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}

	switch cfg.DocStoreDriver {
	case config.DocStorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		s.docs = docstore.NewPostgresBackend(pool)
	case config.DocStoreMongo:
		backend, err := docstore.NewMongoBackend(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		s.docs = backend
	default:
		s.docs = docstore.NewMemoryBackend()
	}

	switch cfg.BlobStoreDriver {
	case config.BlobStoreS3:
		objects, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
			Bucket:          cfg.BucketName,
			Region:          cfg.BucketRegion,
			Endpoint:        cfg.BucketEndpoint,
			AccessKeyID:     cfg.BucketAccessKeyID,
			SecretAccessKey: cfg.BucketSecretAccessKey,
		})
		if err != nil {
			_ = s.docs.Close(ctx)
			return nil, err
		}
		s.objects = objects
	default:
		s.objects = blobstore.NewMemoryStore()
	}

	return s, nil
}

// newServer wires middleware, handlers and routes onto a fresh echo
// instance.
func newServer(cfg *config.Config, logger zerolog.Logger, s *stores) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httperr.Handler(logger)
	e.Validator = validation.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{
			echo.HeaderAuthorization, echo.HeaderOrigin, "X-Requested-With",
			echo.HeaderContentType, echo.HeaderAccept,
		},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(cfg.DocStoreDriver, s.docs, s.pool))

	codec := newCodec(cfg)
	auth.NewVerifyHandler(codec).RegisterRoutes(e)

	apiV1 := e.Group("/api/v1")
	protected := apiV1.Group("", auth.Protect(codec))

	patients := patient.NewRepo(s.docs.Collection(patient.Collection))
	patient.NewHandler(patient.NewService(patients, logger), logger).RegisterRoutes(protected)

	records := treatment.NewRepo(s.docs.Collection(treatment.Collection))
	treatment.NewHandler(
		treatment.NewService(records, patients, s.objects, logger),
		treatment.NewQueryService(records, s.objects, logger),
		logger,
	).RegisterRoutes(protected, apiV1)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		logger := newLogger(nil)
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	s, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open stores")
	}
	defer s.docs.Close(context.Background())
	logger.Info().
		Str("docstore", cfg.DocStoreDriver).
		Str("blobstore", cfg.BlobStoreDriver).
		Msg("stores ready")

	e := newServer(cfg, logger, s)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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
