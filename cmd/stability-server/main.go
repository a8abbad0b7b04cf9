package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/junejamohit13/fhir-cmc-app/internal/config"
	"github.com/junejamohit13/fhir-cmc-app/internal/domain/batch"
	"github.com/junejamohit13/fhir-cmc-app/internal/domain/organization"
	"github.com/junejamohit13/fhir-cmc-app/internal/domain/product"
	"github.com/junejamohit13/fhir-cmc-app/internal/domain/protocol"
	"github.com/junejamohit13/fhir-cmc-app/internal/domain/result"
	"github.com/junejamohit13/fhir-cmc-app/internal/domain/sharing"
	"github.com/junejamohit13/fhir-cmc-app/internal/domain/testdef"
	"github.com/junejamohit13/fhir-cmc-app/internal/platform/auth"
	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhir"
	"github.com/junejamohit13/fhir-cmc-app/internal/platform/fhirclient"
	"github.com/junejamohit13/fhir-cmc-app/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "stability-server",
		Short: "Stability testing collaboration API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server for the configured role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}

	// Repository client
	repo := fhirclient.New(cfg.FHIRServerURL,
		fhirclient.WithHeaderSource(repositoryCredentials(cfg)),
		fhirclient.WithTimeout(time.Duration(cfg.RequestTimeoutSeconds)*time.Second),
		fhirclient.WithBundleTimeout(time.Duration(cfg.BundleTimeoutSeconds)*time.Second),
	)
	logger.Info().
		Str("role", cfg.Role).
		Str("fhir_server", cfg.FHIRServerURL).
		Str("auth_mode", cfg.FHIRAuthMode).
		Msg("starting stability server")

	// Partner submissions always authenticate with the partner's API key,
	// never with this server's repository credentials.
	submit := func(ctx context.Context, endpoint, apiKey string, bundle *fhir.Bundle) error {
		var hs fhirclient.HeaderSource = auth.None{}
		if apiKey != "" {
			hs = auth.APIKey{Key: apiKey}
		}
		partner := fhirclient.New(endpoint,
			fhirclient.WithHeaderSource(hs),
			fhirclient.WithBundleTimeout(time.Duration(cfg.BundleTimeoutSeconds)*time.Second),
		)
		_, err := partner.SubmitBundle(ctx, bundle)
		return err
	}

	// Services
	protocolSvc := protocol.NewService(repo, logger)
	testdefSvc := testdef.NewService(repo, logger)
	batchSvc := batch.NewService(repo, logger)
	orgSvc := organization.NewService(repo, logger)
	productSvc := product.NewService(repo, logger)
	resultSvc := result.NewService(repo, orgSvc, submit, logger)
	sharingSvc := sharing.NewService(repo, orgSvc, submit, cfg.OrganizationName, cfg.OrganizationID, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health check with a repository ping; an unreachable repository is
	// reported, not fatal, so deployments can come up before it does.
	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		fhirStatus := "ok"
		if err := repo.Metadata(ctx); err != nil {
			fhirStatus = "unreachable"
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":      "ok",
			"role":        cfg.Role,
			"fhir_server": fhirStatus,
		})
	})

	// Route surface per role; each handler registers only the routes its
	// role exposes.
	api := e.Group("")
	protocol.NewHandler(protocolSvc, cfg.Role).RegisterRoutes(api)
	testdef.NewHandler(testdefSvc, cfg.Role).RegisterRoutes(api)
	batch.NewHandler(batchSvc, cfg.Role).RegisterRoutes(api)
	organization.NewHandler(orgSvc, cfg.Role).RegisterRoutes(api)
	product.NewHandler(productSvc, cfg.Role).RegisterRoutes(api)
	result.NewHandler(resultSvc, cfg.Role).RegisterRoutes(api)
	sharing.NewHandler(sharingSvc, cfg.Role).RegisterRoutes(api)

	// Start with graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()
	logger.Info().Str("port", cfg.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(ctx)
}

// repositoryCredentials picks the credential source for the clinical
// repository from the configured auth mode.
func repositoryCredentials(cfg *config.Config) fhirclient.HeaderSource {
	switch cfg.FHIRAuthMode {
	case "apikey":
		return auth.APIKey{Key: cfg.FHIRAPIKey}
	case "oauth":
		return auth.Bearer{Source: auth.NewTokenSource(auth.TokenConfig{
			TokenURL:     cfg.OAuthTokenURL,
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			Scope:        cfg.OAuthScope,
		})}
	default:
		return auth.None{}
	}
}
