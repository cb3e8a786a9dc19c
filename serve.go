package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/inkhaven/inkhaven/internal/config"
	"github.com/inkhaven/inkhaven/internal/credential"
	"github.com/inkhaven/inkhaven/internal/drive"
	"github.com/inkhaven/inkhaven/internal/httpapi"
	"github.com/inkhaven/inkhaven/internal/library"
	"github.com/inkhaven/inkhaven/internal/profile"
	"github.com/inkhaven/inkhaven/internal/storage"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the persistence core HTTP server",
		RunE:  runServe,
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	cfgPath := resolveConfigPath()

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return err
	}

	levelVar := &slog.LevelVar{}
	logger := buildLogger(cfg, levelVar)
	slog.SetDefault(logger)

	ctx := shutdownContext(context.Background(), logger)

	// All mutable state is constructed here and injected — no package
	// globals, so tests can run multiple instances in-process.
	store := credential.NewStore()
	manager := credential.NewManager(store, oauthConfig(&cfg.Drive), &http.Client{
		Timeout: cfg.RequestTimeoutDuration(),
	}, logger)

	client := drive.NewClient(cfg.Drive.BaseURL, &http.Client{
		Timeout: cfg.RequestTimeoutDuration(),
	}, manager, logger)

	gateway := storage.NewGateway(client, manager, cfg.Drive.RootFolder, logger)
	profiles := profile.NewStore(gateway, logger)
	books := library.New(gateway, logger)

	server := httpapi.New(httpapi.Config{
		Library:  books,
		Profiles: profiles,
		Gateway:  gateway,
		Creds:    manager,
		Logger:   logger,
	})

	// Cold-start warm-up: fire-and-forget so readiness is not blocked on
	// the remote. With no credential yet this logs a warning and the
	// forced-resync endpoint covers it later.
	go func() {
		if _, reconcileErr := books.Reconcile(ctx); reconcileErr != nil {
			logger.Warn("startup reconcile failed",
				slog.String("error", reconcileErr.Error()),
			)
		}
	}()

	// Watch the config file so log level follows edits without restart.
	holder := config.NewHolder(cfg, cfgPath)

	go func() {
		watchErr := config.Watch(ctx, holder, func(updated *config.Config) {
			levelVar.Set(logLevel(updated))
		}, logger)
		if watchErr != nil {
			logger.Warn("config watcher unavailable",
				slog.String("error", watchErr.Error()),
			)
		}
	}()

	return runHTTPServer(ctx, cfg, server.Router(), logger)
}

// runHTTPServer serves until ctx cancels, then drains connections within
// the configured shutdown timeout.
func runHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.ListenAddr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutDuration())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")

	return nil
}

// oauthConfig builds the oauth2 endpoint configuration for the drive
// provider from config.
func oauthConfig(d *config.DriveConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     d.ClientID,
		ClientSecret: d.ClientSecret,
		RedirectURL:  d.RedirectURL,
		Scopes:       d.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  d.AuthURL,
			TokenURL: d.TokenURL,
		},
	}
}
