// Package server wires configuration, storage, the licensing engine,
// the HTTP surface, and the job scheduler into a running talosd.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/talos-license/talos/internal/api"
	"github.com/talos-license/talos/internal/auth"
	"github.com/talos-license/talos/internal/config"
	"github.com/talos-license/talos/internal/jobs"
	"github.com/talos-license/talos/internal/licensing"
	"github.com/talos-license/talos/internal/logging"
	"github.com/talos-license/talos/internal/store"
)

// Run starts the license server with graceful shutdown.
func Run(ctx context.Context, version string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Format:    cfg.Log.Format,
		Level:     cfg.Log.Level,
		Component: "talosd",
	})

	log.Info().Str("version", version).Msg("Starting Talos license server")

	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := api.EnsureBootstrapToken(ctx, st, cfg.Auth.BootstrapToken); err != nil {
		return fmt.Errorf("bootstrap token: %w", err)
	}

	engine := licensing.NewService(st, licensing.Config{
		Keys: licensing.KeyGenerator{
			Prefix:        cfg.License.KeyPrefix,
			Segments:      cfg.License.KeySegments,
			SegmentLength: cfg.License.KeySegmentLength,
		},
		Tiers: cfg.Tiers,
	})

	deps := &api.Deps{
		Config: cfg,
		Store:  st,
		Engine: engine,
		Auth: &api.Authenticator{
			Enabled: cfg.Auth.Enabled,
			Tokens:  auth.NewTokens(st),
			JWT: auth.NewJWT(auth.JWTConfig{
				Secret:     cfg.Auth.JWTSecret,
				Issuer:     cfg.Auth.JWTIssuer,
				Audience:   cfg.Auth.JWTAudience,
				Expiration: cfg.Auth.TokenExpiration,
			}),
		},
		Version: version,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(deps),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Derived context for background goroutines
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scheduler := jobs.New(engine, cfg.Jobs)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	go func() {
		log.Info().Str("addr", addr).Msg("License server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down...")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	cancel()
	log.Info().Msg("License server stopped")
	return nil
}

func openStore(ctx context.Context, db config.Database) (store.Store, error) {
	switch db.Type {
	case "sqlite":
		return store.NewSQLiteStore(db.URL)
	case "postgres":
		return store.NewPostgresStore(ctx, db.URL)
	default:
		return nil, fmt.Errorf("unsupported database type %q", db.Type)
	}
}
