// Package server provides the public entry point for initializing the
// VoxDesk console plane server.
//
// This package exists in pkg/ (not internal/) so that deployment wrappers
// can import it and compose the server with extra middleware.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/voxdesk/voxdesk/console-plane/internal/api"
	"github.com/voxdesk/voxdesk/console-plane/internal/api/handlers"
	"github.com/voxdesk/voxdesk/console-plane/internal/config"
	"github.com/voxdesk/voxdesk/console-plane/internal/identity"
	"github.com/voxdesk/voxdesk/console-plane/internal/idp"
	"github.com/voxdesk/voxdesk/console-plane/internal/janitor"
	"github.com/voxdesk/voxdesk/console-plane/internal/store"
	"github.com/voxdesk/voxdesk/console-plane/internal/telemetry"
	"github.com/voxdesk/voxdesk/console-plane/internal/upstream"
)

// Server holds the initialized VoxDesk console plane.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the console store (roles, sessions, secret bookkeeping).
	Store store.Store

	// Config is the loaded configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown; it stops the
	// janitor and flushes telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all console plane components and returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the console plane with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info().Str("driver", cfg.Store.Driver).Msg("store initialized")

	provider := idp.NewHTTPClient(cfg.IDP.BaseURL, cfg.IDP.APIKey, cfg.IDP.Timeout)
	platform := upstream.NewHTTPClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)
	ident := identity.NewService(dataStore, provider, cfg.Session)

	h := handlers.New(dataStore, ident, platform, cfg.Version)
	router := api.NewRouter(cfg, h, ident)

	var sweeper *janitor.Janitor
	if cfg.Janitor.Enabled {
		sweeper = janitor.New(dataStore, platform, ident, cfg.Upstream.ServiceToken, cfg.Janitor.Schedule)
		if err := sweeper.Start(); err != nil {
			dataStore.Close()
			return nil, fmt.Errorf("start janitor: %w", err)
		}
	}

	shutdown := func(ctx context.Context) error {
		if sweeper != nil {
			sweeper.Stop()
		}
		return shutdownTelemetry(ctx)
	}

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return store.NewMemoryStore(cfg.DataDir), nil
	case "sqlite":
		return store.NewSQLiteStore(cfg.DataDir)
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
