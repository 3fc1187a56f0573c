package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast/internal/backplane"
	"github.com/roomcast/roomcast/internal/config"
	"github.com/roomcast/roomcast/internal/core"
	"github.com/roomcast/roomcast/internal/history"
	"github.com/roomcast/roomcast/internal/history/jsonl"
	"github.com/roomcast/roomcast/internal/history/sqlite"
	transporthttp "github.com/roomcast/roomcast/internal/transport/http"
)

// App wires together the chat core, its backing services, and the
// transport layer.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	rooms           *core.Manager
	store           history.Store
	bp              backplane.Backplane
	log             *zerolog.Logger
}

// New constructs the application with the provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	store, err := newStore(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("init history store: %w", err)
	}
	logger.Info().Str("backend", cfg.History.Backend).Msg("history store initialized")

	bp, err := newBackplane(cfg.Backplane)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init backplane: %w", err)
	}
	logger.Info().Str("driver", cfg.Backplane.Driver).Msg("backplane initialized")

	registry := core.NewRegistry()
	rooms := core.NewManager(registry, store, bp, *logger, cfg.AutoCreateRooms)
	bcast := core.NewBroadcaster(registry, store, rooms, *logger, cfg.MaxMessageBytes)
	server := transporthttp.NewServer(rooms, bcast, store, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		rooms:           rooms,
		store:           store,
		bp:              bp,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or a
// fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup stops room bridges, drains the backplane, and closes the store.
func (a *App) cleanup() {
	a.rooms.Shutdown()
	if err := a.bp.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close backplane")
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close history store")
	} else {
		a.log.Info().Msg("history store closed")
	}
}

func newStore(cfg config.History) (history.Store, error) {
	switch cfg.Backend {
	case "", "jsonl":
		return jsonl.New(cfg.Dir)
	case "sqlite":
		return sqlite.New(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

func newBackplane(cfg config.Backplane) (backplane.Backplane, error) {
	switch cfg.Driver {
	case "", "memory":
		return backplane.NewMemory(), nil
	case "nats":
		return backplane.ConnectNATS(cfg.URL, cfg.Name)
	default:
		return nil, fmt.Errorf("unknown backplane driver %q", cfg.Driver)
	}
}
