package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/PKBEATS21/compat-study-find/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "studymatch:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := initLogging(cfg.Log, os.Stderr)
	if cfg.devSecret() {
		log.Warn().Msg("JWT_SECRET not set, using the development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := newMetrics()
	backend, closeDB, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeDB(); err != nil {
			log.Error().Err(err).Msg("Closing database")
		}
	}()

	guarded := store.NewGuarded(backend, cfg.Breaker, m.breakerChanged, store.WithLogger(log))
	app := newServer(cfg, log, guarded, m)

	sup := newSupervisor(log, cfg.Server.ShutdownTimeout)
	sup.Add(&httpService{
		addr:            cfg.Server.Addr,
		handler:         app.routes(),
		shutdownTimeout: cfg.Server.ShutdownTimeout,
		log:             log,
	})
	if app.live != nil {
		sup.Add(app.live)
	}

	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("Shut down cleanly")
	return nil
}
