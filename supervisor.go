package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// newSupervisor builds the root supervisor. suture events go to the service log.
func newSupervisor(log zerolog.Logger, shutdownTimeout time.Duration) *suture.Supervisor {
	return suture.New("studymatch", suture.Spec{
		EventHook: func(e suture.Event) {
			log.Warn().Fields(e.Map()).Msg(e.String())
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})
}

// httpService runs the API server under the supervisor.
type httpService struct {
	addr            string
	handler         http.Handler
	shutdownTimeout time.Duration
	log             zerolog.Logger
}

func (h *httpService) String() string { return "http-server" }

func (h *httpService) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              h.addr,
		Handler:           h.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		h.log.Info().Str("addr", h.addr).Msg("Starting study match server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return suture.ErrDoNotRestart
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			h.log.Error().Err(err).Msg("HTTP server shutdown")
		}
		h.log.Info().Msg("HTTP server stopped")
		return ctx.Err()
	}
}
