package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/PKBEATS21/compat-study-find/matching"
	"github.com/PKBEATS21/compat-study-find/store"
)

// server wires the HTTP surface to the record store and the ranker.
type server struct {
	cfg     *Config
	log     zerolog.Logger
	store   store.Store
	ranker  *matching.Ranker
	auth    *authenticator
	metrics *metrics
	live    *liveHub
}

func newServer(cfg *Config, log zerolog.Logger, s store.Store, m *metrics) *server {
	opts := []matching.Option{matching.WithLogger(log), matching.WithObserver(m)}
	srv := &server{
		cfg:     cfg,
		log:     log,
		store:   s,
		ranker:  matching.NewRanker(s, opts...),
		auth:    newAuthenticator(cfg.Auth.JWTSecret),
		metrics: m,
	}
	if cfg.Live.Enabled {
		srv.live = newLiveHub(s, cfg.Live.RefreshInterval, cfg.CORS.AllowedOrigins, m, log, opts...)
	}
	return srv
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(withCORS(s.cfg.CORS.AllowedOrigins))
	r.Use(s.metrics.instrument)

	r.Get("/health", healthHandler)
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	r.Group(func(r chi.Router) {
		r.Use(s.auth.authenticate)
		r.Use(httprate.Limit(
			s.cfg.RateLimit.Requests,
			s.cfg.RateLimit.Window,
			httprate.WithKeyFuncs(requesterKeyFunc),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusTooManyRequests, "rate_limited")
			}),
		))

		r.Get("/matches", matchesHandler(s.ranker))
		r.Get("/me/readiness", readinessHandler(s.store))
		r.Get("/me/completion", completionHandler(s.store))
		if s.live != nil {
			r.Get("/ws/matches", s.live.serveWS)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "invalid_method")
	})
	return r
}
