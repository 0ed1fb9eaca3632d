package main

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPServiceStopsWithContext(t *testing.T) {
	svc := &httpService{
		addr:            "127.0.0.1:0",
		handler:         http.HandlerFunc(healthHandler),
		shutdownTimeout: time.Second,
		log:             zerolog.Nop(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("http service did not stop")
	}
}

func TestSupervisorRunsLiveFeed(t *testing.T) {
	app := newTestApp(t, func(c *Config) { c.Live.RefreshInterval = 10 * time.Millisecond })
	sup := newSupervisor(zerolog.Nop(), time.Second)
	sup.Add(app.srv.live)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func TestInitLogging(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	log := initLogging(LogConfig{Level: "warn", Format: "json"}, &buf)
	log.Info().Msg("hidden")
	log.Warn().Str("component", "test").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"component":"test"`)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	initLogging(LogConfig{Level: "nonsense"}, &buf)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestOpenStoreSQLite(t *testing.T) {
	cfg := defaultConfig().Database
	cfg.Driver = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "match.db")

	s, closeDB, err := openStore(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeDB() })

	subjects, err := s.ListAllSubjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subjects)
}
