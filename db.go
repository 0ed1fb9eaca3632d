package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"

	"github.com/PKBEATS21/compat-study-find/store"
)

// openStore connects the configured backend and creates the schema when asked.
// The returned func closes the connection pool.
func openStore(ctx context.Context, cfg DatabaseConfig, log zerolog.Logger) (store.Store, func() error, error) {
	switch cfg.Driver {
	case "sqlite":
		gdb, err := store.OpenSQLite(cfg.SQLitePath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, nil, err
		}
		s := store.NewGorm(gdb, store.WithLogger(log))
		if cfg.Migrate {
			if err := s.Migrate(ctx); err != nil {
				_ = sqlDB.Close()
				return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
			}
		}
		log.Info().Str("driver", "sqlite").Str("path", cfg.SQLitePath).Msg("Database connection established")
		return s, sqlDB.Close, nil

	default:
		db, err := sql.Open("postgres", cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("cannot reach the database: %w", err)
		}
		s := store.NewPostgres(db, store.WithLogger(log))
		if cfg.Migrate {
			if err := s.Migrate(ctx); err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		log.Info().Str("driver", "postgres").Msg("Database connection established")
		return s, db.Close, nil
	}
}
