// Package postgres implements the database store port on PostgreSQL, plus
// the connection pool and the embedded migration runner.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx" for goose
	"github.com/pressly/goose/v3"

	"github.com/templehubsakshi/FlowSpace/internal/config"
)

//go:embed migrations/*.sql
var embedded embed.FS

// NewPool connects and pings. Zero pool settings keep pgx defaults.
func NewPool(ctx context.Context, cfg config.Postgres) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheck > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheck
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// RunMigrations applies every pending migration.
func RunMigrations(ctx context.Context, dsn string) error {
	return withProvider(dsn, func(p *goose.Provider) error {
		results, err := p.Up(ctx)
		if err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		for _, r := range results {
			slog.Info("migration applied", "version", r.Source.Version, "duration", r.Duration)
		}
		return nil
	})
}

// RollbackMigrations undoes the last steps migrations.
func RollbackMigrations(ctx context.Context, dsn string, steps int) error {
	return withProvider(dsn, func(p *goose.Provider) error {
		for range steps {
			r, err := p.Down(ctx)
			if err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			slog.Info("migration rolled back", "version", r.Source.Version)
		}
		return nil
	})
}

// MigrationVersion returns the schema version recorded in the database.
func MigrationVersion(ctx context.Context, dsn string) (int64, error) {
	var v int64
	err := withProvider(dsn, func(p *goose.Provider) error {
		var err error
		v, err = p.GetDBVersion(ctx)
		return err
	})
	return v, err
}

func withProvider(dsn string, fn func(*goose.Provider) error) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration db: %w", err)
	}
	defer func() { _ = db.Close() }()

	dir, err := fs.Sub(embedded, "migrations")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, dir)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	return fn(p)
}
