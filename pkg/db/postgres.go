package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jacl-coder/EyeSurvival-Server/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ConnectPostgres opens a pooled sqlx handle and pings it within timeout.
func ConnectPostgres(cfg config.DatabaseConfig, timeout time.Duration) (*sqlx.DB, error) {
	conn, err := sqlx.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
		conn.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	}
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return conn, nil
}

// Migrate creates every table and index if missing.
func Migrate(ctx context.Context, conn *sqlx.DB) error {
	if _, err := conn.ExecContext(ctx, CreateAllTablesSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Reset drops every table owned by the service.
func Reset(ctx context.Context, conn *sqlx.DB) error {
	if _, err := conn.ExecContext(ctx, DropAllTablesSQL); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	return nil
}
