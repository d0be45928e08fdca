package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	appconfig "github.com/wolfman30/physio-quota-tracker/internal/config"
)

// Databases holds the two Postgres handles: a pgx pool for the patient and
// case stores and a database/sql handle for the sync log.
type Databases struct {
	Pool  *pgxpool.Pool
	SQLDB *sql.DB
}

// OpenDatabases connects to DATABASE_URL and verifies both handles.
func OpenDatabases(ctx context.Context, cfg *appconfig.Config) (*Databases, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, errors.New("bootstrap: DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping pgx pool: %w", err)
	}

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: open sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		pool.Close()
		_ = sqlDB.Close()
		return nil, fmt.Errorf("bootstrap: ping sql db: %w", err)
	}
	return &Databases{Pool: pool, SQLDB: sqlDB}, nil
}

// Close releases both handles.
func (d *Databases) Close() {
	if d == nil {
		return
	}
	if d.SQLDB != nil {
		_ = d.SQLDB.Close()
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}
