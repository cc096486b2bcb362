package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/Project-Sylos/Sylos-Cutover/pkg/config"
)

// PoolOptions sizes the primary connection pool. The cutover pins a single
// session for the locked phase and briefly uses another for bookkeeping.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 60 * time.Second,
	}
}

// DSN builds a driver DSN for the profile. No default schema is selected; every
// statement the cutover issues is database-qualified.
func DSN(profile config.ConnectionConfig, username, password string) string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = profile.Address()
	cfg.User = username
	cfg.Passwd = password
	cfg.Timeout = 10 * time.Second
	if len(profile.Params) > 0 {
		cfg.Params = make(map[string]string, len(profile.Params))
		for k, v := range profile.Params {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN()
}

// Open connects to the profile and verifies the server answers.
func Open(ctx context.Context, logger zerolog.Logger, profile config.ConnectionConfig, username, password string, opts PoolOptions) (*sql.DB, error) {
	db, err := sql.Open("mysql", DSN(profile, username, password))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MySQL: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error testing MySQL connection to %s: %w", profile.Address(), err)
	}

	logger.Info().
		Str("connection", profile.Name).
		Str("address", profile.Address()).
		Msg("connected to MySQL")
	return db, nil
}
