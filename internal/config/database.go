package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	defaultMaxIdleConns    = 10
	defaultMaxOpenConns    = 100
	defaultConnMaxLifetime = time.Hour
)

// SetupDatabase opens the session store. SQL statements are logged only when
// the application logger is at debug level.
func SetupDatabase(cfg *DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	if cfg == nil {
		return nil, errors.New("database config is nil")
	}
	if logger == nil {
		return nil, errors.New("logger is nil")
	}

	dialector, err := openDialector(cfg)
	if err != nil {
		return nil, err
	}

	logMode := gormlogger.Warn
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		logMode = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pool, err := resolvePool(&cfg.Pool)
	if err != nil {
		closeDB(db)
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(pool.idle)
	sqlDB.SetMaxOpenConns(pool.open)
	sqlDB.SetConnMaxLifetime(pool.lifetime)

	logger.Info("session store connected",
		slog.String("driver", cfg.Driver),
		slog.Int("max_idle_conns", pool.idle),
		slog.Int("max_open_conns", pool.open),
		slog.Duration("conn_max_lifetime", pool.lifetime),
	)
	return db, nil
}

func openDialector(cfg *DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		dir := filepath.Dir(cfg.SQLite.Path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory %q: %w", dir, err)
			}
		}
		return sqlite.Open(cfg.SQLite.Path), nil
	case "postgres":
		return postgres.Open(buildPostgresDSN(&cfg.Postgres)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

type poolSettings struct {
	idle     int
	open     int
	lifetime time.Duration
}

// resolvePool fills zero pool values with defaults.
func resolvePool(p *PoolConfig) (poolSettings, error) {
	s := poolSettings{idle: p.MaxIdleConns, open: p.MaxOpenConns, lifetime: defaultConnMaxLifetime}
	if s.idle <= 0 {
		s.idle = defaultMaxIdleConns
	}
	if s.open <= 0 {
		s.open = defaultMaxOpenConns
	}
	if p.ConnMaxLifetime != "" {
		d, err := time.ParseDuration(p.ConnMaxLifetime)
		if err != nil {
			return s, fmt.Errorf("invalid pool.conn_max_lifetime %q: %w", p.ConnMaxLifetime, err)
		}
		if d <= 0 {
			return s, fmt.Errorf("invalid pool.conn_max_lifetime %q: must be greater than 0", p.ConnMaxLifetime)
		}
		s.lifetime = d
	}
	return s, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func buildPostgresDSN(cfg *PostgresConfig) string {
	if cfg == nil {
		return ""
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   cfg.DBName,
	}
	if cfg.User != "" || cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}
