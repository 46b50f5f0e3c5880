package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Session   SessionConfig   `koanf:"session"`
	Listing   ListingConfig   `koanf:"listing"`
	Dialog    DialogConfig    `koanf:"dialog"`
	Dashboard DashboardConfig `koanf:"dashboard"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host       string     `koanf:"host"`
	Port       int        `koanf:"port"`
	Mode       string     `koanf:"mode"`
	CSRFSecret string     `koanf:"csrf_secret"`
	Timeout    string     `koanf:"timeout"`
	CORS       CORSConfig `koanf:"cors"`
}

// CORSConfig holds CORS middleware settings.
type CORSConfig struct {
	AllowOrigins     []string `koanf:"allow_origins"`
	AllowMethods     []string `koanf:"allow_methods"`
	AllowHeaders     []string `koanf:"allow_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           string   `koanf:"max_age"`
}

// DatabaseConfig holds the session store connection settings.
type DatabaseConfig struct {
	Driver   string         `koanf:"driver"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pool     PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// UpstreamConfig locates the complaints REST API.
type UpstreamConfig struct {
	BaseURL      string `koanf:"base_url"`
	Timeout      string `koanf:"timeout"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
}

// SessionConfig holds staff session settings.
type SessionConfig struct {
	CookieName    string `koanf:"cookie_name"`
	TTL           string `koanf:"ttl"`
	Secure        bool   `koanf:"secure"`
	PurgeInterval string `koanf:"purge_interval"`
}

// ListingConfig bounds the complaint list page size.
type ListingConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// DialogConfig tunes the per-session dialog queue.
type DialogConfig struct {
	MaxQueue    int    `koanf:"max_queue"`
	LongPollMax string `koanf:"long_poll_max"`
}

// DashboardConfig tunes the statistics cache.
type DashboardConfig struct {
	StatsTTL string `koanf:"stats_ttl"`
	TopN     int    `koanf:"top_n"`
}

// Load reads configuration from a YAML file and overlays environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator. Single underscores are preserved as part of the key name.
// For example, APP__UPSTREAM__BASE_URL overrides upstream.base_url.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	// APP__SESSION__COOKIE_NAME -> session.cookie_name
	if err := k.Load(env.Provider("APP__", ".", func(s string) string {
		key := strings.TrimPrefix(s, "APP__")
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints and supported values, filling in
// defaults for optional fields.
func (c *Config) Validate() error {
	mode := strings.TrimSpace(c.Server.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		c.Server.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", c.Server.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}

	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	c.Server.CSRFSecret = strings.TrimSpace(c.Server.CSRFSecret)
	if c.Server.Mode == gin.ReleaseMode {
		if len(c.Server.CSRFSecret) < 32 {
			return fmt.Errorf("invalid server.csrf_secret: must be at least 32 characters in release mode")
		}
		if CountSecretClasses(c.Server.CSRFSecret) < 3 {
			return fmt.Errorf("server.csrf_secret must include at least 3 character classes (lowercase, uppercase, digit, symbol) in release mode")
		}
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateUpstream(); err != nil {
		return err
	}

	c.Session.CookieName = strings.TrimSpace(c.Session.CookieName)
	if c.Session.CookieName == "" {
		c.Session.CookieName = "denuncias_session"
	}
	if c.Server.Mode == gin.ReleaseMode && !c.Session.Secure {
		return fmt.Errorf("session.secure must be true in release mode")
	}

	if c.Listing.MaxPageSize == 0 {
		c.Listing.MaxPageSize = 100
	}
	if c.Listing.DefaultPageSize == 0 {
		c.Listing.DefaultPageSize = 10
	}
	if c.Listing.MaxPageSize < 1 {
		return fmt.Errorf("invalid listing.max_page_size %d: must be positive", c.Listing.MaxPageSize)
	}
	if c.Listing.DefaultPageSize < 1 || c.Listing.DefaultPageSize > c.Listing.MaxPageSize {
		return fmt.Errorf("invalid listing.default_page_size %d: must be between 1 and listing.max_page_size (%d)", c.Listing.DefaultPageSize, c.Listing.MaxPageSize)
	}

	if c.Dialog.MaxQueue < -1 {
		return fmt.Errorf("invalid dialog.max_queue %d: must be -1 (unbounded) or greater", c.Dialog.MaxQueue)
	}
	if c.Dashboard.TopN < 0 {
		return fmt.Errorf("invalid dashboard.top_n %d: must not be negative", c.Dashboard.TopN)
	}

	durations := []struct {
		name      string
		value     *string
		def       string
		allowZero bool
	}{
		{"server.timeout", &c.Server.Timeout, "", false},
		{"server.cors.max_age", &c.Server.CORS.MaxAge, "", false},
		{"database.pool.conn_max_lifetime", &c.Database.Pool.ConnMaxLifetime, "", false},
		{"upstream.timeout", &c.Upstream.Timeout, "15s", false},
		{"session.ttl", &c.Session.TTL, "8h", false},
		{"session.purge_interval", &c.Session.PurgeInterval, "10m", false},
		{"dialog.long_poll_max", &c.Dialog.LongPollMax, "30s", false},
		{"dashboard.stats_ttl", &c.Dashboard.StatsTTL, "5m", true},
	}
	for _, f := range durations {
		v := strings.TrimSpace(*f.value)
		if v == "" {
			v = f.def
		}
		*f.value = v
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: must be a valid duration (e.g. \"30s\", \"5m\"): %w", f.name, v, err)
		}
		if d < 0 || (d == 0 && !f.allowZero) {
			return fmt.Errorf("invalid %s %q: must be greater than 0", f.name, v)
		}
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", c.Log.Format, "text", "json")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database.driver %q: must be one of %q, %q", c.Database.Driver, "sqlite", "postgres")
	}

	if c.Database.Driver == "sqlite" {
		sqlitePath := strings.TrimSpace(c.Database.SQLite.Path)
		if sqlitePath == "" {
			return fmt.Errorf("database.sqlite.path is required when driver is sqlite")
		}
		c.Database.SQLite.Path = sqlitePath
		return nil
	}

	pg := &c.Database.Postgres
	pg.Host = strings.TrimSpace(pg.Host)
	pg.User = strings.TrimSpace(pg.User)
	pg.DBName = strings.TrimSpace(pg.DBName)
	pg.SSLMode = strings.TrimSpace(pg.SSLMode)
	if pg.Host == "" {
		return fmt.Errorf("database.postgres.host is required when driver is postgres")
	}
	if pg.Port < 1 || pg.Port > 65535 {
		return fmt.Errorf("invalid database.postgres.port %d: must be between 1 and 65535", pg.Port)
	}
	if pg.User == "" {
		return fmt.Errorf("database.postgres.user is required when driver is postgres")
	}
	if pg.DBName == "" {
		return fmt.Errorf("database.postgres.dbname is required when driver is postgres")
	}
	switch pg.SSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("invalid database.postgres.sslmode %q: must be one of %q, %q, %q, %q, %q, %q", pg.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")
	}
	if c.Server.Mode == gin.ReleaseMode {
		switch pg.SSLMode {
		case "require", "verify-ca", "verify-full":
		default:
			return fmt.Errorf("invalid database.postgres.sslmode %q for server.mode %q: must be one of %q, %q, %q", pg.SSLMode, gin.ReleaseMode, "require", "verify-ca", "verify-full")
		}
	}
	return nil
}

func (c *Config) validateUpstream() error {
	raw := strings.TrimRight(strings.TrimSpace(c.Upstream.BaseURL), "/")
	if raw == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid upstream.base_url %q: %w", c.Upstream.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid upstream.base_url %q: scheme must be http or https", c.Upstream.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid upstream.base_url %q: host is required", c.Upstream.BaseURL)
	}
	if c.Server.Mode == gin.ReleaseMode && u.Scheme != "https" {
		return fmt.Errorf("invalid upstream.base_url %q for server.mode %q: must use https", c.Upstream.BaseURL, gin.ReleaseMode)
	}
	if c.Upstream.MaxIdleConns < 0 {
		return fmt.Errorf("invalid upstream.max_idle_conns %d: must not be negative", c.Upstream.MaxIdleConns)
	}
	c.Upstream.BaseURL = raw
	return nil
}

// Duration parses a duration field already checked by Validate. Empty
// values yield zero.
func Duration(s string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return d
}

// CountSecretClasses counts how many character classes (lowercase, uppercase,
// digit, symbol) are present in the given secret string.
func CountSecretClasses(secret string) int {
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range secret {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	classes := 0
	for _, ok := range []bool{hasLower, hasUpper, hasDigit, hasSymbol} {
		if ok {
			classes++
		}
	}
	return classes
}
