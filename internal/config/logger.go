package config

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/simp-lee/logger"
)

// SetupLogger builds the process logger from cfg and installs it as the slog
// default. Request-scoped attributes (request id, session email) travel on the
// context and are added by the context middleware. Close the returned logger on
// shutdown to flush file output.
func SetupLogger(cfg *LogConfig) (*logger.Logger, error) {
	if cfg == nil {
		return nil, errors.New("log config is nil")
	}

	format := outputFormat(cfg.Format)
	opts := []logger.Option{
		logger.WithLevel(parseLevel(cfg.Level)),
		logger.WithMiddleware(logger.ContextMiddleware()),
		logger.WithConsoleFormat(format),
		logger.WithConsoleColor(cfg.Color == nil || *cfg.Color),
	}
	opts = append(opts, fileOptions(cfg, format)...)

	log, err := logger.New(opts...)
	if err != nil {
		return nil, err
	}
	log.SetDefault()
	return log, nil
}

// fileOptions returns the rotating file sink options, or nil when no
// file_path is configured.
func fileOptions(cfg *LogConfig, format logger.OutputFormat) []logger.Option {
	if cfg.FilePath == "" {
		return nil
	}
	opts := []logger.Option{
		logger.WithFilePath(cfg.FilePath),
		logger.WithFileFormat(format),
	}
	if cfg.MaxSizeMB > 0 {
		opts = append(opts, logger.WithMaxSizeMB(cfg.MaxSizeMB))
	}
	if cfg.RetentionDays > 0 {
		opts = append(opts, logger.WithRetentionDays(cfg.RetentionDays))
	}
	if cfg.MaxBackups > 0 {
		opts = append(opts, logger.WithMaxBackups(cfg.MaxBackups))
	}
	if cfg.CompressRotated != nil {
		opts = append(opts, logger.WithCompressRotated(*cfg.CompressRotated))
	}
	return opts
}

// outputFormat maps log.format to a logger format. Anything other than text
// or json falls back to the custom console layout.
func outputFormat(s string) logger.OutputFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return logger.FormatText
	case "json":
		return logger.FormatJSON
	default:
		return logger.FormatCustom
	}
}

// parseLevel converts a level name to a slog.Level, defaulting to info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
