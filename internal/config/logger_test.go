package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/simp-lee/logger"
)

func boolPtr(b bool) *bool { return &b }

func TestSetupLogger_LevelMapping(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"info level", "info", slog.LevelInfo},
		{"warn level", "warn", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"padded warn", " warn ", slog.LevelWarn},
		{"invalid defaults to info", "verbose", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := SetupLogger(&LogConfig{Level: tt.level, Format: "text"})
			if err != nil {
				t.Fatalf("SetupLogger error: %v", err)
			}
			defer log.Close()

			if !log.Enabled(context.TODO(), tt.wantLevel) {
				t.Errorf("expected level %v to be enabled", tt.wantLevel)
			}
			if tt.wantLevel > slog.LevelDebug && log.Enabled(context.TODO(), tt.wantLevel-1) {
				t.Errorf("expected level %v to be disabled (configured: %v)", tt.wantLevel-1, tt.wantLevel)
			}
		})
	}
}

func TestSetupLogger_NilConfig(t *testing.T) {
	if _, err := SetupLogger(nil); err == nil {
		t.Fatal("SetupLogger(nil) expected error")
	}
}

func TestSetupLogger_WithFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "portal.log")

	log, err := SetupLogger(&LogConfig{
		Level:           "info",
		Format:          "json",
		Color:           boolPtr(false),
		FilePath:        filePath,
		MaxSizeMB:       1,
		RetentionDays:   1,
		MaxBackups:      1,
		CompressRotated: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("SetupLogger error: %v", err)
	}
	log.Info("staff session opened", slog.String("email", "ana@muni.cl"))
	if err := log.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func TestSetupLogger_SetsDefault(t *testing.T) {
	log, err := SetupLogger(&LogConfig{Level: "warn", Format: "text"})
	if err != nil {
		t.Fatalf("SetupLogger error: %v", err)
	}
	defer log.Close()

	if slog.Default().Handler() != log.Handler() {
		t.Error("SetupLogger did not set slog.Default()")
	}
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		in   string
		want logger.OutputFormat
	}{
		{"text", logger.FormatText},
		{"JSON", logger.FormatJSON},
		{"", logger.FormatCustom},
		{"pretty", logger.FormatCustom},
	}
	for _, tt := range tests {
		if got := outputFormat(tt.in); got != tt.want {
			t.Errorf("outputFormat(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestFileOptions(t *testing.T) {
	if got := fileOptions(&LogConfig{}, logger.FormatText); got != nil {
		t.Errorf("fileOptions without a path = %d options; want none", len(got))
	}

	tests := []struct {
		name string
		cfg  LogConfig
		want int
	}{
		{"path only", LogConfig{FilePath: "x.log"}, 2},
		{"with rotation", LogConfig{FilePath: "x.log", MaxSizeMB: 10, RetentionDays: 7, MaxBackups: 3}, 5},
		{"with compression", LogConfig{FilePath: "x.log", CompressRotated: boolPtr(true)}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(fileOptions(&tt.cfg, logger.FormatText)); got != tt.want {
				t.Errorf("len(fileOptions) = %d; want %d", got, tt.want)
			}
		})
	}
}
