package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestNewWithConfig tests logger creation with custom config
func TestNewWithConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name: "valid development config",
			config: &Config{
				Level:       "debug",
				Development: true,
				Encoding:    "console",
			},
		},
		{
			name: "valid production config",
			config: &Config{
				Level:    "info",
				Encoding: "json",
			},
		},
		{
			name: "invalid log level",
			config: &Config{
				Level:    "loud",
				Encoding: "json",
			},
			wantErr: true,
		},
		{
			name:   "empty config uses defaults",
			config: &Config{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewWithConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewWithConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("NewWithConfig() returned nil logger")
			}
		})
	}
}

// TestNewDefaults tests that defaults are written back into the config
func TestNewDefaults(t *testing.T) {
	cfg := &Config{}
	if _, err := NewWithConfig(cfg); err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	if cfg.Level != "info" || cfg.Encoding != "json" {
		t.Errorf("unexpected defaults: level=%q encoding=%q", cfg.Level, cfg.Encoding)
	}
	if len(cfg.OutputPaths) != 1 || cfg.OutputPaths[0] != "stderr" {
		t.Errorf("logs must default to stderr, got %v", cfg.OutputPaths)
	}
}

// TestNew tests building a logger from config file values
func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := New("warn", format)
		if err != nil {
			t.Fatalf("New(warn, %s) error = %v", format, err)
		}
		if logger.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("%s logger should not enable info at warn level", format)
		}
		if !logger.Core().Enabled(zapcore.WarnLevel) {
			t.Errorf("%s logger should enable warn", format)
		}
	}

	if _, err := New("verbose", "json"); err == nil {
		t.Error("expected error for invalid level")
	}
}

// TestFieldHelpers tests component and search tagging
func TestFieldHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithComponent(base, "search").Info("component")
	WithSearch(base, "storage_change", "0190f0c2").Info("search")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["component"]; got != "search" {
		t.Errorf("component = %v", got)
	}
	fields := entries[1].ContextMap()
	if fields["search_kind"] != "storage_change" || fields["search_id"] != "0190f0c2" {
		t.Errorf("search fields = %v", fields)
	}
}
