package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Check defaults
	if cfg.Video.SamplingFPS != 2.0 {
		t.Errorf("Expected sampling_fps=2.0, got %f", cfg.Video.SamplingFPS)
	}
	if cfg.Counting.BucketSeconds != 60 {
		t.Errorf("Expected bucket_seconds=60, got %d", cfg.Counting.BucketSeconds)
	}
	if cfg.Counting.ClassMap["motorbike"] != "motorcycle" {
		t.Errorf("Expected motorbike to map to motorcycle, got %s", cfg.Counting.ClassMap["motorbike"])
	}
	if cfg.Detector.Backend != "synthetic" {
		t.Errorf("Expected detector backend=synthetic, got %s", cfg.Detector.Backend)
	}
	if cfg.Detector.Synthetic.Seed != 42 {
		t.Errorf("Expected synthetic seed=42, got %d", cfg.Detector.Synthetic.Seed)
	}
	if cfg.Density.LowMax != 0.33 || cfg.Density.MediumMax != 0.66 {
		t.Errorf("Expected density thresholds 0.33/0.66, got %f/%f", cfg.Density.LowMax, cfg.Density.MediumMax)
	}
	if !cfg.Density.RollingMax {
		t.Error("Expected rolling_max=true by default")
	}
	if cfg.Density.DefaultMaxVehicles != 30 {
		t.Errorf("Expected default_max_vehicles=30, got %d", cfg.Density.DefaultMaxVehicles)
	}
	if cfg.Emissions.Factors["bus"] != 1.2 {
		t.Errorf("Expected bus factor=1.2, got %f", cfg.Emissions.Factors["bus"])
	}
	if cfg.Emissions.SensitivityPct != 10.0 {
		t.Errorf("Expected sensitivity_pct=10.0, got %f", cfg.Emissions.SensitivityPct)
	}
	if cfg.Live.Enabled {
		t.Error("Expected live.enabled=false by default")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected log level=info, got %s", cfg.Log.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero sampling fps",
			mutate:  func(c *Config) { c.Video.SamplingFPS = 0 },
			wantErr: "sampling_fps",
		},
		{
			name:    "negative sampling fps",
			mutate:  func(c *Config) { c.Video.SamplingFPS = -1 },
			wantErr: "sampling_fps",
		},
		{
			name:    "zero bucket seconds",
			mutate:  func(c *Config) { c.Counting.BucketSeconds = 0 },
			wantErr: "bucket_seconds",
		},
		{
			name:    "low above medium",
			mutate:  func(c *Config) { c.Density.LowMax = 0.7; c.Density.MediumMax = 0.6 },
			wantErr: "thresholds",
		},
		{
			name:    "low equals medium",
			mutate:  func(c *Config) { c.Density.LowMax = 0.5; c.Density.MediumMax = 0.5 },
			wantErr: "thresholds",
		},
		{
			name:    "medium above one",
			mutate:  func(c *Config) { c.Density.MediumMax = 1.5 },
			wantErr: "thresholds",
		},
		{
			name:    "negative emission factor",
			mutate:  func(c *Config) { c.Emissions.Factors["car"] = -0.1 },
			wantErr: "factors",
		},
		{
			name:    "negative sensitivity",
			mutate:  func(c *Config) { c.Emissions.SensitivityPct = -5 },
			wantErr: "sensitivity_pct",
		},
		{
			name:    "unknown detector backend",
			mutate:  func(c *Config) { c.Detector.Backend = "yolo" },
			wantErr: "detector.backend",
		},
		{
			name:    "unknown synthetic mode",
			mutate:  func(c *Config) { c.Detector.Synthetic.Mode = "burst" },
			wantErr: "mode",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFromFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Counting.BucketSeconds != 60 {
		t.Errorf("Expected default bucket_seconds=60, got %d", cfg.Counting.BucketSeconds)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
counting:
  bucket_seconds: 30
density:
  low_max: 0.2
  medium_max: 0.8
emissions:
  sensitivity_pct: 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Counting.BucketSeconds != 30 {
		t.Errorf("Expected bucket_seconds=30, got %d", cfg.Counting.BucketSeconds)
	}
	if cfg.Density.LowMax != 0.2 || cfg.Density.MediumMax != 0.8 {
		t.Errorf("Expected thresholds 0.2/0.8, got %f/%f", cfg.Density.LowMax, cfg.Density.MediumMax)
	}
	if cfg.Emissions.SensitivityPct != 5 {
		t.Errorf("Expected sensitivity_pct=5, got %f", cfg.Emissions.SensitivityPct)
	}
	// Untouched sections keep their defaults.
	if cfg.Video.SamplingFPS != 2.0 {
		t.Errorf("Expected default sampling_fps=2.0, got %f", cfg.Video.SamplingFPS)
	}
}

func TestLoadFromFileRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "counting:\n  bucket_seconds: -1\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("Expected error for invalid config, got nil")
	}
}

func TestLoadFromFileBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("counting: ["), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("Expected parse error, got nil")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CAMFLOW_DB_URL", "postgres://metrics:secret@db/camflow")
	t.Setenv("CAMFLOW_LOG_LEVEL", "debug")
	t.Setenv("CAMFLOW_REDIS_ADDR", "127.0.0.1:6379")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Storage.DatabaseURL != "postgres://metrics:secret@db/camflow" {
		t.Errorf("Expected database_url from env, got %s", cfg.Storage.DatabaseURL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level=debug, got %s", cfg.Log.Level)
	}
	if cfg.Live.RedisAddr != "127.0.0.1:6379" {
		t.Errorf("Expected redis addr from env, got %s", cfg.Live.RedisAddr)
	}
}

func TestApplyEnvOverridesIgnoresInvalidLevel(t *testing.T) {
	t.Setenv("CAMFLOW_LOG_LEVEL", "loud")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Log.Level != "info" {
		t.Errorf("Expected invalid level to be ignored, got %s", cfg.Log.Level)
	}
}
