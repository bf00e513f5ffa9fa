// Package config provides configuration management for camflow.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the camflow configuration.
type Config struct {
	Video     VideoConfig     `yaml:"video"`
	Counting  CountingConfig  `yaml:"counting"`
	Detector  DetectorConfig  `yaml:"detector"`
	Density   DensityConfig   `yaml:"density"`
	Emissions EmissionsConfig `yaml:"emissions"`
	Storage   StorageConfig   `yaml:"storage"`
	Live      LiveConfig      `yaml:"live"`
	Log       LogConfig       `yaml:"log"`
}

// VideoConfig holds frame-source settings.
type VideoConfig struct {
	SamplingFPS float64        `yaml:"sampling_fps"` // Target rate of frames fed to the detector
	Synthetic   SyntheticVideo `yaml:"synthetic"`    // Synthetic source parameters
}

// SyntheticVideo parameterizes the synthetic frame source.
type SyntheticVideo struct {
	FPS     float64 `yaml:"fps"`     // Native frame rate
	Seconds float64 `yaml:"seconds"` // Clip length in seconds
	Width   int     `yaml:"width"`   // Frame width in pixels
	Height  int     `yaml:"height"`  // Frame height in pixels
}

// CountingConfig holds aggregation settings.
type CountingConfig struct {
	BucketSeconds int               `yaml:"bucket_seconds"` // Width of one counting window
	ClassMap      map[string]string `yaml:"class_map"`      // Raw detector label -> canonical vehicle type
}

// DetectorConfig holds detector selection and parameters.
type DetectorConfig struct {
	Backend   string            `yaml:"backend"`   // synthetic or recording
	Synthetic SyntheticDetector `yaml:"synthetic"` // Synthetic detector parameters
}

// SyntheticDetector parameterizes the synthetic detector.
type SyntheticDetector struct {
	Mode        string `yaml:"mode"`          // none (no detections) or random
	MaxPerFrame int    `yaml:"max_per_frame"` // Upper bound on detections per frame
	Seed        int64  `yaml:"seed"`          // RNG seed for reproducible output
}

// DensityConfig holds congestion scoring settings.
type DensityConfig struct {
	LowMax             float64        `yaml:"low_max"`              // Scores <= low_max are "low"
	MediumMax          float64        `yaml:"medium_max"`           // Scores <= medium_max are "medium"
	DefaultMaxVehicles int            `yaml:"default_max_vehicles"` // Ceiling when nothing better is known
	RollingMax         bool           `yaml:"rolling_max"`          // Track the per-camera historical maximum
	PerCameraMax       map[string]int `yaml:"per_camera_max"`       // Fixed ceilings by camera (rolling_max off)
}

// EmissionsConfig holds CO2 estimation settings.
type EmissionsConfig struct {
	Factors        map[string]float64 `yaml:"factors"`         // kg CO2 per vehicle per minute, by type
	SensitivityPct float64            `yaml:"sensitivity_pct"` // Symmetric band width in percent
}

// StorageConfig holds database settings.
type StorageConfig struct {
	DatabaseURL string `yaml:"database_url"` // SQLite path or postgres:// URL; empty = default path
}

// LiveConfig holds live-feed relay settings.
type LiveConfig struct {
	Enabled      bool   `yaml:"enabled"`       // Publish per-frame detections over websocket
	WebsocketURL string `yaml:"websocket_url"` // camflowd ingest endpoint
	ListenAddr   string `yaml:"listen_addr"`   // camflowd bind address
	RedisAddr    string `yaml:"redis_addr"`    // Latest-bucket mirror; empty disables
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Video: VideoConfig{
			SamplingFPS: 2.0,
			Synthetic: SyntheticVideo{
				FPS:     30.0,
				Seconds: 120,
				Width:   1280,
				Height:  720,
			},
		},
		Counting: CountingConfig{
			BucketSeconds: 60,
			ClassMap: map[string]string{
				"car":        "car",
				"bus":        "bus",
				"truck":      "truck",
				"motorcycle": "motorcycle",
				"motorbike":  "motorcycle",
			},
		},
		Detector: DetectorConfig{
			Backend: "synthetic",
			Synthetic: SyntheticDetector{
				Mode:        "none",
				MaxPerFrame: 5,
				Seed:        42,
			},
		},
		Density: DensityConfig{
			LowMax:             0.33,
			MediumMax:          0.66,
			DefaultMaxVehicles: 30,
			RollingMax:         true,
			PerCameraMax:       map[string]int{},
		},
		Emissions: EmissionsConfig{
			Factors: map[string]float64{
				"car":        0.25,
				"bus":        1.2,
				"truck":      1.0,
				"motorcycle": 0.1,
			},
			SensitivityPct: 10.0,
		},
		Storage: StorageConfig{
			DatabaseURL: "", // Use default path from paths
		},
		Live: LiveConfig{
			Enabled:      false,
			WebsocketURL: "ws://127.0.0.1:8077/ingest",
			ListenAddr:   "127.0.0.1:8077",
			RedisAddr:    "",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	paths := DefaultPaths()
	return LoadFromFile(paths.ConfigFile())
}

// LoadFromFile loads configuration from the specified file.
// If the file doesn't exist, returns default configuration.
// Environment variable overrides are applied after file loading.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid config: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration. It is called eagerly at load
// time so a bad config never reaches a running pipeline.
func (c *Config) Validate() error {
	if c.Video.SamplingFPS <= 0 {
		return errors.New("video.sampling_fps must be > 0")
	}

	if c.Video.Synthetic.FPS <= 0 {
		return errors.New("video.synthetic.fps must be > 0")
	}

	if c.Video.Synthetic.Seconds <= 0 {
		return errors.New("video.synthetic.seconds must be > 0")
	}

	if c.Counting.BucketSeconds <= 0 {
		return errors.New("counting.bucket_seconds must be > 0")
	}

	if !(0.0 <= c.Density.LowMax && c.Density.LowMax < c.Density.MediumMax && c.Density.MediumMax <= 1.0) {
		return errors.New("density thresholds must satisfy 0 <= low_max < medium_max <= 1")
	}

	if c.Density.DefaultMaxVehicles < 0 {
		return errors.New("density.default_max_vehicles must be >= 0")
	}

	for vehicleType, factor := range c.Emissions.Factors {
		if factor < 0 {
			return fmt.Errorf("emissions.factors.%s must be >= 0", vehicleType)
		}
	}

	if c.Emissions.SensitivityPct < 0 {
		return errors.New("emissions.sensitivity_pct must be >= 0")
	}

	if !isValidDetectorBackend(c.Detector.Backend) {
		return fmt.Errorf("detector.backend must be synthetic or recording (got: %s)", c.Detector.Backend)
	}

	if !isValidSyntheticMode(c.Detector.Synthetic.Mode) {
		return fmt.Errorf("detector.synthetic.mode must be none or random (got: %s)", c.Detector.Synthetic.Mode)
	}

	if c.Detector.Synthetic.MaxPerFrame < 0 {
		return errors.New("detector.synthetic.max_per_frame must be >= 0")
	}

	if !isValidLogLevel(c.Log.Level) {
		return fmt.Errorf("log.level must be debug, info, warn, or error (got: %s)", c.Log.Level)
	}

	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over config file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CAMFLOW_DB_URL"); v != "" {
		c.Storage.DatabaseURL = v
	}
	if v := os.Getenv("CAMFLOW_LOG_LEVEL"); v != "" {
		if isValidLogLevel(v) {
			c.Log.Level = v
		}
	}
	if v := os.Getenv("CAMFLOW_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.Log.Level = "debug"
		}
	}
	if v := os.Getenv("CAMFLOW_WS_URL"); v != "" {
		c.Live.WebsocketURL = v
	}
	if v := os.Getenv("CAMFLOW_REDIS_ADDR"); v != "" {
		c.Live.RedisAddr = v
	}
}

// SlogLevel maps the configured log level onto a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
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

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidDetectorBackend(backend string) bool {
	switch backend {
	case "synthetic", "recording":
		return true
	default:
		return false
	}
}

func isValidSyntheticMode(mode string) bool {
	switch mode {
	case "none", "random":
		return true
	default:
		return false
	}
}
