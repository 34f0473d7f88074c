package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yegors/tracon-sim/internal/conflict"
	"github.com/yegors/tracon-sim/internal/procedure"
	"github.com/yegors/tracon-sim/internal/scoring"
	"github.com/yegors/tracon-sim/internal/simulation"
	"github.com/yegors/tracon-sim/internal/weather"
	"github.com/yegors/tracon-sim/pkg/logger"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server     ServerConfig     `toml:"server"`     // HTTP server settings
	Logging    LoggingConfig    `toml:"logging"`    // Application logging settings
	Storage    StorageConfig    `toml:"storage"`    // Session history database
	Data       DataConfig       `toml:"data"`       // Reference data and scenario files
	Simulation SimulationConfig `toml:"simulation"` // Tick loop settings
	Separation SeparationConfig `toml:"separation"` // Separation minima and look-ahead
	MSAW       MSAWConfig       `toml:"msaw"`       // Minimum safe altitude warning
	Runway     RunwayConfig     `toml:"runway"`     // Runway protection zone
	Scoring    scoring.Weights  `toml:"scoring"`    // Score weighting
	Recording  RecordingConfig  `toml:"recording"`  // Session recorder
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // HTTP port for the API and WebSocket
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	StaticFilesDir   string `toml:"static_files_dir"`      // Directory to serve the scope UI from; empty disables it
	SnapshotEvery    int    `toml:"ws_snapshot_every"`     // Ticks between snapshots broadcast over WebSocket
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`        // Log level: "debug", "info", "warn", or "error"
	Format     string `toml:"format"`       // Log format: "json" (structured) or "console" (human-readable)
	File       string `toml:"file"`         // Optional rotating log file
	MaxSizeMB  int    `toml:"max_size_mb"`  // Rotate the log file at this size
	MaxBackups int    `toml:"max_backups"`  // Rotated files to keep
	MaxAgeDays int    `toml:"max_age_days"` // Days to keep rotated files
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	Enabled    bool   `toml:"enabled"`     // Persist sessions, alerts, commands and scores
	SQLitePath string `toml:"sqlite_path"` // Database file, created if missing
}

// DataConfig locates the reference data
type DataConfig struct {
	AirportPath     string          `toml:"airport"`     // Airport, procedures and airspace (YAML)
	PerformancePath string          `toml:"performance"` // Aircraft performance table (YAML)
	ScenarioPath    string          `toml:"scenario"`    // Optional spawn timetable (YAML)
	Wind            []weather.Layer `toml:"wind"`        // Wind profile; empty is calm
}

// SimulationConfig controls the tick loop
type SimulationConfig struct {
	TickIntervalMS     int     `toml:"tick_interval_ms"`        // Wall-clock time between ticks
	TimeScale          float64 `toml:"time_scale"`              // Simulated seconds per wall-clock second
	MaxTimeScale       float64 `toml:"max_time_scale"`          // Upper bound for time-scale changes
	MaxStepSeconds     float64 `toml:"max_step_seconds"`        // Longest single integration step
	MaxAircraft        int     `toml:"max_aircraft"`            // Arena capacity
	SinkBuffer         int     `toml:"sink_buffer"`             // Frames queued for sinks before dropping
	CommandTimeoutSecs int     `toml:"command_timeout_seconds"` // How long a command waits for its tick
}

// SeparationConfig holds the separation standards
type SeparationConfig struct {
	LookAheadSeconds float64    `toml:"look_ahead_seconds"` // Predictive conflict window
	VerticalFt       float64    `toml:"vertical_ft"`        // Vertical minimum below high_altitude_ft
	VerticalHighFt   float64    `toml:"vertical_high_ft"`   // Vertical minimum at and above high_altitude_ft
	HighAltitudeFt   float64    `toml:"high_altitude_ft"`   // Where the larger vertical minimum starts
	LateralNM        [4]float64 `toml:"lateral_nm"`         // Lateral minimum by leader wake: L, M, H, J
	ExitWarningNM    float64    `toml:"exit_warning_nm"`    // Distance to the boundary that triggers an exit caution
	ExitWarningFt    float64    `toml:"exit_warning_ft"`    // Distance below the ceiling that triggers an exit caution
}

// MSAWConfig controls terrain checks
type MSAWConfig struct {
	CacheSize          int     `toml:"cache_size"`           // MSA lookups kept in memory
	QuantumNM          float64 `toml:"quantum_nm"`           // Grid the cache is keyed on
	DepartureInhibitNM float64 `toml:"departure_inhibit_nm"` // Climbing departures this close to the field are not checked
}

// RunwayConfig is the protected zone around each runway
type RunwayConfig struct {
	ExtensionNM  float64 `toml:"extension_nm"`   // Extension beyond each threshold
	HalfWidthNM  float64 `toml:"half_width_nm"`  // Half width of the zone
	CeilingAGLFt float64 `toml:"ceiling_agl_ft"` // Height above the field the zone extends to
}

// RecordingConfig controls the session recorder
type RecordingConfig struct {
	Enabled       bool   `toml:"enabled"`        // Record frames to disk
	Dir           string `toml:"dir"`            // Directory for recordings
	SnapshotEvery int    `toml:"snapshot_every"` // Ticks between recorded snapshots
	Level         string `toml:"level"`          // zstd level: fastest, default, better, best
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	md, err := toml.DecodeFile(path, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate fills defaults and rejects impossible settings
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.SnapshotEvery <= 0 {
		c.Server.SnapshotEvery = 1
	}
	if c.Server.StaticFilesDir != "" {
		if _, err := os.Stat(c.Server.StaticFilesDir); os.IsNotExist(err) {
			return fmt.Errorf("static files directory does not exist: %s", c.Server.StaticFilesDir)
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	if c.Logging.File != "" {
		if c.Logging.MaxSizeMB <= 0 {
			c.Logging.MaxSizeMB = 50
		}
		if c.Logging.MaxBackups <= 0 {
			c.Logging.MaxBackups = 5
		}
		if c.Logging.MaxAgeDays <= 0 {
			c.Logging.MaxAgeDays = 14
		}
	}

	if c.Storage.Enabled && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/sessions.db"
	}

	if c.Data.AirportPath == "" {
		return fmt.Errorf("invalid data config: airport is required")
	}
	if c.Data.PerformancePath == "" {
		return fmt.Errorf("invalid data config: performance is required")
	}
	for _, p := range []string{c.Data.AirportPath, c.Data.PerformancePath, c.Data.ScenarioPath} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("invalid data config: %w", err)
		}
	}

	if c.Simulation.TickIntervalMS < 0 {
		return fmt.Errorf("invalid tick interval: %d ms", c.Simulation.TickIntervalMS)
	}
	if c.Simulation.CommandTimeoutSecs < 0 {
		return fmt.Errorf("invalid command timeout: %d s", c.Simulation.CommandTimeoutSecs)
	}

	if c.Recording.Enabled {
		if c.Recording.Dir == "" {
			c.Recording.Dir = "recordings"
		}
		if c.Recording.SnapshotEvery <= 0 {
			c.Recording.SnapshotEvery = 1
		}
	}

	if _, err := c.Wind(); err != nil {
		return fmt.Errorf("invalid data config: %w", err)
	}

	// The engine settings carry their own defaults and bounds.
	engine := c.Engine()
	if err := engine.Validate(); err != nil {
		return fmt.Errorf("invalid simulation config: %w", err)
	}
	return nil
}

// Engine converts the simulation, separation, msaw, runway and scoring
// sections into the engine configuration. Zero values take the engine defaults.
func (c *Config) Engine() simulation.Config {
	return simulation.Config{
		TickInterval:   time.Duration(c.Simulation.TickIntervalMS) * time.Millisecond,
		TimeScale:      c.Simulation.TimeScale,
		MaxTimeScale:   c.Simulation.MaxTimeScale,
		MaxStepSeconds: c.Simulation.MaxStepSeconds,
		MaxAircraft:    c.Simulation.MaxAircraft,
		SinkBuffer:     c.Simulation.SinkBuffer,
		CommandTimeout: time.Duration(c.Simulation.CommandTimeoutSecs) * time.Second,
		Separation: conflict.Config{
			LookAheadSeconds:   c.Separation.LookAheadSeconds,
			VerticalFt:         c.Separation.VerticalFt,
			VerticalHighFt:     c.Separation.VerticalHighFt,
			HighAltitudeFt:     c.Separation.HighAltitudeFt,
			LateralNM:          c.Separation.LateralNM,
			MSACacheSize:       c.MSAW.CacheSize,
			MSAQuantumNM:       c.MSAW.QuantumNM,
			DepartureInhibitNM: c.MSAW.DepartureInhibitNM,
			RunwayZone: procedure.RunwayZone{
				ExtensionNM:  c.Runway.ExtensionNM,
				HalfWidthNM:  c.Runway.HalfWidthNM,
				CeilingAGLFt: c.Runway.CeilingAGLFt,
			},
			ExitWarningNM: c.Separation.ExitWarningNM,
			ExitWarningFt: c.Separation.ExitWarningFt,
		},
		Weights: c.Scoring,
	}
}

// Wind builds the wind profile. No layers means calm air.
func (c *Config) Wind() (*weather.Layers, error) {
	if len(c.Data.Wind) == 0 {
		return weather.Calm(), nil
	}
	return weather.NewLayers(c.Data.Wind)
}

// Logger returns the logger configuration
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}
