package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the reconstruction tuning parameters. All fields are
// pointers so a partial JSON file only overrides what it names; the Get*
// accessors fall back to the compiled defaults for anything left nil.
type TuningConfig struct {
	// Clustering params
	DBSCANEps        *float64 `json:"dbscan_eps,omitempty"`         // neighborhood radius [mm]
	DBSCANMinSamples *int     `json:"dbscan_min_samples,omitempty"` // core point threshold, self included

	// Robust line fit params
	RANSACMinSamples        *int     `json:"ransac_min_samples,omitempty"`        // points per trial, >= 2
	RANSACResidualThreshold *float64 `json:"ransac_residual_threshold,omitempty"` // inlier distance cut [mm]
	RANSACMaxTrials         *int     `json:"ransac_max_trials,omitempty"`         // trial budget per cluster

	// Extraction loop params
	MaxIterations *int   `json:"max_iterations,omitempty"` // rounds per event before giving up
	Seed          *int64 `json:"seed,omitempty"`           // run seed; fixed seed reproduces output exactly

	// Pipeline params
	Workers *int `json:"workers,omitempty"` // concurrent event workers

	// Drift/readout units
	DriftVelocity *float64 `json:"drift_velocity_mm_per_us,omitempty"` // [mm/µs]
	TickDuration  *float64 `json:"tick_duration_us,omitempty"`         // [µs per clock tick]

	// Detector geometry
	TileLayout *string `json:"tile_layout,omitempty"` // path to the YAML tile layout file
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/lidar-style subpackages
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.DBSCANEps != nil && *c.DBSCANEps <= 0 {
		return fmt.Errorf("dbscan_eps must be positive, got %f", *c.DBSCANEps)
	}
	if c.DBSCANMinSamples != nil && *c.DBSCANMinSamples < 1 {
		return fmt.Errorf("dbscan_min_samples must be >= 1, got %d", *c.DBSCANMinSamples)
	}
	if c.RANSACMinSamples != nil && *c.RANSACMinSamples < 2 {
		return fmt.Errorf("ransac_min_samples must be >= 2, got %d", *c.RANSACMinSamples)
	}
	if c.RANSACResidualThreshold != nil && *c.RANSACResidualThreshold <= 0 {
		return fmt.Errorf("ransac_residual_threshold must be positive, got %f", *c.RANSACResidualThreshold)
	}
	if c.RANSACMaxTrials != nil && *c.RANSACMaxTrials < 1 {
		return fmt.Errorf("ransac_max_trials must be >= 1, got %d", *c.RANSACMaxTrials)
	}
	if c.MaxIterations != nil && *c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", *c.MaxIterations)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", *c.Workers)
	}
	if c.DriftVelocity != nil && *c.DriftVelocity <= 0 {
		return fmt.Errorf("drift_velocity_mm_per_us must be positive, got %f", *c.DriftVelocity)
	}
	if c.TickDuration != nil && *c.TickDuration <= 0 {
		return fmt.Errorf("tick_duration_us must be positive, got %f", *c.TickDuration)
	}
	return nil
}

// GetDBSCANEps returns the dbscan_eps value or the default.
func (c *TuningConfig) GetDBSCANEps() float64 {
	if c.DBSCANEps == nil {
		return 25.0 // default [mm]
	}
	return *c.DBSCANEps
}

// GetDBSCANMinSamples returns the dbscan_min_samples value or the default.
func (c *TuningConfig) GetDBSCANMinSamples() int {
	if c.DBSCANMinSamples == nil {
		return 5
	}
	return *c.DBSCANMinSamples
}

// GetRANSACMinSamples returns the ransac_min_samples value or the default.
func (c *TuningConfig) GetRANSACMinSamples() int {
	if c.RANSACMinSamples == nil {
		return 2
	}
	return *c.RANSACMinSamples
}

// GetRANSACResidualThreshold returns the ransac_residual_threshold value or the default.
func (c *TuningConfig) GetRANSACResidualThreshold() float64 {
	if c.RANSACResidualThreshold == nil {
		return 8.0 // default [mm]
	}
	return *c.RANSACResidualThreshold
}

// GetRANSACMaxTrials returns the ransac_max_trials value or the default.
func (c *TuningConfig) GetRANSACMaxTrials() int {
	if c.RANSACMaxTrials == nil {
		return 100
	}
	return *c.RANSACMaxTrials
}

// GetMaxIterations returns the max_iterations value or the default.
func (c *TuningConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 100
	}
	return *c.MaxIterations
}

// GetSeed returns the seed value or the default.
func (c *TuningConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetDriftVelocity returns the drift_velocity_mm_per_us value or the default.
func (c *TuningConfig) GetDriftVelocity() float64 {
	if c.DriftVelocity == nil {
		return 1.648 // LAr drift velocity at 500 V/cm [mm/µs]
	}
	return *c.DriftVelocity
}

// GetTickDuration returns the tick_duration_us value or the default.
func (c *TuningConfig) GetTickDuration() float64 {
	if c.TickDuration == nil {
		return 0.1 // 10 MHz readout clock [µs]
	}
	return *c.TickDuration
}

// GetTileLayout returns the tile_layout path or the default.
func (c *TuningConfig) GetTileLayout() string {
	if c.TileLayout == nil {
		return "config/tile_layout.yaml"
	}
	return *c.TileLayout
}
