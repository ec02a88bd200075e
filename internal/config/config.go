// Package config loads the pipeline's startup constants. Values are fixed at
// process start and never reloaded; a JSON file supplies overrides on top of
// the built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/deskew/internal/deskew"
	"github.com/banshee-data/deskew/internal/geom"
)

// Config holds the resolved startup constants.
type Config struct {
	// ExtrinsicMatrix is the 4x4 row-major rigid transform from the ranging
	// sensor frame to the inertial/body frame.
	ExtrinsicMatrix [16]float64

	GravityWorld [3]float64 // m/s², world frame
	GyroBias     [3]float64 // rad/s
	AccelBias    [3]float64 // m/s²

	ReadinessMarginSeconds float64
	MinInertialSamples     int
	InitialSkipSweeps      int
	PollInterval           time.Duration
	Workers                int // 0 sizes to available cores
	PairQueueCapacity      int

	WorldFrameID    string
	DeskewedFrameID string

	RunLogPath string // SQLite file for per-sweep reports; empty disables
}

// Default returns the built-in constants. The calibration values come from
// the sensor rig this pipeline was tuned on.
func Default() Config {
	return Config{
		ExtrinsicMatrix: [16]float64{
			-1, 0, 0, -0.006253,
			0, -1, 0, 0.011775,
			0, 0, 1, 0.028535,
			0, 0, 0, 1,
		},
		GravityWorld:           [3]float64{9.82, 0, 0},
		GyroBias:               [3]float64{-0.022, -0.033, 0.004},
		AccelBias:              [3]float64{0.0, 0, 0.1},
		ReadinessMarginSeconds: deskew.DefaultReadinessMargin,
		MinInertialSamples:     deskew.DefaultMinInertialSamples,
		InitialSkipSweeps:      deskew.DefaultInitialSkip,
		PollInterval:           deskew.DefaultPollInterval,
		PairQueueCapacity:      deskew.DefaultPairQueueCapacity,
		WorldFrameID:           "world",
		DeskewedFrameID:        "world_shifted",
		RunLogPath:             "deskew_runs.db",
	}
}

// fileConfig is the JSON overlay schema. All fields are optional; absent
// fields keep their defaults.
type fileConfig struct {
	ExtrinsicMatrix *[16]float64 `json:"extrinsic_matrix,omitempty"`
	GravityWorld    *[3]float64  `json:"gravity_world,omitempty"`
	GyroBias        *[3]float64  `json:"gyro_bias,omitempty"`
	AccelBias       *[3]float64  `json:"accel_bias,omitempty"`

	ReadinessMarginSeconds *float64 `json:"readiness_margin_seconds,omitempty"`
	MinInertialSamples     *int     `json:"min_inertial_samples,omitempty"`
	InitialSkipSweeps      *int     `json:"initial_skip_sweeps,omitempty"`
	PollInterval           *string  `json:"poll_interval,omitempty"` // duration string like "50ms"
	Workers                *int     `json:"workers,omitempty"`
	PairQueueCapacity      *int     `json:"pair_queue_capacity,omitempty"`

	WorldFrameID    *string `json:"world_frame_id,omitempty"`
	DeskewedFrameID *string `json:"deskewed_frame_id,omitempty"`

	RunLogPath *string `json:"runlog_path,omitempty"`
}

// Load reads the JSON overlay at path and applies it over the defaults. An
// empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	var overlay fileConfig
	if err := json.Unmarshal(data, &overlay); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if overlay.ExtrinsicMatrix != nil {
		cfg.ExtrinsicMatrix = *overlay.ExtrinsicMatrix
	}
	if overlay.GravityWorld != nil {
		cfg.GravityWorld = *overlay.GravityWorld
	}
	if overlay.GyroBias != nil {
		cfg.GyroBias = *overlay.GyroBias
	}
	if overlay.AccelBias != nil {
		cfg.AccelBias = *overlay.AccelBias
	}
	if overlay.ReadinessMarginSeconds != nil {
		cfg.ReadinessMarginSeconds = *overlay.ReadinessMarginSeconds
	}
	if overlay.MinInertialSamples != nil {
		cfg.MinInertialSamples = *overlay.MinInertialSamples
	}
	if overlay.InitialSkipSweeps != nil {
		cfg.InitialSkipSweeps = *overlay.InitialSkipSweeps
	}
	if overlay.PollInterval != nil {
		d, err := time.ParseDuration(*overlay.PollInterval)
		if err != nil {
			return cfg, fmt.Errorf("parsing poll_interval %q: %w", *overlay.PollInterval, err)
		}
		cfg.PollInterval = d
	}
	if overlay.Workers != nil {
		cfg.Workers = *overlay.Workers
	}
	if overlay.PairQueueCapacity != nil {
		cfg.PairQueueCapacity = *overlay.PairQueueCapacity
	}
	if overlay.WorldFrameID != nil {
		cfg.WorldFrameID = *overlay.WorldFrameID
	}
	if overlay.DeskewedFrameID != nil {
		cfg.DeskewedFrameID = *overlay.DeskewedFrameID
	}
	if overlay.RunLogPath != nil {
		cfg.RunLogPath = *overlay.RunLogPath
	}

	return cfg, nil
}

// Extrinsic validates and converts the configured matrix. A malformed
// extrinsic is the one unrecoverable configuration error: the caller should
// refuse to start.
func (c Config) Extrinsic() (geom.Rigid, error) {
	tf, err := geom.RigidFromMatrix(c.ExtrinsicMatrix)
	if err != nil {
		return geom.Rigid{}, fmt.Errorf("extrinsic transform: %w", err)
	}
	return tf, nil
}

// PipelineConfig assembles the deskew.PipelineConfig for this configuration.
// Publisher and Reporter are wired by the caller.
func (c Config) PipelineConfig() (deskew.PipelineConfig, error) {
	extrinsic, err := c.Extrinsic()
	if err != nil {
		return deskew.PipelineConfig{}, err
	}
	return deskew.PipelineConfig{
		Extrinsic:          extrinsic,
		Gravity:            r3.Vec{X: c.GravityWorld[0], Y: c.GravityWorld[1], Z: c.GravityWorld[2]},
		GyroBias:           r3.Vec{X: c.GyroBias[0], Y: c.GyroBias[1], Z: c.GyroBias[2]},
		AccelBias:          r3.Vec{X: c.AccelBias[0], Y: c.AccelBias[1], Z: c.AccelBias[2]},
		ReadinessMargin:    c.ReadinessMarginSeconds,
		MinInertialSamples: c.MinInertialSamples,
		InitialSkip:        c.InitialSkipSweeps,
		PollInterval:       c.PollInterval,
		Workers:            c.Workers,
		QueueCapacity:      c.PairQueueCapacity,
		WorldFrameID:       c.WorldFrameID,
		DeskewedFrameID:    c.DeskewedFrameID,
	}, nil
}
