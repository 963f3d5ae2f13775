// Package config loads and validates the birdseye configuration.
package config

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/birdseye/internal/hough"
	"github.com/MeKo-Tech/birdseye/internal/lane"
	"github.com/MeKo-Tech/birdseye/internal/pipeline"
	"github.com/MeKo-Tech/birdseye/internal/rectify"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "text"}
	validFormats    = []string{"text", "json", "yaml", "csv"}
	validBackends   = []string{string(pipeline.BackendGo), string(pipeline.BackendOpenCV)}
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	p := pipeline.DefaultConfig()
	return Config{
		LogLevel:  "info",
		LogFormat: "json",
		Verbose:   false,
		Pipeline: PipelineConfig{
			Backend:            string(p.Backend),
			MaxWidth:           p.MaxWidth,
			ResetAfterMisses:   p.ResetAfterMisses,
			ReuseLastTransform: p.ReuseLastTransform,
			Edge: EdgeConfig{
				CannyLow:        p.Edge.CannyLow,
				CannyHigh:       p.Edge.CannyHigh,
				Aperture:        p.Edge.Aperture,
				ErodeKernel:     p.Edge.ErodeKernel,
				ErodeIterations: p.Edge.ErodeIterations,
			},
			Hough: hough.DefaultConfig(),
			Lane:  lane.DefaultConfig(),
			Rectify: RectifyConfig{
				CropMargin:   p.Rectify.CropMargin,
				Warp:         p.Rectify.Warp,
				OutputWidth:  p.Rectify.OutputWidth,
				OutputHeight: p.Rectify.OutputHeight,
			},
		},
		Output: OutputConfig{
			Format: "text",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     20,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			SessionTTLSec:   600,
			MaxSessions:     64,
		},
		Track: TrackConfig{
			Workers: 4,
		},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.LogFormat != "" && !slices.Contains(validLogFormats, c.LogFormat) {
		return fmt.Errorf("invalid log format: %s (must be one of: %s)", c.LogFormat, strings.Join(validLogFormats, ", "))
	}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}
	if !slices.Contains(validBackends, c.Pipeline.Backend) {
		return fmt.Errorf("invalid backend: %s (must be one of: %s)", c.Pipeline.Backend, strings.Join(validBackends, ", "))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.SessionTTLSec < 0 {
		return fmt.Errorf("invalid session ttl: %d (must be non-negative)", c.Server.SessionTTLSec)
	}
	if c.Server.MaxSessions < 0 {
		return fmt.Errorf("invalid max sessions: %d (must be non-negative)", c.Server.MaxSessions)
	}
	if c.Track.Workers <= 0 {
		return fmt.Errorf("invalid track workers: %d (must be positive)", c.Track.Workers)
	}

	if err := c.ToPipelineConfig().Validate(); err != nil {
		return fmt.Errorf("invalid pipeline settings: %w", err)
	}
	return nil
}

// ToPipelineConfig converts the config to the internal pipeline configuration.
func (c *Config) ToPipelineConfig() pipeline.Config {
	p := c.Pipeline
	return pipeline.Config{
		Backend: pipeline.Backend(p.Backend),
		Edge: pipeline.EdgeConfig{
			CannyLow:        p.Edge.CannyLow,
			CannyHigh:       p.Edge.CannyHigh,
			Aperture:        p.Edge.Aperture,
			ErodeKernel:     p.Edge.ErodeKernel,
			ErodeIterations: p.Edge.ErodeIterations,
		},
		Hough: p.Hough,
		Lane:  p.Lane,
		Rectify: rectify.Config{
			CropMargin:   p.Rectify.CropMargin,
			Warp:         p.Rectify.Warp,
			OutputWidth:  p.Rectify.OutputWidth,
			OutputHeight: p.Rectify.OutputHeight,
		},
		MaxWidth:           p.MaxWidth,
		ResetAfterMisses:   p.ResetAfterMisses,
		ReuseLastTransform: p.ReuseLastTransform,
	}
}

// ToParallelConfig converts the track settings to a worker pool configuration.
func (c *Config) ToParallelConfig() pipeline.ParallelConfig {
	return pipeline.ParallelConfig{
		MaxWorkers:      c.Track.Workers,
		ContinueOnError: c.Track.ContinueOnError,
	}
}

// WriteYAML writes the configuration as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
