//nolint:lll
package config

import (
	"github.com/MeKo-Tech/birdseye/internal/hough"
	"github.com/MeKo-Tech/birdseye/internal/lane"
)

// Config represents the complete configuration for the birdseye tool.
// It covers every command (frame, track, serve) and is loaded from
// configuration files, environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" json:"log_format"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output" json:"output"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
	Track    TrackConfig    `mapstructure:"track" yaml:"track" json:"track"`
}

// PipelineConfig contains lane detection and rectification settings.
type PipelineConfig struct {
	Backend            string `mapstructure:"backend" yaml:"backend" json:"backend"`
	MaxWidth           int    `mapstructure:"max_width" yaml:"max_width" json:"max_width"`
	ResetAfterMisses   int    `mapstructure:"reset_after_misses" yaml:"reset_after_misses" json:"reset_after_misses"`
	ReuseLastTransform bool   `mapstructure:"reuse_last_transform" yaml:"reuse_last_transform" json:"reuse_last_transform"`

	Edge    EdgeConfig    `mapstructure:"edge" yaml:"edge" json:"edge"`
	Hough   hough.Config  `mapstructure:"hough" yaml:"hough" json:"hough"`
	Lane    lane.Config   `mapstructure:"lane" yaml:"lane" json:"lane"`
	Rectify RectifyConfig `mapstructure:"rectify" yaml:"rectify" json:"rectify"`
}

// EdgeConfig contains erosion and Canny settings.
type EdgeConfig struct {
	CannyLow        float64 `mapstructure:"canny_low" yaml:"canny_low" json:"canny_low"`
	CannyHigh       float64 `mapstructure:"canny_high" yaml:"canny_high" json:"canny_high"`
	Aperture        int     `mapstructure:"aperture" yaml:"aperture" json:"aperture"`
	ErodeKernel     int     `mapstructure:"erode_kernel" yaml:"erode_kernel" json:"erode_kernel"`
	ErodeIterations int     `mapstructure:"erode_iterations" yaml:"erode_iterations" json:"erode_iterations"`
}

// RectifyConfig contains control point and warp settings.
type RectifyConfig struct {
	CropMargin   float64 `mapstructure:"crop_margin" yaml:"crop_margin" json:"crop_margin"`
	Warp         bool    `mapstructure:"warp" yaml:"warp" json:"warp"`
	OutputWidth  int     `mapstructure:"output_width" yaml:"output_width" json:"output_width"`
	OutputHeight int     `mapstructure:"output_height" yaml:"output_height" json:"output_height"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format  string `mapstructure:"format" yaml:"format" json:"format"`
	File    string `mapstructure:"file" yaml:"file" json:"file"`
	WarpDir string `mapstructure:"warp_dir" yaml:"warp_dir" json:"warp_dir"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	SessionTTLSec   int    `mapstructure:"session_ttl_sec" yaml:"session_ttl_sec" json:"session_ttl_sec"`
	MaxSessions     int    `mapstructure:"max_sessions" yaml:"max_sessions" json:"max_sessions"`
}

// TrackConfig contains settings for processing frame sequences.
type TrackConfig struct {
	Workers         int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	ContinueOnError bool     `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	Recursive       bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include         []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude         []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
}
