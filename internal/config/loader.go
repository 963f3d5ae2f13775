package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "birdseye"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "BIRDSEYE"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance, which is where
// the CLI binds its flags.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on a caller-owned viper instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads the configuration from the search paths, environment variables
// and defaults, and validates it.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithoutValidation is like Load but skips validation.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("", false)
}

// LoadWithFile loads configuration from a specific file path. An empty path
// falls back to the search paths.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation is like LoadWithFile but skips validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// no config file: defaults and env vars only
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Verbose {
		config.LogLevel = "debug"
	}

	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &config, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) any {
	return l.v.Get(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables maps BIRDSEYE_PIPELINE_MAX_WIDTH to pipeline.max_width.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options. Every key
// needs a default so AutomaticEnv can resolve it during Unmarshal.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("log_format", d.LogFormat)
	l.v.SetDefault("verbose", d.Verbose)

	p := d.Pipeline
	l.v.SetDefault("pipeline.backend", p.Backend)
	l.v.SetDefault("pipeline.max_width", p.MaxWidth)
	l.v.SetDefault("pipeline.reset_after_misses", p.ResetAfterMisses)
	l.v.SetDefault("pipeline.reuse_last_transform", p.ReuseLastTransform)

	l.v.SetDefault("pipeline.edge.canny_low", p.Edge.CannyLow)
	l.v.SetDefault("pipeline.edge.canny_high", p.Edge.CannyHigh)
	l.v.SetDefault("pipeline.edge.aperture", p.Edge.Aperture)
	l.v.SetDefault("pipeline.edge.erode_kernel", p.Edge.ErodeKernel)
	l.v.SetDefault("pipeline.edge.erode_iterations", p.Edge.ErodeIterations)

	l.v.SetDefault("pipeline.hough.rho", p.Hough.Rho)
	l.v.SetDefault("pipeline.hough.theta", p.Hough.Theta)
	l.v.SetDefault("pipeline.hough.threshold", p.Hough.Threshold)
	l.v.SetDefault("pipeline.hough.min_line_length", p.Hough.MinLineLength)
	l.v.SetDefault("pipeline.hough.max_line_gap", p.Hough.MaxLineGap)
	l.v.SetDefault("pipeline.hough.max_lines", p.Hough.MaxLines)
	l.v.SetDefault("pipeline.hough.seed", p.Hough.Seed)

	l.v.SetDefault("pipeline.lane.center_margin", p.Lane.CenterMargin)
	l.v.SetDefault("pipeline.lane.orientation_tolerance", p.Lane.OrientationTolerance)
	l.v.SetDefault("pipeline.lane.min_left_length", p.Lane.MinLeftLength)
	l.v.SetDefault("pipeline.lane.max_parallelism", p.Lane.MaxParallelism)
	l.v.SetDefault("pipeline.lane.left_stability.max_length_delta_sq", p.Lane.LeftStability.MaxLengthDeltaSq)
	l.v.SetDefault("pipeline.lane.left_stability.max_angle_delta", p.Lane.LeftStability.MaxAngleDelta)
	l.v.SetDefault("pipeline.lane.right_stability.max_length_delta_sq", p.Lane.RightStability.MaxLengthDeltaSq)
	l.v.SetDefault("pipeline.lane.right_stability.max_angle_delta", p.Lane.RightStability.MaxAngleDelta)

	l.v.SetDefault("pipeline.rectify.crop_margin", p.Rectify.CropMargin)
	l.v.SetDefault("pipeline.rectify.warp", p.Rectify.Warp)
	l.v.SetDefault("pipeline.rectify.output_width", p.Rectify.OutputWidth)
	l.v.SetDefault("pipeline.rectify.output_height", p.Rectify.OutputHeight)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.file", d.Output.File)
	l.v.SetDefault("output.warp_dir", d.Output.WarpDir)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.session_ttl_sec", d.Server.SessionTTLSec)
	l.v.SetDefault("server.max_sessions", d.Server.MaxSessions)

	l.v.SetDefault("track.workers", d.Track.Workers)
	l.v.SetDefault("track.continue_on_error", d.Track.ContinueOnError)
	l.v.SetDefault("track.recursive", d.Track.Recursive)
	l.v.SetDefault("track.include", d.Track.Include)
	l.v.SetDefault("track.exclude", d.Track.Exclude)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]any {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes a configuration file holding every default.
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()
	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
		if _, ok := os.LookupEnv("XDG_CONFIG_HOME"); !ok {
			paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
		}
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	}

	return append(paths, filepath.Join("/etc", ConfigFileName))
}
