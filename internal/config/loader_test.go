package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func newTestLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// chdir switches to dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

// TestNewLoader tests loader creation.
func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	if loader == nil || loader.GetViper() == nil {
		t.Fatal("NewLoader() returned no viper instance")
	}
	if loader.GetViper() != viper.GetViper() {
		t.Error("NewLoader() should use the global viper instance")
	}
}

// TestLoadWithNoConfigFile tests loading with no config file present.
func TestLoadWithNoConfigFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := newTestLoader().Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected default log level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.Pipeline.Lane != DefaultConfig().Pipeline.Lane {
		t.Errorf("Expected default lane thresholds, got %+v", cfg.Pipeline.Lane)
	}
	if cfg.Pipeline.Hough.Seed != 1 {
		t.Errorf("Expected hough seed 1, got %d", cfg.Pipeline.Hough.Seed)
	}
}

// TestLoadFromSearchPath tests that birdseye.yaml in the working directory is found.
func TestLoadFromSearchPath(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	content := "pipeline:\n  lane:\n    center_margin: 12\n"
	if err := os.WriteFile(filepath.Join(dir, "birdseye.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	loader := newTestLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Pipeline.Lane.CenterMargin != 12 {
		t.Errorf("Expected center margin 12, got %v", cfg.Pipeline.Lane.CenterMargin)
	}
	if cfg.Pipeline.Lane.MinLeftLength != 110 {
		t.Errorf("Unset keys keep defaults, got min_left_length %v", cfg.Pipeline.Lane.MinLeftLength)
	}
	if !strings.HasSuffix(loader.GetConfigFileUsed(), "birdseye.yaml") {
		t.Errorf("Unexpected config file used: %s", loader.GetConfigFileUsed())
	}
}

// TestLoadWithFile tests loading from an explicit YAML file.
func TestLoadWithFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "custom.yaml")
	yamlContent := `
log_level: debug
log_format: text
pipeline:
  backend: go
  max_width: 800
  reset_after_misses: 3
  edge:
    canny_low: 60
    canny_high: 120
  hough:
    threshold: 30
  lane:
    left_stability:
      max_length_delta_sq: 900
  rectify:
    crop_margin: 10
    warp: true
server:
  port: 9000
track:
  workers: 2
  include: ["*.png"]
`
	if err := os.WriteFile(configFile, []byte(yamlContent), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := newTestLoader().LoadWithFile(configFile)
	if err != nil {
		t.Fatalf("LoadWithFile() unexpected error: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Errorf("Unexpected log settings: %s/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Pipeline.MaxWidth != 800 || cfg.Pipeline.ResetAfterMisses != 3 {
		t.Errorf("Unexpected tracking settings: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.Edge.CannyLow != 60 || cfg.Pipeline.Edge.CannyHigh != 120 {
		t.Errorf("Unexpected canny thresholds: %+v", cfg.Pipeline.Edge)
	}
	if cfg.Pipeline.Edge.Aperture != 3 {
		t.Errorf("Expected default aperture 3, got %d", cfg.Pipeline.Edge.Aperture)
	}
	if cfg.Pipeline.Hough.Threshold != 30 {
		t.Errorf("Expected hough threshold 30, got %d", cfg.Pipeline.Hough.Threshold)
	}
	if cfg.Pipeline.Lane.LeftStability.MaxLengthDeltaSq != 900 {
		t.Errorf("Expected left gate 900, got %v", cfg.Pipeline.Lane.LeftStability.MaxLengthDeltaSq)
	}
	if cfg.Pipeline.Lane.LeftStability.MaxAngleDelta != 0.6 {
		t.Errorf("Expected default left angle gate 0.6, got %v", cfg.Pipeline.Lane.LeftStability.MaxAngleDelta)
	}
	if cfg.Pipeline.Rectify.CropMargin != 10 || !cfg.Pipeline.Rectify.Warp {
		t.Errorf("Unexpected rectify settings: %+v", cfg.Pipeline.Rectify)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Track.Workers != 2 || len(cfg.Track.Include) != 1 || cfg.Track.Include[0] != "*.png" {
		t.Errorf("Unexpected track settings: %+v", cfg.Track)
	}
}

// TestLoadWithFileErrors tests missing, malformed and invalid files.
func TestLoadWithFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := newTestLoader().LoadWithFile(filepath.Join(dir, "missing.yaml")); err == nil ||
		!strings.Contains(err.Error(), "does not exist") {
		t.Errorf("Expected missing file error, got %v", err)
	}

	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("server: [port"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := newTestLoader().LoadWithFile(broken); err == nil ||
		!strings.Contains(err.Error(), "error reading config file") {
		t.Errorf("Expected parse error, got %v", err)
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("server:\n  port: -1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := newTestLoader().LoadWithFile(invalid); err == nil ||
		!strings.Contains(err.Error(), "configuration validation failed") {
		t.Errorf("Expected validation error, got %v", err)
	}

	cfg, err := newTestLoader().LoadWithFileWithoutValidation(invalid)
	if err != nil {
		t.Fatalf("LoadWithFileWithoutValidation() unexpected error: %v", err)
	}
	if cfg.Server.Port != -1 {
		t.Errorf("Expected unvalidated port -1, got %d", cfg.Server.Port)
	}
}

// TestLoadWithEnvironment tests BIRDSEYE_ environment overrides.
func TestLoadWithEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BIRDSEYE_LOG_LEVEL", "warn")
	t.Setenv("BIRDSEYE_SERVER_PORT", "7070")
	t.Setenv("BIRDSEYE_PIPELINE_LANE_MAX_PARALLELISM", "0.5")
	t.Setenv("BIRDSEYE_PIPELINE_REUSE_LAST_TRANSFORM", "true")

	cfg, err := newTestLoader().Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("Expected log level warn, got %s", cfg.LogLevel)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Pipeline.Lane.MaxParallelism != 0.5 {
		t.Errorf("Expected max parallelism 0.5, got %v", cfg.Pipeline.Lane.MaxParallelism)
	}
	if !cfg.Pipeline.ReuseLastTransform {
		t.Error("Expected reuse_last_transform from env")
	}
}

// TestVerboseForcesDebug tests that verbose raises the log level.
func TestVerboseForcesDebug(t *testing.T) {
	chdir(t, t.TempDir())
	loader := newTestLoader()
	loader.Set("verbose", true)

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected debug log level with verbose, got %s", cfg.LogLevel)
	}
}

// TestGenerateDefaultConfigFile tests writing a default configuration file.
func TestGenerateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "birdseye.yaml")
	if err := GenerateDefaultConfigFile(path); err != nil {
		t.Fatalf("GenerateDefaultConfigFile() error: %v", err)
	}

	cfg, err := newTestLoader().LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error: %v", err)
	}
	if cfg.Pipeline.Lane != DefaultConfig().Pipeline.Lane {
		t.Errorf("Generated file should hold default lane thresholds, got %+v", cfg.Pipeline.Lane)
	}
	if cfg.Server.SessionTTLSec != 600 {
		t.Errorf("Expected session ttl 600, got %d", cfg.Server.SessionTTLSec)
	}
}

// TestGetConfigSearchPaths tests the configuration search paths.
func TestGetConfigSearchPaths(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	paths := GetConfigSearchPaths()
	if paths[0] != "." {
		t.Errorf("Expected current directory first, got %s", paths[0])
	}
	if paths[len(paths)-1] != "/etc/birdseye" {
		t.Errorf("Expected /etc/birdseye last, got %s", paths[len(paths)-1])
	}
	found := false
	for _, p := range paths {
		if p == filepath.Join(xdg, "birdseye") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected XDG path in %v", paths)
	}
}
