package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/birdseye/internal/config"
	"github.com/MeKo-Tech/birdseye/internal/version"
)

// flagKeys maps command-line flags to configuration keys. A flag name means
// the same key in every command that declares it.
var flagKeys = map[string]string{
	"log-level":  "log_level",
	"log-format": "log_format",
	"verbose":    "verbose",
	"backend":    "pipeline.backend",

	"max-width":          "pipeline.max_width",
	"crop-margin":        "pipeline.rectify.crop_margin",
	"canny-low":          "pipeline.edge.canny_low",
	"canny-high":         "pipeline.edge.canny_high",
	"reset-after-misses": "pipeline.reset_after_misses",
	"reuse-last":         "pipeline.reuse_last_transform",

	"format":   "output.format",
	"output":   "output.file",
	"warp-dir": "output.warp_dir",

	"workers":           "track.workers",
	"continue-on-error": "track.continue_on_error",
	"recursive":         "track.recursive",
	"include":           "track.include",
	"exclude":           "track.exclude",

	"host":             "server.host",
	"port":             "server.port",
	"cors-origin":      "server.cors_origin",
	"max-upload-size":  "server.max_upload_mb",
	"timeout":          "server.timeout_sec",
	"shutdown-timeout": "server.shutdown_timeout",
	"session-ttl":      "server.session_ttl_sec",
	"max-sessions":     "server.max_sessions",
}

// app carries the state shared by one command tree.
type app struct {
	v       *viper.Viper
	cfgFile string
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree with its own configuration state.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "birdseye",
		Short: "Lane detection and bird's-eye rectification for road footage",
		Long: `Locate the two boundary lines of a road lane in camera frames and derive the
perspective transform that makes the lane appear as two parallel vertical lines
(bird's-eye rectification).

This tool provides:
- Lane boundary selection with frame-to-frame stability tracking
- Perspective transform estimation and optional rectified output images
- Parallel processing of frame sequences, one tracking session per camera
- An HTTP and WebSocket server with per-client tracking sessions

Examples:
  birdseye frame road.png
  birdseye track recordings/cam0 recordings/cam1 --workers 2 --format csv
  birdseye serve --port 8080`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.bindFlags(cmd); err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg))
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is search in ., $HOME, $HOME/.config/birdseye, /etc/birdseye)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "json", "log format (json, text)")
	pf.String("backend", "go", "image processing backend (go, opencv)")

	rootCmd.AddCommand(
		newFrameCommand(a),
		newTrackCommand(a),
		newServeCommand(a),
		newConfigCommand(a),
	)
	return rootCmd
}

// bindFlags binds the flags of the executing command to their config keys.
func (a *app) bindFlags(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := a.v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("bind flag --%s: %w", f.Name, err)
		}
	})
	return bindErr
}

func (a *app) loader() *config.Loader {
	return config.NewLoaderWithViper(a.v)
}

// loadConfig resolves flags, environment, config file and defaults.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := a.loader().LoadWithFile(a.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the slog logger for the configured level and format.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.LogFormat == "text" {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
