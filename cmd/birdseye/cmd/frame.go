package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/birdseye/internal/frames"
	"github.com/MeKo-Tech/birdseye/internal/pipeline"
)

func newFrameCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "frame [files...]",
		Short: "Select lane lines and compute the bird's-eye transform of single frames",
		Long: `Process one or more independent image files. Every file is handled by a
fresh tracking session, so no state is carried from one file to the next.

Supported formats: JPEG, PNG, BMP

Examples:
  birdseye frame road.png
  birdseye frame shots/*.jpg --format json
  birdseye frame road.png --warp-dir out/`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("no input files provided")
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			warpDir := cfg.Output.WarpDir
			pl, err := pipeline.NewBuilder().WithConfig(cfg.ToPipelineConfig()).Build()
			if err != nil {
				return fmt.Errorf("failed to build pipeline: %w", err)
			}
			defer func() { _ = pl.Close() }()

			results := make([]*pipeline.FrameResult, 0, len(args))
			for _, path := range args {
				if !frames.IsSupported(path) {
					return fmt.Errorf("unsupported file type: %s", path)
				}
				img, _, err := frames.Load(path)
				if err != nil {
					return err
				}

				res, err := pl.NewSession(path).ProcessFrame(cmd.Context(), pipeline.Frame{
					Name:  path,
					Image: img,
					Warp:  warpDir != "",
				})
				if err != nil {
					return fmt.Errorf("failed to process %s: %w", path, err)
				}
				slog.Debug("Processed frame", "file", path, "status", res.Status, "segments", res.Segments)
				results = append(results, res)
			}

			if warpDir != "" {
				n, err := saveWarped(warpDir, results)
				if err != nil {
					return fmt.Errorf("failed to save rectified images: %w", err)
				}
				slog.Info("Saved rectified images", "dir", warpDir, "count", n)
			}

			content, err := formatFrames(results, cfg.Output.Format)
			if err != nil {
				return err
			}
			return writeOutput(cmd, content, cfg.Output.File)
		},
	}

	f := cmd.Flags()
	f.StringP("format", "f", outputFormatText, "output format (text, json, yaml, csv)")
	f.StringP("output", "o", "", "output file path (default: stdout)")
	f.String("warp-dir", "", "directory to save rectified bird's-eye images")
	addPipelineFlags(cmd)
	return cmd
}

// addPipelineFlags registers the lane detection flags shared by frame,
// track and serve.
func addPipelineFlags(cmd *cobra.Command) {
	d := pipeline.DefaultConfig()
	f := cmd.Flags()
	f.Int("max-width", d.MaxWidth, "downscale frames wider than this before processing (0 = off)")
	f.Float64("crop-margin", d.Rectify.CropMargin, "far-field row (pixels from the top) where the lane lines are anchored")
	f.Float64("canny-low", d.Edge.CannyLow, "Canny low hysteresis threshold")
	f.Float64("canny-high", d.Edge.CannyHigh, "Canny high hysteresis threshold")
}
