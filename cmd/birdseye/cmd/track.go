package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/birdseye/internal/frames"
	"github.com/MeKo-Tech/birdseye/internal/pipeline"
)

func newTrackCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track [dirs or files...]",
		Short: "Track the lane through frame sequences",
		Long: `Process ordered frame sequences. Every directory argument is one camera
sequence whose frames are sorted naturally by name; loose files form one
extra sequence. Each sequence keeps its own tracking session so the lane
selected in one frame stabilizes the next, and sequences run in parallel.

Examples:
  birdseye track recordings/cam0
  birdseye track recordings/cam0 recordings/cam1 --workers 2 --format csv
  birdseye track recordings --recursive --include '*.png' --warp-dir out/`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("no input directories or files provided")
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			found, err := frames.DiscoverSequences(args, frames.DiscoverOptions{
				Recursive: cfg.Track.Recursive,
				Include:   cfg.Track.Include,
				Exclude:   cfg.Track.Exclude,
			})
			if err != nil {
				return err
			}
			if len(found) == 0 {
				return errors.New("no supported frames found")
			}

			warpDir := cfg.Output.WarpDir
			seqs := make([]pipeline.Sequence, 0, len(found))
			for _, s := range found {
				seqs = append(seqs, pipeline.Sequence{Name: s.Name, Frames: frameLoaders(s.Paths, warpDir != "")})
			}

			pl, err := pipeline.NewBuilder().WithConfig(cfg.ToPipelineConfig()).Build()
			if err != nil {
				return fmt.Errorf("failed to build pipeline: %w", err)
			}
			defer func() { _ = pl.Close() }()

			pc := cfg.ToParallelConfig()
			if progress, _ := cmd.Flags().GetBool("progress"); progress {
				pc.Progress = pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), "Tracking ")
			}

			results, err := pl.ProcessSequences(cmd.Context(), seqs, pc)
			if err != nil {
				return fmt.Errorf("tracking failed: %w", err)
			}
			for _, r := range results {
				slog.Info("Sequence complete",
					"sequence", r.Name,
					"frames", r.Stats.Frames,
					"rectified", r.Stats.Rectified,
					"resets", r.Stats.Resets)
			}

			if warpDir != "" {
				for _, r := range results {
					if _, err := saveWarped(filepath.Join(warpDir, r.Name), r.Frames); err != nil {
						return fmt.Errorf("failed to save rectified images: %w", err)
					}
				}
			}

			content, err := formatSequences(results, cfg.Output.Format)
			if err != nil {
				return err
			}
			return writeOutput(cmd, content, cfg.Output.File)
		},
	}

	f := cmd.Flags()
	f.StringP("format", "f", outputFormatText, "output format (text, json, yaml, csv)")
	f.StringP("output", "o", "", "output file path (default: stdout)")
	f.String("warp-dir", "", "directory to save rectified images, one subdirectory per sequence")
	f.IntP("workers", "w", 4, "number of sequences processed in parallel")
	f.Bool("continue-on-error", false, "keep processing a sequence after a frame fails to load")
	f.BoolP("recursive", "r", false, "search directories recursively")
	f.StringSlice("include", nil, "glob patterns of frame names to include")
	f.StringSlice("exclude", nil, "glob patterns of frame names to exclude")
	f.Int("reset-after-misses", 0, "forget the tracked lane after this many consecutive misses (0 = never)")
	f.Bool("reuse-last", false, "reuse the last transform for frames without a lane")
	f.Bool("progress", false, "show a progress bar on stderr")
	addPipelineFlags(cmd)
	return cmd
}

// frameLoaders defers decoding so only frames in flight are held in memory.
func frameLoaders(paths []string, warp bool) []pipeline.FrameLoader {
	loaders := make([]pipeline.FrameLoader, 0, len(paths))
	for _, p := range paths {
		loaders = append(loaders, func() (pipeline.Frame, error) {
			img, _, err := frames.Load(p)
			if err != nil {
				return pipeline.Frame{}, err
			}
			return pipeline.Frame{Name: p, Image: img, Warp: warp}, nil
		})
	}
	return loaders
}
