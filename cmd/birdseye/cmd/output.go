package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/birdseye/internal/frames"
	"github.com/MeKo-Tech/birdseye/internal/pipeline"
)

const (
	outputFormatText = "text"
	outputFormatJSON = "json"
	outputFormatYAML = "yaml"
	outputFormatCSV  = "csv"
)

// formatFrames renders per-frame results in the requested format.
func formatFrames(results []*pipeline.FrameResult, format string) (string, error) {
	switch format {
	case outputFormatJSON:
		return pipeline.ToJSON(results)
	case outputFormatYAML:
		return pipeline.ToYAML(results)
	case outputFormatCSV:
		return pipeline.ToCSV(results)
	case outputFormatText, "":
		return pipeline.ToText(results)
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

// formatSequences renders sequence results in the requested format. CSV is
// flat: one row per frame, tagged with the session id.
func formatSequences(results []*pipeline.SequenceResult, format string) (string, error) {
	switch format {
	case outputFormatJSON:
		return pipeline.ToJSON(results)
	case outputFormatYAML:
		return pipeline.ToYAML(results)
	case outputFormatCSV:
		return pipeline.ToCSV(pipeline.SequenceFrames(results))
	case outputFormatText, "":
		return pipeline.ToTextSequences(results)
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

// writeOutput writes content to file, or to the command's stdout when file
// is empty.
func writeOutput(cmd *cobra.Command, content, file string) error {
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if file == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), content)
		return err
	}
	if dir := filepath.Dir(file); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// warpPath returns where the rectified image of a frame is stored.
func warpPath(dir, framePath string) string {
	base := strings.TrimSuffix(filepath.Base(framePath), filepath.Ext(framePath))
	return filepath.Join(dir, base+"_birdseye.png")
}

// saveWarped stores the rectified image of every result that has one and
// returns the number of files written.
func saveWarped(dir string, results []*pipeline.FrameResult) (int, error) {
	n := 0
	for _, r := range results {
		if r == nil || r.Warped == nil {
			continue
		}
		if err := frames.Save(r.Warped, warpPath(dir, r.Name)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
