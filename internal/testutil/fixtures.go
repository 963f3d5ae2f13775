package testutil

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"testing"
)

// BlankFrame returns a frame of a single colour; it contains no lane.
func BlankFrame(size ImageSize, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// RoadSequence renders n frames of the configured road, drifting the
// markings by drift pixels per frame. Every frame is labelled with its index.
func RoadSequence(cfg RoadConfig, n, drift int) []*image.RGBA {
	frames := make([]*image.RGBA, 0, n)
	for i := range n {
		c := ShiftRoad(cfg, i*drift)
		if cfg.Label != "" {
			c.Label = fmt.Sprintf("%s %03d", cfg.Label, i)
		}
		frames = append(frames, GenerateRoadFrame(c))
	}
	return frames
}

// WriteRoadSequence saves RoadSequence output as frame_<i>.png under dir and
// returns the file paths in order.
func WriteRoadSequence(t *testing.T, dir string, cfg RoadConfig, n, drift int) []string {
	t.Helper()

	paths := make([]string, 0, n)
	for i, img := range RoadSequence(cfg, n, drift) {
		p := filepath.Join(dir, fmt.Sprintf("frame_%d.png", i+1))
		SaveImage(t, img, p)
		paths = append(paths, p)
	}
	return paths
}
