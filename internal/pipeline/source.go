package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/birdseye/internal/edge"
	"github.com/MeKo-Tech/birdseye/internal/geometry"
	"github.com/MeKo-Tech/birdseye/internal/hough"
)

// SegmentSource extracts candidate line segments from a frame.
type SegmentSource interface {
	Segments(ctx context.Context, img image.Image) ([]geometry.Segment, error)
}

// SegmentSourceFunc adapts a function to SegmentSource.
type SegmentSourceFunc func(ctx context.Context, img image.Image) ([]geometry.Segment, error)

// Segments calls f.
func (f SegmentSourceFunc) Segments(ctx context.Context, img image.Image) ([]geometry.Segment, error) {
	return f(ctx, img)
}

// EdgeSource is the pure Go segment extractor: grayscale, erosion, Canny
// and the probabilistic Hough transform.
type EdgeSource struct {
	edge  EdgeConfig
	hough hough.Config
}

// NewEdgeSource creates an EdgeSource.
func NewEdgeSource(e EdgeConfig, h hough.Config) *EdgeSource {
	return &EdgeSource{edge: e, hough: h}
}

// Segments implements SegmentSource.
func (s *EdgeSource) Segments(ctx context.Context, img image.Image) ([]geometry.Segment, error) {
	gray := edge.FromImage(img)
	defer gray.Release()

	eroded := edge.Erode(gray, s.edge.ErodeKernel, s.edge.ErodeIterations)
	defer eroded.Release()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	edges, err := edge.Canny(eroded, s.edge.CannyLow, s.edge.CannyHigh, s.edge.Aperture)
	if err != nil {
		return nil, fmt.Errorf("edge detection: %w", err)
	}
	defer edges.Release()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := hough.Detect(edges, s.hough)
	if err != nil {
		return nil, fmt.Errorf("line detection: %w", err)
	}
	slog.Debug("Extracted segments", "edge_pixels", edges.Count(), "segments", len(raw))
	return geometry.FromIntsSlice(raw), nil
}
