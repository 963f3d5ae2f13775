//go:build !withcv

package opencv

import (
	"context"
	"image"

	"github.com/MeKo-Tech/birdseye/internal/geometry"
	"github.com/MeKo-Tech/birdseye/internal/rectify"
)

// Available reports whether the OpenCV backend is linked in.
func Available() bool { return false }

// SegmentSource is unavailable without the withcv build tag.
type SegmentSource struct{}

// NewSegmentSource returns ErrUnavailable.
func NewSegmentSource(Params) (*SegmentSource, error) { return nil, ErrUnavailable }

// Segments returns ErrUnavailable.
func (*SegmentSource) Segments(context.Context, image.Image) ([]geometry.Segment, error) {
	return nil, ErrUnavailable
}

// NewSolver returns ErrUnavailable.
func NewSolver() (rectify.Solver, error) { return nil, ErrUnavailable }
