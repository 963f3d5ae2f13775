// Package rectify derives the bird's-eye perspective correction for a pair of
// lane boundary lines: the control points, the 3x3 transform they define and
// the image warp through it.
package rectify

import (
	"errors"
	"fmt"
	"math"

	"github.com/MeKo-Tech/birdseye/internal/geometry"
)

// ErrDegenerateGeometry is returned when the lane lines cannot produce a
// usable quadrilateral or the transform solver rejects it.
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// minTriangleArea is the smallest area (px²) of any three control points.
const minTriangleArea = 1e-6

// ControlPoints are the four source and destination points of the
// rectifying perspective transform, in the order far-left, far-right,
// near-left, near-right.
type ControlPoints struct {
	Source [4]geometry.Point `json:"source" yaml:"source"`
	Dest   [4]geometry.Point `json:"dest" yaml:"dest"`
	// Left and Right are the boundary lines extrapolated over the rectified span.
	Left  geometry.Segment `json:"left" yaml:"left"`
	Right geometry.Segment `json:"right" yaml:"right"`
}

// ComputeControlPoints extrapolates both lane lines over y in
// [cropMargin, frameHeight] and builds the control points that keep the far
// anchors fixed while moving each near point directly below its anchor.
// Mapping Source onto Dest makes both boundaries vertical and parallel.
func ComputeControlPoints(left, right geometry.Segment, frameWidth, frameHeight int, cropMargin float64) (ControlPoints, error) {
	if frameWidth <= 0 || frameHeight <= 0 {
		return ControlPoints{}, fmt.Errorf("%w: frame size %dx%d", ErrDegenerateGeometry, frameWidth, frameHeight)
	}
	h := float64(frameHeight)
	if cropMargin < 0 || cropMargin >= h {
		return ControlPoints{}, fmt.Errorf("%w: crop margin %g outside frame height %d", ErrDegenerateGeometry, cropMargin, frameHeight)
	}

	l, err := left.StretchY(cropMargin, h)
	if err != nil {
		return ControlPoints{}, fmt.Errorf("%w: left line: %w", ErrDegenerateGeometry, err)
	}
	r, err := right.StretchY(cropMargin, h)
	if err != nil {
		return ControlPoints{}, fmt.Errorf("%w: right line: %w", ErrDegenerateGeometry, err)
	}
	if math.Abs(l.Begin.X-r.Begin.X) < geometry.VerticalEpsilon {
		return ControlPoints{}, fmt.Errorf("%w: lines meet at the far anchor x=%g", ErrDegenerateGeometry, l.Begin.X)
	}

	cp := ControlPoints{
		Source: [4]geometry.Point{l.Begin, r.Begin, {X: l.End.X, Y: h}, {X: r.End.X, Y: h}},
		Dest:   [4]geometry.Point{l.Begin, r.Begin, {X: l.Begin.X, Y: h}, {X: r.Begin.X, Y: h}},
		Left:   l,
		Right:  r,
	}
	if err := checkQuad(cp.Source); err != nil {
		return ControlPoints{}, fmt.Errorf("source: %w", err)
	}
	if err := checkQuad(cp.Dest); err != nil {
		return ControlPoints{}, fmt.Errorf("dest: %w", err)
	}
	return cp, nil
}

// checkQuad rejects non-finite points and quads with three collinear points.
func checkQuad(q [4]geometry.Point) error {
	for _, p := range q {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			return fmt.Errorf("%w: non-finite point %v", ErrDegenerateGeometry, p)
		}
	}
	for i := range 4 {
		a, b, c := q[(i+1)%4], q[(i+2)%4], q[(i+3)%4]
		if triangleArea(a, b, c) < minTriangleArea {
			return fmt.Errorf("%w: points %v %v %v are collinear", ErrDegenerateGeometry, a, b, c)
		}
	}
	return nil
}

func triangleArea(a, b, c geometry.Point) float64 {
	ab, ac := b.Sub(a), c.Sub(a)
	return math.Abs(ab.X*ac.Y-ab.Y*ac.X) / 2
}
