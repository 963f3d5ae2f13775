package geometry

import (
	"errors"
	"fmt"
	"math"
)

// VerticalEpsilon is the smallest coordinate delta treated as non-zero when
// deriving slopes. Below it a segment is considered vertical (for Slope) or
// horizontal (for StretchY).
const VerticalEpsilon = 1e-9

var (
	// ErrHorizontal is returned when a horizontal segment is asked to span a y range.
	ErrHorizontal = errors.New("segment is horizontal")
	// ErrEmptyRange is returned by StretchY for an empty y range.
	ErrEmptyRange = errors.New("empty y range")
)

// Point is a 2D image coordinate (x grows right, y grows down).
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// Segment is a straight line segment between two image points.
//
// Begin and End are interchangeable for orientation checks, but the endpoint
// order reported by the segment extractor carries meaning for lane selection
// and extrapolation targets.
type Segment struct {
	Begin Point `json:"begin" yaml:"begin"`
	End   Point `json:"end" yaml:"end"`
}

// NewSegment builds a segment from raw coordinates.
func NewSegment(x1, y1, x2, y2 float64) Segment {
	return Segment{Begin: Point{X: x1, Y: y1}, End: Point{X: x2, Y: y2}}
}

// FromInts converts an extractor tuple x1, y1, x2, y2 into a Segment.
func FromInts(v [4]int) Segment {
	return NewSegment(float64(v[0]), float64(v[1]), float64(v[2]), float64(v[3]))
}

// FromIntsSlice converts a list of extractor tuples.
func FromIntsSlice(vs [][4]int) []Segment {
	out := make([]Segment, len(vs))
	for i, v := range vs {
		out[i] = FromInts(v)
	}
	return out
}

// IsZero reports whether both endpoints are at the origin.
func (s Segment) IsZero() bool { return s == Segment{} }

// Reversed returns the segment with its endpoints swapped.
func (s Segment) Reversed() Segment { return Segment{Begin: s.End, End: s.Begin} }

// Length returns the Euclidean distance between the endpoints.
func (s Segment) Length() float64 { return s.Begin.Dist(s.End) }

// Direction returns the angle of the vector Begin->End in (-π, π].
func (s Segment) Direction() float64 {
	d := s.End.Sub(s.Begin)
	return math.Atan2(d.Y, d.X)
}

// DirectionFixedHalf returns the orientation of the segment in [0, π).
// A segment and its reversed twin have the same value.
func (s Segment) DirectionFixedHalf() float64 {
	a := s.Direction()
	if a < 0 {
		a += math.Pi
	}
	if a >= math.Pi {
		a -= math.Pi
	}
	return a
}

// Slope returns dy/dx. ok is false for vertical segments, in which case k is 0.
func (s Segment) Slope() (k float64, ok bool) {
	d := s.End.Sub(s.Begin)
	if math.Abs(d.X) < VerticalEpsilon {
		return 0, false
	}
	return d.Y / d.X, true
}

// DiffersLessThanFrom reports whether s is close to ref in both length and
// orientation: the squared length difference must be below maxLengthDeltaSq
// and the orientation difference below maxAngleDelta radians.
func (s Segment) DiffersLessThanFrom(ref Segment, maxLengthDeltaSq, maxAngleDelta float64) bool {
	dl := s.Length() - ref.Length()
	if dl*dl >= maxLengthDeltaSq {
		return false
	}
	return math.Abs(s.DirectionFixedHalf()-ref.DirectionFixedHalf()) < maxAngleDelta
}

// XAt returns the x coordinate of the infinite line through s at height y.
// ok is false for horizontal segments.
func (s Segment) XAt(y float64) (x float64, ok bool) {
	d := s.End.Sub(s.Begin)
	if math.Abs(d.Y) < VerticalEpsilon {
		return 0, false
	}
	return s.Begin.X + (y-s.Begin.Y)*d.X/d.Y, true
}

// StretchY returns the segment on the same infinite line whose Begin lies at
// y = yMin and whose End lies at y = yMax. The inverse slope dx/dy is used so
// vertical lines extrapolate exactly; horizontal lines cannot be stretched.
func (s Segment) StretchY(yMin, yMax float64) (Segment, error) {
	if yMin == yMax {
		return Segment{}, fmt.Errorf("stretch to y=%g: %w", yMin, ErrEmptyRange)
	}
	if s.Begin.Y == yMin && s.End.Y == yMax {
		return s, nil
	}
	xMin, ok := s.XAt(yMin)
	if !ok {
		return Segment{}, fmt.Errorf("stretch %v: %w", s, ErrHorizontal)
	}
	xMax, _ := s.XAt(yMax)
	return NewSegment(xMin, yMin, xMax, yMax), nil
}

// String implements fmt.Stringer.
func (s Segment) String() string {
	return fmt.Sprintf("(%.1f,%.1f)-(%.1f,%.1f)", s.Begin.X, s.Begin.Y, s.End.X, s.End.Y)
}
