// Package lane picks the two lane boundary lines out of the raw segments
// detected in a frame, using position, orientation and frame-to-frame
// stability heuristics.
package lane

import (
	"encoding/json"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/birdseye/internal/geometry"
)

// Outcome describes why a selection succeeded or failed.
type Outcome string

const (
	// OutcomeFound means both boundaries were accepted and are parallel enough.
	OutcomeFound Outcome = "found"
	// OutcomeNoCandidate means one or both sides had no acceptable segment.
	OutcomeNoCandidate Outcome = "no_candidate"
	// OutcomeNotParallel means both sides matched but their slopes disagree.
	OutcomeNotParallel Outcome = "not_parallel"
)

// Result is the outcome of selecting lane boundaries for one frame.
// Left and Right are only meaningful when Found is true.
type Result struct {
	Left  geometry.Segment `json:"left" yaml:"left"`
	Right geometry.Segment `json:"right" yaml:"right"`
	Found bool             `json:"found" yaml:"found"`

	FoundLeft   bool    `json:"found_left" yaml:"found_left"`
	FoundRight  bool    `json:"found_right" yaml:"found_right"`
	Parallelism float64 `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`
	Outcome     Outcome `json:"outcome" yaml:"outcome"`
}

// MarshalJSON drops a non-finite parallelism, which JSON cannot encode.
// Outcome still reports not_parallel in that case.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	p := plain(r)
	if math.IsInf(p.Parallelism, 0) || math.IsNaN(p.Parallelism) {
		p.Parallelism = 0
	}
	return json.Marshal(p)
}

// State is a snapshot of the selector's tracking state.
type State struct {
	LastLeft   geometry.Segment `json:"last_left" yaml:"last_left"`
	LastRight  geometry.Segment `json:"last_right" yaml:"last_right"`
	FirstFrame bool             `json:"first_frame" yaml:"first_frame"`
}

// Selector tracks lane boundaries across the frames of one session.
//
// A Selector is not safe for concurrent use. Each camera or sequence needs
// its own instance; sharing one across goroutines corrupts the stability gate.
type Selector struct {
	cfg        Config
	lastLeft   geometry.Segment
	lastRight  geometry.Segment
	firstFrame bool
}

// NewSelector creates a selector in first-frame state.
func NewSelector(cfg Config) *Selector {
	return &Selector{cfg: cfg, firstFrame: true}
}

// Config returns the selector thresholds.
func (s *Selector) Config() Config { return s.cfg }

// Reset forces the next Select to behave like the first frame of a session,
// bypassing the stability gate.
func (s *Selector) Reset() { s.firstFrame = true }

// State returns a copy of the tracking state.
func (s *Selector) State() State {
	return State{LastLeft: s.lastLeft, LastRight: s.lastRight, FirstFrame: s.firstFrame}
}

// Select classifies segments into left and right lane boundaries.
//
// The x coordinate of Begin is treated as the segment's left x and the one of
// End as its right x, matching the endpoint order of the segment extractor.
// The last attempted candidates are remembered even when the frame fails so
// the next frame is gated against the latest attempt.
//
// On success the roles are swapped: Result.Left holds the candidate accepted
// by the right-side test and Result.Right the one accepted by the left-side
// test, matching the mirrored lane frame used by rectification.
func (s *Selector) Select(segments []geometry.Segment, frameWidth int, reset bool) Result {
	if reset {
		s.firstFrame = true
	}

	center := float64(frameWidth / 2)
	leftmostReach := float64(frameWidth)
	rightmostReach := 0.0

	var (
		leftCandidate, rightCandidate geometry.Segment
		foundLeft, foundRight         bool
	)

	for _, seg := range segments {
		deviation := seg.DirectionFixedHalf() - math.Pi/2
		if math.Abs(deviation) > s.cfg.OrientationTolerance {
			continue
		}

		length := seg.Length()
		leftX, rightX := seg.Begin.X, seg.End.X

		if reach := leftX - length; reach < leftmostReach && leftX > center+s.cfg.CenterMargin {
			if s.stable(seg, s.lastLeft, s.cfg.LeftStability) &&
				rightX > leftX && seg.End.Y > seg.Begin.Y && length > s.cfg.MinLeftLength {
				leftCandidate = seg
				foundLeft = true
				leftmostReach = reach
			}
		}

		if reach := rightX + length; reach > rightmostReach && rightX < center-s.cfg.CenterMargin {
			if s.stable(seg, s.lastRight, s.cfg.RightStability) {
				rightCandidate = seg
				foundRight = true
				rightmostReach = reach
			}
		}
	}

	s.lastLeft = leftCandidate
	s.lastRight = rightCandidate

	res := Result{FoundLeft: foundLeft, FoundRight: foundRight, Outcome: OutcomeNoCandidate}
	if foundLeft && foundRight {
		res.Parallelism = Parallelism(leftCandidate, rightCandidate)
		res.Outcome = OutcomeNotParallel
		if res.Parallelism < s.cfg.MaxParallelism {
			res.Left = rightCandidate
			res.Right = leftCandidate
			res.Found = true
			res.Outcome = OutcomeFound
			s.firstFrame = false
		}
	}

	slog.Debug("Lane selection",
		"segments", len(segments),
		"found_left", foundLeft,
		"found_right", foundRight,
		"outcome", res.Outcome)
	return res
}

func (s *Selector) stable(seg, last geometry.Segment, gate StabilityGate) bool {
	return s.firstFrame || seg.DiffersLessThanFrom(last, gate.MaxLengthDeltaSq, gate.MaxAngleDelta)
}

// Parallelism measures how far two boundary candidates are from being mirror
// images in slope: |-k(right) - k(left)|. Zero means perfectly mirrored.
// Two vertical lines score 0; a single vertical line scores +Inf.
func Parallelism(left, right geometry.Segment) float64 {
	kl, okl := left.Slope()
	kr, okr := right.Slope()
	switch {
	case !okl && !okr:
		return 0
	case !okl || !okr:
		return math.Inf(1)
	}
	return math.Abs(-kr - kl)
}
