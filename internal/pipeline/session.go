package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/MeKo-Tech/birdseye/internal/lane"
	"github.com/MeKo-Tech/birdseye/internal/rectify"
)

// Status classifies the outcome of one frame.
type Status string

const (
	// StatusRectified means a lane was found and a transform was solved.
	StatusRectified Status = "rectified"
	// StatusNoLane means no parallel lane pair was selected.
	StatusNoLane Status = "no_lane"
	// StatusDegenerate means a lane was selected but its geometry could not
	// produce a transform. The reason is in FrameResult.Error.
	StatusDegenerate Status = "degenerate"
	// StatusReused means no lane was found and the previous transform is reported.
	StatusReused Status = "reused"
)

// Frame is one input frame of a session.
type Frame struct {
	Name  string
	Image image.Image
	Reset bool // forget the previous frame's candidates before selecting
	Warp  bool // render FrameResult.Warped even when warping is not configured
}

// StageTimings holds per-stage durations of one frame.
type StageTimings struct {
	SegmentsNs int64 `json:"segments_ns" yaml:"segments_ns"`
	SelectNs   int64 `json:"select_ns" yaml:"select_ns"`
	GeometryNs int64 `json:"geometry_ns" yaml:"geometry_ns"`
	WarpNs     int64 `json:"warp_ns,omitempty" yaml:"warp_ns,omitempty"`
	TotalNs    int64 `json:"total_ns" yaml:"total_ns"`
}

// FrameResult is the per-frame output of a session.
//
// Coordinates refer to the processed frame: when the input was downscaled,
// Width and Height are the scaled size and Scale is the factor applied.
type FrameResult struct {
	Index     int    `json:"index" yaml:"index"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	SessionID string `json:"session_id" yaml:"session_id"`

	Width  int     `json:"width" yaml:"width"`
	Height int     `json:"height" yaml:"height"`
	Scale  float64 `json:"scale" yaml:"scale"`

	Status        Status                 `json:"status" yaml:"status"`
	Segments      int                    `json:"segments" yaml:"segments"`
	Lane          lane.Result            `json:"lane" yaml:"lane"`
	ControlPoints *rectify.ControlPoints `json:"control_points,omitempty" yaml:"control_points,omitempty"`
	Transform     *rectify.Matrix        `json:"transform,omitempty" yaml:"transform,omitempty"`
	Error         string                 `json:"error,omitempty" yaml:"error,omitempty"`
	Reset         bool                   `json:"reset" yaml:"reset"`

	Timings StageTimings `json:"timings" yaml:"timings"`

	Warped *image.NRGBA `json:"-" yaml:"-"`
}

// HasTransform reports whether the result carries a transform.
func (r *FrameResult) HasTransform() bool {
	return r != nil && r.Transform != nil
}

// SessionStats counts frame outcomes of a session.
type SessionStats struct {
	Frames     int `json:"frames" yaml:"frames"`
	Found      int `json:"found" yaml:"found"`
	Rectified  int `json:"rectified" yaml:"rectified"`
	NoLane     int `json:"no_lane" yaml:"no_lane"`
	Degenerate int `json:"degenerate" yaml:"degenerate"`
	Reused     int `json:"reused" yaml:"reused"`
	Resets     int `json:"resets" yaml:"resets"`
}

// Session tracks the lane of one camera across consecutive frames.
//
// A Session is not safe for concurrent use. Callers feeding frames from
// several goroutines must serialise them.
type Session struct {
	ID   string
	Name string

	p        *Pipeline
	selector *lane.Selector

	lastTransform *rectify.Matrix
	lastPoints    *rectify.ControlPoints

	index        int
	misses       int
	pendingReset bool
	stats        SessionStats
}

// NewSession starts a tracking session with a fresh selector.
func (p *Pipeline) NewSession(name string) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Name:     name,
		p:        p,
		selector: lane.NewSelector(p.cfg.Lane),
	}
}

// Reset forgets the tracked lane; the next frame is treated as the first.
func (s *Session) Reset() {
	s.pendingReset = true
	s.misses = 0
	s.lastTransform = nil
	s.lastPoints = nil
}

// Stats returns the outcome counters.
func (s *Session) Stats() SessionStats { return s.stats }

// State returns the selector's tracking state.
func (s *Session) State() lane.State { return s.selector.State() }

// ProcessFrame runs segment extraction, lane selection and rectification on
// one frame.
//
// Frames without a usable lane are reported through FrameResult.Status, not
// as errors. An error is returned only for a nil image, a cancelled context
// or a failing segment source.
func (s *Session) ProcessFrame(ctx context.Context, f Frame) (*FrameResult, error) {
	if f.Image == nil {
		return nil, errors.New("input image is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := s.p.cfg
	totalStart := time.Now()

	img, scale := fitWidth(f.Image, cfg.MaxWidth)
	b := img.Bounds()
	res := &FrameResult{
		Index:     s.index,
		Name:      f.Name,
		SessionID: s.ID,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Scale:     scale,
	}
	slog.Debug("Processing frame", "session", s.ID, "index", s.index, "name", f.Name,
		"width", res.Width, "height", res.Height, "scale", scale)

	start := time.Now()
	segs, err := s.p.source.Segments(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("extract segments: %w", err)
	}
	res.Timings.SegmentsNs = time.Since(start).Nanoseconds()
	res.Segments = len(segs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reset := f.Reset || s.pendingReset
	if reset {
		s.stats.Resets++
		s.pendingReset = false
		s.misses = 0
	}
	res.Reset = reset

	start = time.Now()
	res.Lane = s.selector.Select(segs, res.Width, reset)
	res.Timings.SelectNs = time.Since(start).Nanoseconds()

	start = time.Now()
	if res.Lane.Found {
		s.rectify(res)
	} else {
		s.noLane(res)
	}
	res.Timings.GeometryNs = time.Since(start).Nanoseconds()

	if (cfg.Rectify.Warp || f.Warp) && res.Transform != nil {
		start = time.Now()
		w, h := cfg.Rectify.OutputSize(res.Width, res.Height)
		warped, err := rectify.Warp(img, *res.Transform, w, h)
		if err != nil {
			// status is kept; only the image is missing
			slog.Warn("Warp failed", "session", s.ID, "index", s.index, "error", err)
			res.Error = err.Error()
		} else {
			res.Warped = warped
		}
		res.Timings.WarpNs = time.Since(start).Nanoseconds()
	}

	res.Timings.TotalNs = time.Since(totalStart).Nanoseconds()
	s.p.profiler.Record(res.Timings, res.Status)
	s.stats.Frames++
	s.index++
	return res, nil
}

func (s *Session) rectify(res *FrameResult) {
	cfg := s.p.cfg
	s.stats.Found++

	cp, err := rectify.ComputeControlPoints(res.Lane.Left, res.Lane.Right, res.Width, res.Height, cfg.Rectify.CropMargin)
	var m rectify.Matrix
	if err == nil {
		m, err = rectify.Transform(s.p.solver, cp)
	}
	if err != nil {
		slog.Warn("Degenerate lane geometry", "session", s.ID, "index", s.index,
			"left", res.Lane.Left.String(), "right", res.Lane.Right.String(), "error", err)
		res.Status = StatusDegenerate
		res.Error = err.Error()
		s.stats.Degenerate++
		s.countMiss()
		return
	}

	s.misses = 0
	res.Status = StatusRectified
	res.ControlPoints = &cp
	res.Transform = &m
	s.lastPoints = &cp
	s.lastTransform = &m
	s.stats.Rectified++
}

func (s *Session) noLane(res *FrameResult) {
	s.countMiss()
	if s.p.cfg.ReuseLastTransform && s.lastTransform != nil {
		m, cp := *s.lastTransform, *s.lastPoints
		res.Status = StatusReused
		res.Transform = &m
		res.ControlPoints = &cp
		s.stats.Reused++
		return
	}
	res.Status = StatusNoLane
	s.stats.NoLane++
}

// countMiss schedules a reset once ResetAfterMisses consecutive frames
// produced no transform.
func (s *Session) countMiss() {
	s.misses++
	if n := s.p.cfg.ResetAfterMisses; n > 0 && s.misses >= n {
		slog.Debug("Resetting lane tracking", "session", s.ID, "misses", s.misses)
		s.pendingReset = true
		s.misses = 0
	}
}

// fitWidth downscales img to maxWidth keeping the aspect ratio and moves its
// bounds to the origin. It returns the scale factor applied.
func fitWidth(img image.Image, maxWidth int) (image.Image, float64) {
	b := img.Bounds()
	if maxWidth > 0 && b.Dx() > maxWidth {
		scale := float64(maxWidth) / float64(b.Dx())
		return imaging.Resize(img, maxWidth, 0, imaging.Lanczos), scale
	}
	if b.Min != (image.Point{}) {
		return imaging.Clone(img), 1
	}
	return img, 1
}
