// Package pipeline runs lane detection and bird's-eye rectification over
// camera frames: segment extraction, lane selection, control points,
// perspective solving and the optional warp.
package pipeline

import (
	"errors"
	"fmt"
	"io"

	"github.com/MeKo-Tech/birdseye/internal/hough"
	"github.com/MeKo-Tech/birdseye/internal/lane"
	"github.com/MeKo-Tech/birdseye/internal/opencv"
	"github.com/MeKo-Tech/birdseye/internal/rectify"
)

// Backend selects the implementation of the image collaborators.
type Backend string

const (
	// BackendGo uses the pure Go edge, Hough and gonum solver implementations.
	BackendGo Backend = "go"
	// BackendOpenCV uses gocv; requires the withcv build tag.
	BackendOpenCV Backend = "opencv"
)

// EdgeConfig configures pre-processing and Canny edge extraction.
type EdgeConfig struct {
	CannyLow        float64
	CannyHigh       float64
	Aperture        int
	ErodeKernel     int
	ErodeIterations int
}

// DefaultEdgeConfig returns the thresholds used for lane footage.
func DefaultEdgeConfig() EdgeConfig {
	return EdgeConfig{
		CannyLow:        150,
		CannyHigh:       300,
		Aperture:        3,
		ErodeKernel:     3,
		ErodeIterations: 1,
	}
}

// Config holds configuration for the pipeline and its components.
type Config struct {
	Backend Backend
	Edge    EdgeConfig
	Hough   hough.Config
	Lane    lane.Config
	Rectify rectify.Config

	MaxWidth           int  // frames wider than this are downscaled first (0 = never)
	ResetAfterMisses   int  // reset tracking after this many frames without a lane (0 = never)
	ReuseLastTransform bool // report the previous transform when a frame has no lane
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		Backend: BackendGo,
		Edge:    DefaultEdgeConfig(),
		Hough:   hough.DefaultConfig(),
		Lane:    lane.DefaultConfig(),
		Rectify: rectify.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendGo, BackendOpenCV:
	default:
		return fmt.Errorf("unknown backend %q (want go or opencv)", c.Backend)
	}
	if c.Edge.CannyLow < 0 || c.Edge.CannyHigh < 0 {
		return errors.New("canny thresholds must be non-negative")
	}
	if c.Edge.Aperture != 3 && c.Edge.Aperture != 5 {
		return fmt.Errorf("canny aperture must be 3 or 5, got %d", c.Edge.Aperture)
	}
	if c.Edge.ErodeKernel < 0 || c.Edge.ErodeIterations < 0 {
		return errors.New("erode kernel and iterations must be non-negative")
	}
	if c.MaxWidth < 0 {
		return fmt.Errorf("max width must be non-negative, got %d", c.MaxWidth)
	}
	if c.ResetAfterMisses < 0 {
		return fmt.Errorf("reset after misses must be non-negative, got %d", c.ResetAfterMisses)
	}
	if err := c.Hough.Validate(); err != nil {
		return fmt.Errorf("hough: %w", err)
	}
	if err := c.Lane.Validate(); err != nil {
		return fmt.Errorf("lane: %w", err)
	}
	if err := c.Rectify.Validate(); err != nil {
		return fmt.Errorf("rectify: %w", err)
	}
	return nil
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg    Config
	source SegmentSource
	solver rectify.Solver
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithBackend selects the collaborator implementation.
func (b *Builder) WithBackend(backend Backend) *Builder {
	if backend != "" {
		b.cfg.Backend = backend
	}
	return b
}

// WithCannyThresholds sets the Canny hysteresis thresholds.
func (b *Builder) WithCannyThresholds(low, high float64) *Builder {
	b.cfg.Edge.CannyLow = low
	b.cfg.Edge.CannyHigh = high
	return b
}

// WithHough sets the line extraction parameters.
func (b *Builder) WithHough(cfg hough.Config) *Builder {
	b.cfg.Hough = cfg
	return b
}

// WithLane sets the lane selection thresholds.
func (b *Builder) WithLane(cfg lane.Config) *Builder {
	b.cfg.Lane = cfg
	return b
}

// WithCropMargin sets the y of the far-field anchors.
func (b *Builder) WithCropMargin(margin float64) *Builder {
	b.cfg.Rectify.CropMargin = margin
	return b
}

// WithWarp enables resampling frames through the solved transform.
func (b *Builder) WithWarp(enabled bool) *Builder {
	b.cfg.Rectify.Warp = enabled
	return b
}

// WithMaxWidth downscales wider frames before processing.
func (b *Builder) WithMaxWidth(w int) *Builder {
	b.cfg.MaxWidth = w
	return b
}

// WithResetAfterMisses resets tracking after n consecutive frames without a lane.
func (b *Builder) WithResetAfterMisses(n int) *Builder {
	b.cfg.ResetAfterMisses = n
	return b
}

// WithReuseLastTransform reports the previous transform for frames without a lane.
func (b *Builder) WithReuseLastTransform(enabled bool) *Builder {
	b.cfg.ReuseLastTransform = enabled
	return b
}

// WithSegmentSource overrides the segment extractor chosen by the backend.
func (b *Builder) WithSegmentSource(src SegmentSource) *Builder {
	b.source = src
	return b
}

// WithSolver overrides the perspective solver chosen by the backend.
func (b *Builder) WithSolver(s rectify.Solver) *Builder {
	b.solver = s
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Build validates the configuration and wires the collaborators.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	p := &Pipeline{cfg: b.cfg, source: b.source, solver: b.solver, profiler: &Profiler{}}

	if b.cfg.Backend == BackendOpenCV {
		if p.source == nil {
			src, err := opencv.NewSegmentSource(opencv.Params{
				CannyLow:        b.cfg.Edge.CannyLow,
				CannyHigh:       b.cfg.Edge.CannyHigh,
				Aperture:        b.cfg.Edge.Aperture,
				ErodeKernel:     b.cfg.Edge.ErodeKernel,
				ErodeIterations: b.cfg.Edge.ErodeIterations,
				Hough:           b.cfg.Hough,
			})
			if err != nil {
				return nil, fmt.Errorf("init opencv segment source: %w", err)
			}
			p.source = src
		}
		if p.solver == nil {
			s, err := opencv.NewSolver()
			if err != nil {
				return nil, fmt.Errorf("init opencv solver: %w", err)
			}
			p.solver = s
		}
	}

	if p.source == nil {
		p.source = NewEdgeSource(b.cfg.Edge, b.cfg.Hough)
	}
	if p.solver == nil {
		p.solver = rectify.GonumSolver{}
	}
	return p, nil
}

// Pipeline holds the stateless collaborators shared by all sessions.
// It is safe for concurrent use; tracking state lives in Session.
type Pipeline struct {
	cfg      Config
	source   SegmentSource
	solver   rectify.Solver
	profiler *Profiler
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Profiler returns the cumulative stage timings.
func (p *Pipeline) Profiler() *Profiler { return p.profiler }

// Close releases collaborator resources.
func (p *Pipeline) Close() error {
	if c, ok := p.source.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Info returns a map with key pipeline properties.
func (p *Pipeline) Info() map[string]any {
	return map[string]any{
		"backend": string(p.cfg.Backend),
		"edge": map[string]any{
			"canny_low":        p.cfg.Edge.CannyLow,
			"canny_high":       p.cfg.Edge.CannyHigh,
			"aperture":         p.cfg.Edge.Aperture,
			"erode_kernel":     p.cfg.Edge.ErodeKernel,
			"erode_iterations": p.cfg.Edge.ErodeIterations,
		},
		"hough": map[string]any{
			"rho":             p.cfg.Hough.Rho,
			"theta":           p.cfg.Hough.Theta,
			"threshold":       p.cfg.Hough.Threshold,
			"min_line_length": p.cfg.Hough.MinLineLength,
			"max_line_gap":    p.cfg.Hough.MaxLineGap,
		},
		"rectify": map[string]any{
			"crop_margin": p.cfg.Rectify.CropMargin,
			"warp":        p.cfg.Rectify.Warp,
		},
		"max_width":            p.cfg.MaxWidth,
		"reset_after_misses":   p.cfg.ResetAfterMisses,
		"reuse_last_transform": p.cfg.ReuseLastTransform,
		"opencv_available":     opencv.Available(),
	}
}
