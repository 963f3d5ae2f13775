package pipeline

import (
	"sync/atomic"
)

// Profiler aggregates stage timings and outcome counters across sessions.
type Profiler struct {
	SegmentsTimeNs atomic.Int64
	SelectTimeNs   atomic.Int64
	GeometryTimeNs atomic.Int64
	WarpTimeNs     atomic.Int64
	TotalTimeNs    atomic.Int64
	Frames         atomic.Int64
	Rectified      atomic.Int64
	NoLane         atomic.Int64
	Degenerate     atomic.Int64
	Reused         atomic.Int64
}

// Record adds one frame's timings and outcome.
func (p *Profiler) Record(t StageTimings, status Status) {
	p.SegmentsTimeNs.Add(t.SegmentsNs)
	p.SelectTimeNs.Add(t.SelectNs)
	p.GeometryTimeNs.Add(t.GeometryNs)
	p.WarpTimeNs.Add(t.WarpNs)
	p.TotalTimeNs.Add(t.TotalNs)
	p.Frames.Add(1)
	switch status {
	case StatusRectified:
		p.Rectified.Add(1)
	case StatusNoLane:
		p.NoLane.Add(1)
	case StatusDegenerate:
		p.Degenerate.Add(1)
	case StatusReused:
		p.Reused.Add(1)
	}
}

// Snapshot returns cumulative metrics in milliseconds for readability.
func (p *Profiler) Snapshot() map[string]any {
	frames := p.Frames.Load()
	seg := p.SegmentsTimeNs.Load()
	total := p.TotalTimeNs.Load()
	out := map[string]any{
		"frames":            frames,
		"rectified":         p.Rectified.Load(),
		"no_lane":           p.NoLane.Load(),
		"degenerate":        p.Degenerate.Load(),
		"reused":            p.Reused.Load(),
		"segments_ms_total": seg / 1_000_000,
		"select_ms_total":   p.SelectTimeNs.Load() / 1_000_000,
		"geometry_ms_total": p.GeometryTimeNs.Load() / 1_000_000,
		"warp_ms_total":     p.WarpTimeNs.Load() / 1_000_000,
		"total_ms_total":    total / 1_000_000,
	}
	if frames > 0 {
		out["segments_ms_per_frame"] = float64(seg) / 1_000_000.0 / float64(frames)
		out["total_ms_per_frame"] = float64(total) / 1_000_000.0 / float64(frames)
	}
	return out
}
