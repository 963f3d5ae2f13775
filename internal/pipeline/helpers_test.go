package pipeline

import (
	"context"
	"fmt"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/birdseye/internal/geometry"
	"github.com/MeKo-Tech/birdseye/internal/rectify"
)

var (
	// right of center, running down-right: accepted by the left-side test
	outerSeg = geometry.NewSegment(400, 100, 500, 300)
	// left of center, running down-left: accepted by the right-side test
	innerSeg = geometry.NewSegment(240, 100, 140, 300)

	laneSegs = []geometry.Segment{outerSeg, innerSeg}
)

// scriptedSource returns the given segment lists in order, then nothing.
func scriptedSource(frames ...[]geometry.Segment) SegmentSource {
	var mu sync.Mutex
	next := 0
	return SegmentSourceFunc(func(context.Context, image.Image) ([]geometry.Segment, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(frames) {
			return nil, nil
		}
		segs := frames[next]
		next++
		return segs, nil
	})
}

func constantSource(segs []geometry.Segment) SegmentSource {
	return SegmentSourceFunc(func(context.Context, image.Image) ([]geometry.Segment, error) {
		return segs, nil
	})
}

type failingSolver struct{}

func (failingSolver) Solve(_, _ [4]geometry.Point) (rectify.Matrix, error) {
	return rectify.Matrix{}, fmt.Errorf("%w: test solver", rectify.ErrDegenerateGeometry)
}

func build(t *testing.T, b *Builder) *Pipeline {
	t.Helper()
	p, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func blankFrame() image.Image {
	return image.NewGray(image.Rect(0, 0, 640, 480))
}

func frame(name string) Frame {
	return Frame{Name: name, Image: blankFrame()}
}
