package rectify

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/birdseye/internal/geometry"
)

func TestPerspectiveTransform_Identity(t *testing.T) {
	square := pts(0, 0, 100, 0, 100, 100, 0, 100)

	m, err := PerspectiveTransform(square, square)
	require.NoError(t, err)
	for i := range m {
		assert.InDelta(t, Identity[i], m[i], 1e-9, "m[%d]", i)
	}
}

func TestPerspectiveTransform_RoundTrip(t *testing.T) {
	src := pts(0, 0, 100, 0, 100, 100, 0, 100)
	dst := pts(10, 20, 200, 0, 220, 180, 0, 150)

	m, err := PerspectiveTransform(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m[8])

	inv, err := m.Inverse()
	require.NoError(t, err)

	for i := range 4 {
		p, ok := m.ApplyPoint(src[i])
		require.True(t, ok)
		assert.InDelta(t, dst[i].X, p.X, 1e-6)
		assert.InDelta(t, dst[i].Y, p.Y, 1e-6)

		q, ok := inv.ApplyPoint(dst[i])
		require.True(t, ok)
		assert.InDelta(t, src[i].X, q.X, 1e-6)
		assert.InDelta(t, src[i].Y, q.Y, 1e-6)
	}
}

func TestTransform_MakesLaneLinesVertical(t *testing.T) {
	left := geometry.NewSegment(240, 100, 140, 300)
	right := geometry.NewSegment(400, 100, 500, 300)
	cp, err := ComputeControlPoints(left, right, 640, 480, 5)
	require.NoError(t, err)

	m, err := Transform(GonumSolver{}, cp)
	require.NoError(t, err)

	for _, y := range []float64{5, 120, 240, 360, 480} {
		lx, _ := cp.Left.XAt(y)
		p, ok := m.ApplyPoint(geometry.Point{X: lx, Y: y})
		require.True(t, ok)
		assert.InDelta(t, cp.Dest[0].X, p.X, 1e-6, "left line at y=%g", y)

		rx, _ := cp.Right.XAt(y)
		p, ok = m.ApplyPoint(geometry.Point{X: rx, Y: y})
		require.True(t, ok)
		assert.InDelta(t, cp.Dest[1].X, p.X, 1e-6, "right line at y=%g", y)
	}
}

func TestPerspectiveTransform_Collinear(t *testing.T) {
	line := pts(0, 0, 1, 1, 2, 2, 3, 3)
	square := pts(0, 0, 100, 0, 100, 100, 0, 100)

	_, err := PerspectiveTransform(line, square)
	assert.ErrorIs(t, err, ErrDegenerateGeometry)

	_, err = PerspectiveTransform(square, line)
	assert.ErrorIs(t, err, ErrDegenerateGeometry)
}

func TestMatrix_Apply(t *testing.T) {
	x, y, ok := Identity.Apply(10, 20)
	require.True(t, ok)
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 20.0, y)

	_, _, ok = Matrix{1, 0, 0, 0, 1, 0, 0, 0, 0}.Apply(0, 0)
	assert.False(t, ok, "zero denominator maps to infinity")
}

func TestVerifyTransform(t *testing.T) {
	src := pts(0, 0, 100, 0, 100, 100, 0, 100)
	dst := pts(10, 20, 200, 0, 220, 180, 0, 150)
	m, err := PerspectiveTransform(src, dst)
	require.NoError(t, err)
	require.NoError(t, VerifyTransform(m, src, dst))

	tests := []struct {
		name string
		m    Matrix
	}{
		{"wrong mapping", Identity},
		{"nan entry", Matrix{1, 0, math.NaN(), 0, 1, 0, 0, 0, 1}},
		{"infinite entry", Matrix{math.Inf(1), 0, 0, 0, 1, 0, 0, 0, 1}},
		{"maps to infinity", Matrix{1, 0, 0, 0, 1, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, VerifyTransform(tt.m, src, dst), ErrDegenerateGeometry)
		})
	}
}

func TestMatrix_InverseSingular(t *testing.T) {
	_, err := Matrix{}.Inverse()
	assert.ErrorIs(t, err, ErrDegenerateGeometry)
}

func uniform(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestWarp_Identity(t *testing.T) {
	c := color.NRGBA{R: 10, G: 20, B: 30, A: 255}
	out, err := Warp(uniform(50, 40, c), Identity, 50, 40)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 40), out.Bounds())
	for _, p := range []image.Point{{0, 0}, {25, 20}, {49, 39}} {
		assert.Equal(t, c, out.NRGBAAt(p.X, p.Y))
	}
}

func TestWarp_TranslationLeavesBlackBorder(t *testing.T) {
	c := color.NRGBA{R: 200, G: 100, B: 50, A: 255}
	shift := Matrix{1, 0, 10, 0, 1, 0, 0, 0, 1}

	out, err := Warp(uniform(50, 40, c), shift, 50, 40)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{A: 255}, out.NRGBAAt(5, 5))
	assert.Equal(t, c, out.NRGBAAt(20, 5))
}

func TestWarp_Errors(t *testing.T) {
	_, err := Warp(nil, Identity, 10, 10)
	assert.Error(t, err)

	_, err = Warp(uniform(4, 4, color.NRGBA{}), Identity, 0, 10)
	assert.Error(t, err)

	_, err = Warp(uniform(4, 4, color.NRGBA{}), Matrix{}, 10, 10)
	assert.ErrorIs(t, err, ErrDegenerateGeometry)
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5.0, cfg.CropMargin)

	w, h := cfg.OutputSize(640, 480)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)

	cfg.OutputWidth = 320
	w, _ = cfg.OutputSize(640, 480)
	assert.Equal(t, 320, w)

	cfg.CropMargin = -1
	assert.Error(t, cfg.Validate())
}
