package edge

import (
	"errors"
	"fmt"
	"math"

	"github.com/MeKo-Tech/birdseye/internal/mempool"
)

// ErrAperture is returned for unsupported Sobel aperture sizes.
var ErrAperture = errors.New("unsupported aperture size")

// Separable Sobel kernels: smoothing and derivative parts.
var sobelKernels = map[int]struct{ smooth, deriv []float32 }{
	3: {smooth: []float32{1, 2, 1}, deriv: []float32{-1, 0, 1}},
	5: {smooth: []float32{1, 4, 6, 4, 1}, deriv: []float32{-1, -2, 0, 2, 1}},
}

// tan(22.5°) and tan(67.5°) split gradient directions into four sectors.
const (
	tan22 = 0.41421356237
	tan67 = 2.41421356237
)

// Canny detects edges in m and returns a binary map (0 or 255).
//
// Gradients are computed with a Sobel operator of the given aperture (3 or 5)
// and an L1 magnitude. No smoothing is applied beforehand. Pixels whose
// magnitude exceeds the higher threshold seed edges, which then grow through
// 8-connected local maxima above the lower threshold. The thresholds may be
// given in either order.
func Canny(m Map, threshold1, threshold2 float64, aperture int) (Map, error) {
	k, ok := sobelKernels[aperture]
	if !ok {
		return Map{}, fmt.Errorf("canny aperture %d: %w", aperture, ErrAperture)
	}
	low, high := float32(threshold1), float32(threshold2)
	if low > high {
		low, high = high, low
	}

	w, h := m.Width, m.Height
	n := w * h
	gx := mempool.GetFloat32(n)
	gy := mempool.GetFloat32(n)
	tmp := mempool.GetFloat32(n)
	defer mempool.PutFloat32(gx)
	defer mempool.PutFloat32(gy)
	defer mempool.PutFloat32(tmp)

	// gx = smooth(y) * deriv(x), gy = deriv(y) * smooth(x)
	convolveRows(tmp, m.Pix, w, h, k.deriv)
	convolveCols(gx, tmp, w, h, k.smooth)
	convolveRows(tmp, m.Pix, w, h, k.smooth)
	convolveCols(gy, tmp, w, h, k.deriv)

	mag := tmp
	for i := range n {
		mag[i] = abs32(gx[i]) + abs32(gy[i])
	}

	candidate := mempool.GetBool(n)
	defer mempool.PutBool(candidate)
	out := NewMap(w, h)
	stack := make([]int, 0, 256)

	magAt := func(x, y int) float32 {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	for y := range h {
		for x := range w {
			i := y*w + x
			v := mag[i]
			if v <= low {
				continue
			}
			ax, ay := abs32(gx[i]), abs32(gy[i])
			var isMax bool
			switch {
			case ay < ax*tan22:
				isMax = v > magAt(x-1, y) && v >= magAt(x+1, y)
			case ay > ax*tan67:
				isMax = v > magAt(x, y-1) && v >= magAt(x, y+1)
			default:
				s := 1
				if (gx[i] < 0) != (gy[i] < 0) {
					s = -1
				}
				isMax = v > magAt(x-s, y-1) && v > magAt(x+s, y+1)
			}
			if !isMax {
				continue
			}
			candidate[i] = true
			if v > high {
				out.Pix[i] = 255
				stack = append(stack, i)
			}
		}
	}

	// hysteresis
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if candidate[j] && out.Pix[j] == 0 {
					out.Pix[j] = 255
					stack = append(stack, j)
				}
			}
		}
	}

	return out, nil
}

// convolveRows applies a 1D kernel along x with replicated borders.
func convolveRows(dst, src []float32, w, h int, kernel []float32) {
	half := len(kernel) / 2
	for y := range h {
		row := src[y*w : y*w+w]
		for x := range w {
			var sum float32
			for k, kv := range kernel {
				sum += kv * row[clamp(x+k-half, 0, w-1)]
			}
			dst[y*w+x] = sum
		}
	}
}

// convolveCols applies a 1D kernel along y with replicated borders.
func convolveCols(dst, src []float32, w, h int, kernel []float32) {
	half := len(kernel) / 2
	for y := range h {
		for x := range w {
			var sum float32
			for k, kv := range kernel {
				sum += kv * src[clamp(y+k-half, 0, h-1)*w+x]
			}
			dst[y*w+x] = sum
		}
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func abs32(v float32) float32 {
	return float32(math.Abs(float64(v)))
}
