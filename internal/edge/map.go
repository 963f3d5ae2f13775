// Package edge extracts binary edge maps from camera frames: grayscale
// conversion, morphological erosion and Canny edge detection.
package edge

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/birdseye/internal/mempool"
)

// Map is a single-channel image with values in 0..255, stored row-major.
type Map struct {
	Width  int
	Height int
	Pix    []float32
}

// NewMap allocates a zeroed map from the buffer pool.
func NewMap(width, height int) Map {
	pix := mempool.GetFloat32(width * height)
	clear(pix)
	return Map{Width: width, Height: height, Pix: pix}
}

// Release hands the pixel buffer back to the pool. The map must not be used afterwards.
func (m *Map) Release() {
	mempool.PutFloat32(m.Pix)
	m.Pix = nil
}

// At returns the value at (x, y), or 0 outside the map.
func (m Map) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return 0
	}
	return m.Pix[y*m.Width+x]
}

// Count returns the number of non-zero pixels.
func (m Map) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// FromImage converts img to a luminance map.
func FromImage(img image.Image) Map {
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	m := NewMap(b.Dx(), b.Dy())
	for y := range m.Height {
		row := gray.Pix[y*gray.Stride:]
		for x := range m.Width {
			m.Pix[y*m.Width+x] = float32(row[4*x])
		}
	}
	return m
}

// ToGray converts the map to an 8-bit grayscale image.
func (m Map) ToGray() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		out.Pix[i] = uint8(min(max(v, 0), 255) + 0.5)
	}
	return out
}
