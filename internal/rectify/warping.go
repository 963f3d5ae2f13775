package rectify

import (
	"errors"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Warp resamples img through m into a width x height image using inverse
// mapping and bilinear sampling. Pixels that map outside img are opaque black.
func Warp(img image.Image, m Matrix, width, height int) (*image.NRGBA, error) {
	if img == nil {
		return nil, errors.New("warp: nil image")
	}
	if width <= 0 || height <= 0 {
		return nil, errors.New("warp: output size must be positive")
	}
	inv, err := m.Inverse()
	if err != nil {
		return nil, err
	}

	src := imaging.Clone(img)
	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			sx, sy, ok := inv.Apply(float64(x), float64(y))
			c := color.NRGBA{A: 255}
			if ok {
				c = bilinearSample(src, sx, sy)
			}
			i := out.PixOffset(x, y)
			out.Pix[i+0] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+2] = c.B
			out.Pix[i+3] = c.A
		}
	}
	return out, nil
}

// bilinearSample samples src (bounds starting at 0,0) at a fractional position.
func bilinearSample(src *image.NRGBA, x, y float64) color.NRGBA {
	b := src.Bounds()
	if x < 0 || y < 0 || x > float64(b.Dx()-1) || y > float64(b.Dy()-1) {
		return color.NRGBA{A: 255}
	}
	x0 := int(x)
	y0 := int(y)
	x1 := min(x0+1, b.Dx()-1)
	y1 := min(y0+1, b.Dy()-1)
	fx := x - float64(x0)
	fy := y - float64(y0)

	c00 := src.Pix[src.PixOffset(x0, y0):]
	c10 := src.Pix[src.PixOffset(x1, y0):]
	c01 := src.Pix[src.PixOffset(x0, y1):]
	c11 := src.Pix[src.PixOffset(x1, y1):]

	var px [4]uint8
	for ch := range 4 {
		v := lerp(lerp(float64(c00[ch]), float64(c10[ch]), fx), lerp(float64(c01[ch]), float64(c11[ch]), fx), fy)
		px[ch] = uint8(v + 0.5)
	}
	return color.NRGBA{R: px[0], G: px[1], B: px[2], A: px[3]}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
