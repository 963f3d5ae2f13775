package edge

import "math"

// Erode applies a kernelSize x kernelSize minimum filter iterations times.
// Erosion shrinks bright regions; pixels outside the map are ignored.
// The input map is left untouched.
func Erode(m Map, kernelSize, iterations int) Map {
	out := NewMap(m.Width, m.Height)
	copy(out.Pix, m.Pix)
	if kernelSize <= 1 || iterations <= 0 {
		return out
	}

	tmp := NewMap(m.Width, m.Height)
	defer tmp.Release()
	for range iterations {
		erodeInto(tmp, out, kernelSize)
		out.Pix, tmp.Pix = tmp.Pix, out.Pix
	}
	return out
}

func erodeInto(dst, src Map, kernelSize int) {
	half := kernelSize / 2
	width, height := src.Width, src.Height

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			minVal := float32(math.MaxFloat32)

			for ky := -half; ky <= half; ky++ {
				for kx := -half; kx <= half; kx++ {
					nx, ny := x+kx, y+ky
					if nx >= 0 && nx < width && ny >= 0 && ny < height {
						if v := src.Pix[ny*width+nx]; v < minVal {
							minVal = v
						}
					}
				}
			}

			dst.Pix[y*width+x] = minVal
		}
	}
}
