package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSize represents common frame dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common test frame sizes.
	SmallSize  = ImageSize{320, 240}
	MediumSize = ImageSize{640, 480}
	LargeSize  = ImageSize{1280, 960}
)

// RoadConfig describes a synthetic dash-cam frame with two painted lane
// markings on a dark road.
type RoadConfig struct {
	Size       ImageSize
	Background color.Color
	Marking    color.Color
	LineWidth  float64
	// Left and Right are the marking centre lines, top point first.
	Left  [2]image.Point
	Right [2]image.Point
	// Label is drawn in the top-right corner like a camera timestamp.
	Label string
}

// DefaultRoadConfig returns a 640x480 frame whose markings converge towards a
// vanishing point at (320, -20) with mirrored slopes (|dx/dy| = 0.48).
func DefaultRoadConfig() RoadConfig {
	return RoadConfig{
		Size:       MediumSize,
		Background: color.RGBA{20, 20, 20, 255},
		Marking:    color.RGBA{250, 250, 250, 255},
		LineWidth:  6,
		Left:       [2]image.Point{{224, 180}, {80, 480}},
		Right:      [2]image.Point{{416, 180}, {560, 480}},
	}
}

// GenerateRoadFrame renders the configured frame.
func GenerateRoadFrame(cfg RoadConfig) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, cfg.Size.Width, cfg.Size.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{cfg.Background}, image.Point{}, draw.Src)

	drawThickLine(img, cfg.Left[0], cfg.Left[1], cfg.LineWidth, cfg.Marking)
	drawThickLine(img, cfg.Right[0], cfg.Right[1], cfg.LineWidth, cfg.Marking)

	if cfg.Label != "" {
		face := basicfont.Face7x13
		w := font.MeasureString(face, cfg.Label).Ceil()
		d := &font.Drawer{Dst: img, Src: &image.Uniform{cfg.Marking}, Face: face}
		d.Dot = fixed.P(cfg.Size.Width-w-4, face.Metrics().Ascent.Ceil()+2)
		d.DrawString(cfg.Label)
	}
	return img
}

// ShiftRoad moves both markings horizontally by dx pixels.
func ShiftRoad(cfg RoadConfig, dx int) RoadConfig {
	off := image.Pt(dx, 0)
	for i := range 2 {
		cfg.Left[i] = cfg.Left[i].Add(off)
		cfg.Right[i] = cfg.Right[i].Add(off)
	}
	return cfg
}

// drawThickLine paints every pixel within width/2 of the segment a-b.
func drawThickLine(img *image.RGBA, a, b image.Point, width float64, c color.Color) {
	half := width / 2
	ax, ay, bx, by := float64(a.X), float64(a.Y), float64(b.X), float64(b.Y)
	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy

	r := img.Bounds().Intersect(image.Rect(
		int(math.Floor(math.Min(ax, bx)-half)), int(math.Floor(math.Min(ay, by)-half)),
		int(math.Ceil(math.Max(ax, bx)+half))+1, int(math.Ceil(math.Max(ay, by)+half))+1,
	))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			px, py := float64(x), float64(y)
			t := 0.0
			if lenSq > 0 {
				t = math.Max(0, math.Min(1, ((px-ax)*dx+(py-ay)*dy)/lenSq))
			}
			if math.Hypot(px-(ax+t*dx), py-(ay+t*dy)) <= half {
				img.Set(x, y, c)
			}
		}
	}
}

// SaveImage saves an image as PNG, creating parent directories.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	dir := filepath.Dir(path)
	require.NoError(t, EnsureDir(dir), "Failed to create directory %s", dir)

	file, err := os.Create(path) //nolint:gosec // G304: Test file creation with controlled path
	require.NoError(t, err, "Failed to create file %s", path)
	defer func() {
		require.NoError(t, file.Close())
	}()

	require.NoError(t, png.Encode(file, img), "Failed to encode PNG image")
}

// LoadImage loads an image from the specified path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()

	file, err := os.Open(path) //nolint:gosec // G304: Test file reading with controlled path
	require.NoError(t, err, "Failed to open image file %s", path)
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	require.NoError(t, err, "Failed to decode image")
	return img
}

// CompareImages compares two images and returns true if their mean colour
// difference, relative to the maximum possible, is within tolerance.
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	bounds1 := img1.Bounds()
	bounds2 := img2.Bounds()
	if bounds1.Size() != bounds2.Size() {
		return false
	}

	var totalDiff, pixelCount float64
	for y := range bounds1.Dy() {
		for x := range bounds1.Dx() {
			r1, g1, b1, a1 := img1.At(bounds1.Min.X+x, bounds1.Min.Y+y).RGBA()
			r2, g2, b2, a2 := img2.At(bounds2.Min.X+x, bounds2.Min.Y+y).RGBA()

			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)
			totalDiff += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
			pixelCount++
		}
	}
	if pixelCount == 0 {
		return true
	}

	maxDiff := math.Sqrt(4 * 65535 * 65535)
	return totalDiff/pixelCount/maxDiff <= tolerance
}
