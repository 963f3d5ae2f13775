//go:build withcv

package opencv

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/MeKo-Tech/birdseye/internal/geometry"
	"github.com/MeKo-Tech/birdseye/internal/rectify"
)

// Available reports whether the OpenCV backend is linked in.
func Available() bool { return true }

// SegmentSource extracts line segments with gocv: erosion, Canny and the
// probabilistic Hough transform.
type SegmentSource struct {
	params Params
}

// NewSegmentSource validates params and returns a gocv segment source.
func NewSegmentSource(p Params) (*SegmentSource, error) {
	if p.Aperture != 0 && p.Aperture != 3 {
		return nil, fmt.Errorf("opencv: canny aperture %d not supported, only 3", p.Aperture)
	}
	if err := p.Hough.Validate(); err != nil {
		return nil, fmt.Errorf("opencv: %w", err)
	}
	return &SegmentSource{params: p}, nil
}

// Segments implements the pipeline segment source.
func (s *SegmentSource) Segments(ctx context.Context, img image.Image) ([]geometry.Segment, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("opencv: convert image: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorRGBToGray)

	if s.params.ErodeKernel > 1 && s.params.ErodeIterations > 0 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(s.params.ErodeKernel, s.params.ErodeKernel))
		defer kernel.Close()
		for range s.params.ErodeIterations {
			gocv.Erode(gray, &gray, kernel)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, float32(s.params.CannyLow), float32(s.params.CannyHigh))

	lines := gocv.NewMat()
	defer lines.Close()
	h := s.params.Hough
	gocv.HoughLinesPWithParams(edges, &lines,
		float32(h.Rho), float32(h.Theta), h.Threshold,
		float32(h.MinLineLength), float32(h.MaxLineGap))

	segs := make([]geometry.Segment, 0, lines.Rows())
	for i := 0; i < lines.Rows(); i++ {
		v := lines.GetVeciAt(i, 0)
		segs = append(segs, geometry.FromInts([4]int{int(v[0]), int(v[1]), int(v[2]), int(v[3])}))
	}
	return segs, nil
}

type solver struct{}

// NewSolver returns a perspective solver backed by cv::getPerspectiveTransform.
func NewSolver() (rectify.Solver, error) { return solver{}, nil }

func (solver) Solve(src, dst [4]geometry.Point) (rectify.Matrix, error) {
	toVec := func(ps [4]geometry.Point) gocv.Point2fVector {
		pts := make([]gocv.Point2f, len(ps))
		for i, p := range ps {
			pts[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
		}
		return gocv.NewPoint2fVectorFromPoints(pts)
	}
	sv, dv := toVec(src), toVec(dst)
	defer sv.Close()
	defer dv.Close()

	m := gocv.GetPerspectiveTransform2f(sv, dv)
	defer m.Close()
	if m.Empty() || m.Rows() != 3 || m.Cols() != 3 {
		return rectify.Matrix{}, fmt.Errorf("%w: opencv returned no transform", rectify.ErrDegenerateGeometry)
	}

	var out rectify.Matrix
	for r := range 3 {
		for c := range 3 {
			out[r*3+c] = m.GetDoubleAt(r, c)
		}
	}
	scale := out[8]
	if scale == 0 {
		return rectify.Matrix{}, fmt.Errorf("%w: singular transform", rectify.ErrDegenerateGeometry)
	}
	for i := range out {
		out[i] /= scale
	}
	if err := rectify.VerifyTransform(out, src, dst); err != nil {
		return rectify.Matrix{}, err
	}
	return out, nil
}
