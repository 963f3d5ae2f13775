// Package opencv provides OpenCV-backed (gocv) implementations of the
// segment extractor and the perspective solver.
//
// The default build links no OpenCV and every constructor returns
// ErrUnavailable. Build with the tag `withcv` to enable the gocv backend:
//
//	go build -tags=withcv ./...
package opencv

import (
	"errors"

	"github.com/MeKo-Tech/birdseye/internal/hough"
)

// ErrUnavailable is returned when the binary was built without OpenCV support.
var ErrUnavailable = errors.New("opencv: backend not linked; build with -tags=withcv")

// Params configures the OpenCV edge and line extraction chain.
type Params struct {
	CannyLow        float64
	CannyHigh       float64
	Aperture        int
	ErodeKernel     int
	ErodeIterations int
	Hough           hough.Config
}
