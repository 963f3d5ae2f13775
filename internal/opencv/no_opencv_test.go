//go:build !withcv

package opencv

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MeKo-Tech/birdseye/internal/hough"
)

func TestUnavailableWithoutTag(t *testing.T) {
	assert.False(t, Available())

	_, err := NewSegmentSource(Params{Hough: hough.DefaultConfig()})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = (&SegmentSource{}).Segments(context.Background(), image.NewGray(image.Rect(0, 0, 2, 2)))
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = NewSolver()
	assert.ErrorIs(t, err, ErrUnavailable)
}
