package rectify

import "fmt"

// Config holds configuration for the rectification stage.
type Config struct {
	CropMargin   float64 // y of the far-field anchors; lines are extrapolated from here to the frame bottom
	Warp         bool    // whether to resample the frame through the solved transform
	OutputWidth  int     // warped image width (0 = frame width)
	OutputHeight int     // warped image height (0 = frame height)
}

// DefaultConfig returns sensible defaults for rectification.
func DefaultConfig() Config {
	return Config{
		CropMargin:   5,
		Warp:         false,
		OutputWidth:  0,
		OutputHeight: 0,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.CropMargin < 0 {
		return fmt.Errorf("crop margin must be non-negative, got %g", c.CropMargin)
	}
	if c.OutputWidth < 0 || c.OutputHeight < 0 {
		return fmt.Errorf("output size must be non-negative, got %dx%d", c.OutputWidth, c.OutputHeight)
	}
	return nil
}

// OutputSize resolves the warped image size for a frame.
func (c Config) OutputSize(frameWidth, frameHeight int) (int, int) {
	w, h := c.OutputWidth, c.OutputHeight
	if w <= 0 {
		w = frameWidth
	}
	if h <= 0 {
		h = frameHeight
	}
	return w, h
}
