// Package frames discovers, loads and saves camera frames.
package frames

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
)

// SupportedExtensions lists the file extensions that can be loaded.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// ErrUnsupported is returned for files with an unknown extension.
var ErrUnsupported = errors.New("unsupported image format")

// LoadError reports a failure to read, decode or write a frame.
type LoadError struct {
	Op   string
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("frame %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("frame %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsSupported reports whether the path has a supported image extension.
func IsSupported(path string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}

// Metadata captures lightweight file and pixel information.
type Metadata struct {
	Path      string `json:"path"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"size_bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Load opens and decodes an image file.
func Load(path string) (image.Image, Metadata, error) {
	if path == "" {
		return nil, Metadata{}, &LoadError{Op: "load", Err: errors.New("empty path")}
	}
	if !IsSupported(path) {
		return nil, Metadata{}, &LoadError{Op: "load", Path: path, Err: fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(path))}
	}

	f, err := os.Open(path) //nolint:gosec // G304: reading user-provided frame paths is expected
	if err != nil {
		return nil, Metadata{}, &LoadError{Op: "load", Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, Metadata{}, &LoadError{Op: "load", Path: path, Err: err}
	}

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, Metadata{}, &LoadError{Op: "decode", Path: path, Err: err}
	}

	b := img.Bounds()
	return img, Metadata{
		Path:      path,
		Format:    format,
		SizeBytes: fi.Size(),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}

// Decode reads an encoded frame (jpeg, png or bmp) from r.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", &LoadError{Op: "decode", Err: err}
	}
	return img, format, nil
}

// Save writes img to path; the format follows the extension.
func Save(img image.Image, path string) error {
	if img == nil {
		return &LoadError{Op: "save", Path: path, Err: errors.New("nil image")}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return &LoadError{Op: "save", Path: path, Err: err}
		}
	}
	if err := imaging.Save(img, path); err != nil {
		return &LoadError{Op: "save", Path: path, Err: err}
	}
	return nil
}

// EncodePNG writes img to w as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}

// Fit downscales img to at most maxWidth pixels wide, keeping the aspect
// ratio. Narrower images and maxWidth <= 0 return img unchanged.
func Fit(img image.Image, maxWidth int) image.Image {
	if maxWidth <= 0 || img.Bounds().Dx() <= maxWidth {
		return img
	}
	return imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
}
