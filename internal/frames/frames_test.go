package frames

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/birdseye/internal/testutil"
)

func writeFrames(t *testing.T, dir string, names ...string) {
	t.Helper()
	img := testutil.BlankFrame(testutil.SmallSize, color.Gray{Y: 40})
	for _, n := range names {
		testutil.SaveImage(t, img, filepath.Join(dir, n))
	}
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("a.png"))
	assert.True(t, IsSupported("dir/B.JPG"))
	assert.True(t, IsSupported("c.jpeg"))
	assert.True(t, IsSupported("d.bmp"))
	assert.False(t, IsSupported("e.gif"))
	assert.False(t, IsSupported("noext"))
}

func TestNaturalCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"frame_2.png", "frame_10.png", -1},
		{"frame_10.png", "frame_9.png", 1},
		{"frame_007.png", "frame_7.png", 0},
		{"a.png", "b.png", -1},
		{"cam1/frame_3", "cam1/frame_3", 0},
		{"x", "x1", -1},
		{"frame_99999999999999999999", "frame_100000000000000000000", -1},
	}
	for _, tt := range tests {
		got := naturalCompare(tt.a, tt.b)
		switch {
		case tt.want < 0:
			assert.Negative(t, got, "%s < %s", tt.a, tt.b)
		case tt.want > 0:
			assert.Positive(t, got, "%s > %s", tt.a, tt.b)
		default:
			assert.Zero(t, got, "%s == %s", tt.a, tt.b)
		}
	}
}

func TestDiscover_DirectoryNaturalOrder(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "frame_10.png", "frame_2.png", "frame_1.png")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	paths, err := Discover([]string{dir}, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "frame_1.png"),
		filepath.Join(dir, "frame_2.png"),
		filepath.Join(dir, "frame_10.png"),
	}, paths)
}

func TestDiscover_Patterns(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "left_1.png", "left_2.png", "right_1.png")

	paths, err := Discover([]string{dir}, DiscoverOptions{Include: []string{"left_*"}, Exclude: []string{"*_2.png"}})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "left_1.png")}, paths)
}

func TestDiscover_Recursive(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "a.png")
	writeFrames(t, filepath.Join(dir, "sub"), "b.png")

	flat, err := Discover([]string{dir}, DiscoverOptions{})
	require.NoError(t, err)
	assert.Len(t, flat, 1)

	deep, err := Discover([]string{dir}, DiscoverOptions{Recursive: true})
	require.NoError(t, err)
	assert.Len(t, deep, 2)
}

func TestDiscover_MissingPath(t *testing.T) {
	_, err := Discover([]string{filepath.Join(t.TempDir(), "nope")}, DiscoverOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestDiscoverSequences(t *testing.T) {
	root := t.TempDir()
	cam0 := filepath.Join(root, "cam0")
	cam1 := filepath.Join(root, "cam1")
	writeFrames(t, cam0, "1.png", "2.png")
	writeFrames(t, cam1, "1.png")
	writeFrames(t, root, "x.png", "y.png")
	empty := filepath.Join(root, "empty")
	require.NoError(t, os.MkdirAll(empty, 0o750))

	seqs, err := DiscoverSequences([]string{
		filepath.Join(root, "x.png"), cam0, empty, filepath.Join(root, "y.png"), cam1,
	}, DiscoverOptions{})
	require.NoError(t, err)

	require.Len(t, seqs, 3)
	assert.Equal(t, "files", seqs[0].Name)
	assert.Equal(t, []string{filepath.Join(root, "x.png"), filepath.Join(root, "y.png")}, seqs[0].Paths)
	assert.Equal(t, "cam0", seqs[1].Name)
	assert.Len(t, seqs[1].Paths, 2)
	assert.Equal(t, "cam1", seqs[2].Name)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "f.png")

	img, meta, err := Load(filepath.Join(dir, "f.png"))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 320, 240), img.Bounds())
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, 320, meta.Width)
	assert.Equal(t, 240, meta.Height)
	assert.Positive(t, meta.SizeBytes)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0o600))

	tests := []struct {
		name string
		path string
		op   string
		is   error
	}{
		{"empty", "", "load", nil},
		{"unsupported", filepath.Join(dir, "a.gif"), "load", ErrUnsupported},
		{"missing", filepath.Join(dir, "missing.png"), "load", fs.ErrNotExist},
		{"corrupt", bad, "decode", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Load(tt.path)
			require.Error(t, err)
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.op, le.Op)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestSaveAndDecode(t *testing.T) {
	dir := t.TempDir()
	img := testutil.GenerateRoadFrame(testutil.DefaultRoadConfig())
	path := filepath.Join(dir, "out", "warped.png")

	require.NoError(t, Save(img, path))
	loaded, _, err := Load(path)
	require.NoError(t, err)
	assert.True(t, testutil.CompareImages(img, loaded, 0))

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, img))
	decoded, format, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	_, _, err = Decode(bytes.NewReader([]byte("junk")))
	var le *LoadError
	assert.True(t, errors.As(err, &le))

	assert.Error(t, Save(nil, path))
}

func TestFit(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1280, 720))

	assert.Same(t, img, Fit(img, 0))
	assert.Same(t, img, Fit(img, 2000))
	assert.Equal(t, image.Rect(0, 0, 640, 360), Fit(img, 640).Bounds())
}
