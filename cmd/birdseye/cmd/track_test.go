package cmd

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/birdseye/internal/pipeline"
	"github.com/MeKo-Tech/birdseye/internal/testutil"
)

// cameraDirs writes n frames for each named camera under a temp root.
func cameraDirs(t *testing.T, n int, names ...string) []string {
	t.Helper()
	root := t.TempDir()
	dirs := make([]string, 0, len(names))
	for _, name := range names {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0o750))
		testutil.WriteRoadSequence(t, dir, testutil.DefaultRoadConfig(), n, 0)
		dirs = append(dirs, dir)
	}
	return dirs
}

func TestTrackCommand_JSON(t *testing.T) {
	dirs := cameraDirs(t, 3, "cam0", "cam1")

	out, _, err := execute(t, "track", "--format", "json", "--workers", "2", dirs[0], dirs[1])
	require.NoError(t, err)

	var results []pipeline.SequenceResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "cam0", results[0].Name)
	assert.Equal(t, "cam1", results[1].Name)

	for _, seq := range results {
		require.Len(t, seq.Frames, 3)
		assert.Equal(t, 3, seq.Stats.Frames)
		assert.Equal(t, 3, seq.Stats.Rectified)
		for i, f := range seq.Frames {
			assert.Equal(t, i, f.Index)
			assert.Equal(t, seq.SessionID, f.SessionID)
		}
		assert.True(t, strings.HasSuffix(seq.Frames[2].Name, "frame_3.png"))
	}
	assert.NotEqual(t, results[0].SessionID, results[1].SessionID)
}

func TestTrackCommand_Text(t *testing.T) {
	dirs := cameraDirs(t, 2, "front")

	out, _, err := execute(t, "track", dirs[0])
	require.NoError(t, err)
	assert.Contains(t, out, "== front (2 frames: 2 rectified")
}

func TestTrackCommand_CSV(t *testing.T) {
	dirs := cameraDirs(t, 2, "a", "b")

	out, _, err := execute(t, "track", "-f", "csv", dirs[0], dirs[1])
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestTrackCommand_IncludeAndWarp(t *testing.T) {
	dirs := cameraDirs(t, 3, "cam0")
	warpDir := filepath.Join(t.TempDir(), "warp")

	out, _, err := execute(t, "track", "--format", "json", "--include", "frame_[12].png",
		"--warp-dir", warpDir, dirs[0])
	require.NoError(t, err)

	var results []pipeline.SequenceResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Len(t, results[0].Frames, 2)

	assert.True(t, testutil.FileExists(filepath.Join(warpDir, "cam0", "frame_1_birdseye.png")))
	assert.True(t, testutil.FileExists(filepath.Join(warpDir, "cam0", "frame_2_birdseye.png")))
	assert.False(t, testutil.FileExists(filepath.Join(warpDir, "cam0", "frame_3_birdseye.png")))
}

func TestTrackCommand_Progress(t *testing.T) {
	dirs := cameraDirs(t, 2, "cam0")

	_, stderr, err := execute(t, "track", "--progress", dirs[0])
	require.NoError(t, err)
	assert.Contains(t, stderr, "Tracking 0/2 frames")
	assert.Contains(t, stderr, "Tracking done in")
}

func TestTrackCommand_Errors(t *testing.T) {
	empty := t.TempDir()

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no args", []string{"track"}, "no input directories or files provided"},
		{"missing dir", []string{"track", filepath.Join(empty, "nope")}, "cannot access"},
		{"no frames", []string{"track", empty}, "no supported frames found"},
		{"bad workers", []string{"track", "--workers", "0", empty}, "invalid track workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
