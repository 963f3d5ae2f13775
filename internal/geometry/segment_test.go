package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestSegment_Length(t *testing.T) {
	tests := []struct {
		name string
		seg  Segment
		want float64
	}{
		{"zero", Segment{}, 0},
		{"horizontal", NewSegment(0, 0, 10, 0), 10},
		{"vertical", NewSegment(3, 1, 3, 8), 7},
		{"3-4-5", NewSegment(1, 1, 4, 5), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.seg.Length(), 1e-12)
			assert.InDelta(t, tt.want, tt.seg.Reversed().Length(), 1e-12)
		})
	}
}

func TestSegment_DirectionFixedHalf(t *testing.T) {
	tests := []struct {
		name string
		seg  Segment
		want float64
	}{
		{"pointing right", NewSegment(0, 0, 1, 0), 0},
		{"pointing left", NewSegment(1, 0, 0, 0), 0},
		{"pointing down", NewSegment(0, 0, 0, 5), math.Pi / 2},
		{"pointing up", NewSegment(0, 5, 0, 0), math.Pi / 2},
		{"diagonal down-right", NewSegment(0, 0, 1, 1), math.Pi / 4},
		{"diagonal up-left", NewSegment(1, 1, 0, 0), math.Pi / 4},
		{"diagonal down-left", NewSegment(1, 0, 0, 1), 3 * math.Pi / 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.seg.DirectionFixedHalf()
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, math.Pi)
		})
	}
}

func TestSegment_Slope(t *testing.T) {
	k, ok := NewSegment(400, 100, 500, 300).Slope()
	require.True(t, ok)
	assert.InDelta(t, 2.0, k, 1e-12)

	k, ok = NewSegment(240, 100, 140, 300).Slope()
	require.True(t, ok)
	assert.InDelta(t, -2.0, k, 1e-12)

	_, ok = NewSegment(100, 5, 100, 480).Slope()
	assert.False(t, ok, "vertical segments have no finite slope")
}

func TestSegment_DiffersLessThanFrom(t *testing.T) {
	ref := NewSegment(400, 100, 500, 300)

	tests := []struct {
		name     string
		seg      Segment
		maxLenSq float64
		maxAngle float64
		want     bool
	}{
		{"identical", ref, 500, 0.6, true},
		{"reversed", ref.Reversed(), 500, 0.6, true},
		{"slightly longer", NewSegment(400, 100, 505, 310), 500, 0.6, true},
		{"much longer", NewSegment(400, 100, 550, 400), 500, 0.6, false},
		{"rotated", NewSegment(400, 100, 600, 200), 500, 0.6, false},
		{"rotated but loose", NewSegment(400, 100, 600, 200), 160000, 5.0, true},
		{"bounds are strict", ref, 0, 0.6, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.seg.DiffersLessThanFrom(ref, tt.maxLenSq, tt.maxAngle))
		})
	}
}

func TestSegment_DiffersLessThanFrom_ZeroReference(t *testing.T) {
	// The selector compares against a zero segment when no prior candidate exists.
	seg := NewSegment(400, 100, 500, 300)
	assert.False(t, seg.DiffersLessThanFrom(Segment{}, 500, 0.6))
	assert.True(t, seg.DiffersLessThanFrom(Segment{}, 160000, 5.0))
}

func TestSegment_StretchY(t *testing.T) {
	tests := []struct {
		name string
		seg  Segment
		want Segment
	}{
		{
			name: "vertical",
			seg:  NewSegment(100, 50, 100, 200),
			want: NewSegment(100, 5, 100, 480),
		},
		{
			name: "diagonal",
			seg:  NewSegment(400, 100, 500, 300),
			want: NewSegment(352.5, 5, 590, 480),
		},
		{
			name: "reversed endpoints",
			seg:  NewSegment(500, 300, 400, 100),
			want: NewSegment(352.5, 5, 590, 480),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.seg.StretchY(5, 480)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("StretchY mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSegment_StretchY_Errors(t *testing.T) {
	_, err := NewSegment(0, 10, 100, 10).StretchY(5, 480)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHorizontal))

	_, err = NewSegment(0, 0, 10, 10).StretchY(7, 7)
	assert.ErrorIs(t, err, ErrEmptyRange)

	_, err = Segment{}.StretchY(5, 480)
	assert.ErrorIs(t, err, ErrHorizontal)
}

func TestSegment_XAt(t *testing.T) {
	seg := NewSegment(0, 0, 10, 20)
	x, ok := seg.XAt(40)
	require.True(t, ok)
	assert.InDelta(t, 20.0, x, 1e-12)

	_, ok = NewSegment(0, 3, 10, 3).XAt(5)
	assert.False(t, ok)
}

func TestFromInts(t *testing.T) {
	got := FromIntsSlice([][4]int{{1, 2, 3, 4}, {5, 6, 7, 8}})
	want := []Segment{NewSegment(1, 2, 3, 4), NewSegment(5, 6, 7, 8)}
	assert.Equal(t, want, got)
	assert.True(t, Segment{}.IsZero())
	assert.False(t, got[0].IsZero())
}
