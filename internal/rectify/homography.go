package rectify

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/MeKo-Tech/birdseye/internal/geometry"
)

// Matrix is a row-major 3x3 perspective transform normalised so that m[8] == 1.
type Matrix [9]float64

// Identity is the identity transform.
var Identity = Matrix{1, 0, 0, 0, 1, 0, 0, 0, 1}

// Apply maps (x, y) through the transform. ok is false when the point maps
// to infinity.
func (m Matrix) Apply(x, y float64) (float64, float64, bool) {
	denom := m[6]*x + m[7]*y + m[8]
	if math.Abs(denom) < 1e-12 {
		return 0, 0, false
	}
	sx := (m[0]*x + m[1]*y + m[2]) / denom
	sy := (m[3]*x + m[4]*y + m[5]) / denom
	return sx, sy, true
}

// ApplyPoint maps p through the transform.
func (m Matrix) ApplyPoint(p geometry.Point) (geometry.Point, bool) {
	x, y, ok := m.Apply(p.X, p.Y)
	return geometry.Point{X: x, Y: y}, ok
}

// Inverse returns the inverse transform.
func (m Matrix) Inverse() (Matrix, error) {
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, m[:])); err != nil {
		return Matrix{}, fmt.Errorf("%w: invert transform: %w", ErrDegenerateGeometry, err)
	}
	var out Matrix
	copy(out[:], inv.RawMatrix().Data)
	return out.normalize()
}

func (m Matrix) normalize() (Matrix, error) {
	if math.Abs(m[8]) < 1e-12 {
		return Matrix{}, fmt.Errorf("%w: transform maps the origin to infinity", ErrDegenerateGeometry)
	}
	s := m[8]
	for i := range m {
		m[i] /= s
		if math.IsNaN(m[i]) || math.IsInf(m[i], 0) {
			return Matrix{}, fmt.Errorf("%w: non-finite transform", ErrDegenerateGeometry)
		}
	}
	return m, nil
}

// Rows returns the matrix as three rows.
func (m Matrix) Rows() [3][3]float64 {
	return [3][3]float64{{m[0], m[1], m[2]}, {m[3], m[4], m[5]}, {m[6], m[7], m[8]}}
}

// Solver computes the perspective transform mapping four source points onto
// four destination points.
type Solver interface {
	Solve(src, dst [4]geometry.Point) (Matrix, error)
}

// GonumSolver solves the 8x8 linear system of the four point
// correspondences with gonum's LU solver.
type GonumSolver struct{}

// Solve implements Solver.
func (GonumSolver) Solve(src, dst [4]geometry.Point) (Matrix, error) {
	if err := checkQuad(src); err != nil {
		return Matrix{}, fmt.Errorf("source: %w", err)
	}
	if err := checkQuad(dst); err != nil {
		return Matrix{}, fmt.Errorf("dest: %w", err)
	}

	// Unknowns h00..h21 with h22 = 1:
	//   x' = (h00 X + h01 Y + h02) / (h20 X + h21 Y + 1)
	//   y' = (h10 X + h11 Y + h12) / (h20 X + h21 Y + 1)
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := range 4 {
		X, Y := src[i].X, src[i].Y
		x, y := dst[i].X, dst[i].Y
		r := 2 * i
		a.SetRow(r, []float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x})
		b.SetVec(r, x)
		a.SetRow(r+1, []float64{0, 0, 0, X, Y, 1, -X * y, -Y * y})
		b.SetVec(r+1, y)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return Matrix{}, fmt.Errorf("%w: solve perspective transform: %w", ErrDegenerateGeometry, err)
	}

	var m Matrix
	for i := range 8 {
		m[i] = h.AtVec(i)
	}
	m[8] = 1
	if err := VerifyTransform(m, src, dst); err != nil {
		return Matrix{}, err
	}
	return m, nil
}

// VerifyTransform checks that m is finite and maps every source point onto
// its destination. Failures wrap ErrDegenerateGeometry.
func VerifyTransform(m Matrix, src, dst [4]geometry.Point) error {
	for i, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite matrix entry m[%d]=%g", ErrDegenerateGeometry, i, v)
		}
	}
	for i := range 4 {
		p, ok := m.ApplyPoint(src[i])
		if !ok {
			return fmt.Errorf("%w: source point %v maps to infinity", ErrDegenerateGeometry, src[i])
		}
		tol := 1e-6 * (1 + math.Abs(dst[i].X) + math.Abs(dst[i].Y))
		if d := p.Dist(dst[i]); math.IsNaN(d) || d > tol {
			return fmt.Errorf("%w: residual %g at point %d", ErrDegenerateGeometry, d, i)
		}
	}
	return nil
}

// DefaultSolver is the solver used by PerspectiveTransform.
var DefaultSolver Solver = GonumSolver{}

// PerspectiveTransform returns the transform mapping src onto dst.
func PerspectiveTransform(src, dst [4]geometry.Point) (Matrix, error) {
	return DefaultSolver.Solve(src, dst)
}

// Transform solves the transform for a set of control points.
func Transform(s Solver, cp ControlPoints) (Matrix, error) {
	if s == nil {
		s = DefaultSolver
	}
	return s.Solve(cp.Source, cp.Dest)
}
