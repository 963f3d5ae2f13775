// Package hough finds straight line segments in binary edge maps with the
// progressive probabilistic Hough transform.
package hough

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/MeKo-Tech/birdseye/internal/edge"
	"github.com/MeKo-Tech/birdseye/internal/mempool"
)

// Config holds the line extraction parameters.
type Config struct {
	Rho           float64 `mapstructure:"rho" yaml:"rho" json:"rho"`                                     // distance resolution, px
	Theta         float64 `mapstructure:"theta" yaml:"theta" json:"theta"`                               // angle resolution, rad
	Threshold     int     `mapstructure:"threshold" yaml:"threshold" json:"threshold"`                   // votes needed to trace a line
	MinLineLength float64 `mapstructure:"min_line_length" yaml:"min_line_length" json:"min_line_length"` // px, along x or y
	MaxLineGap    float64 `mapstructure:"max_line_gap" yaml:"max_line_gap" json:"max_line_gap"`          // px
	MaxLines      int     `mapstructure:"max_lines" yaml:"max_lines" json:"max_lines"`                   // 0 = unlimited
	Seed          uint64  `mapstructure:"seed" yaml:"seed" json:"seed"`                                  // visiting order seed
}

// DefaultConfig returns the parameters used for lane footage.
func DefaultConfig() Config {
	return Config{
		Rho:           1,
		Theta:         math.Pi / 180,
		Threshold:     20,
		MinLineLength: 10,
		MaxLineGap:    50,
		MaxLines:      0,
		Seed:          1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Rho <= 0 {
		return fmt.Errorf("rho must be positive, got %g", c.Rho)
	}
	if c.Theta <= 0 || c.Theta > math.Pi {
		return fmt.Errorf("theta must be in (0, π], got %g", c.Theta)
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %d", c.Threshold)
	}
	if c.MinLineLength < 0 || c.MaxLineGap < 0 {
		return errors.New("line length and gap must be non-negative")
	}
	return nil
}

// fixed-point precision used while walking along a line
const shift = 16

// Detect returns line segments as x1, y1, x2, y2 tuples. Pixels with a
// non-zero value in edges are edge points.
//
// Edge points are visited in a random order derived from cfg.Seed. Each one
// votes in the accumulator; once a bin reaches cfg.Threshold the line is
// walked in both directions across gaps of up to cfg.MaxLineGap pixels. The
// walked points are removed from the pool and, for kept segments, their votes
// are withdrawn. A segment is kept when it spans at least cfg.MinLineLength
// along x or y.
func Detect(edges edge.Map, cfg Config) ([][4]int, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("hough: %w", err)
	}
	w, h := edges.Width, edges.Height
	if w == 0 || h == 0 {
		return nil, nil
	}

	numAngle := int(math.Round(math.Pi / cfg.Theta))
	// at least one rho bin, even when Rho exceeds the map diagonal
	numRho := max(int(math.Round(float64((w+h)*2+1)/cfg.Rho)), 1)
	irho := 1 / cfg.Rho
	lineGap := int(cfg.MaxLineGap)
	lineLength := int(cfg.MinLineLength)

	trig := make([]float64, 2*numAngle)
	for n := range numAngle {
		ang := float64(n) * cfg.Theta
		trig[2*n] = math.Cos(ang) * irho
		trig[2*n+1] = math.Sin(ang) * irho
	}

	accum := mempool.GetInt32(numAngle * numRho)
	defer mempool.PutInt32(accum)
	mask := mempool.GetBool(w * h)
	defer mempool.PutBool(mask)
	voted := mempool.GetBool(w * h)
	defer mempool.PutBool(voted)

	points := make([]int, 0, edges.Count())
	for i, v := range edges.Pix[:w*h] {
		if v != 0 {
			mask[i] = true
			points = append(points, i)
		}
	}

	vote := func(x, y, delta int) (maxVal int32, maxN int) {
		maxVal = int32(cfg.Threshold - 1)
		for n := range numAngle {
			r := int(math.Round(float64(x)*trig[2*n]+float64(y)*trig[2*n+1])) + (numRho-1)/2
			r = min(max(r, 0), numRho-1)
			v := accum[n*numRho+r] + int32(delta)
			accum[n*numRho+r] = v
			if maxVal < v {
				maxVal, maxN = v, n
			}
		}
		return maxVal, maxN
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	var lines [][4]int

	for count := len(points); count > 0; count-- {
		// pick a random remaining point and drop it from the pool
		idx := rng.IntN(count)
		p := points[idx]
		points[idx] = points[count-1]

		if !mask[p] {
			continue
		}
		j, i := p%w, p/w

		maxVal, maxN := vote(j, i, 1)
		voted[p] = true
		if maxVal < int32(cfg.Threshold) {
			continue
		}

		// walk direction along the line; the major axis advances by one pixel,
		// the minor one in fixed point
		a := -trig[2*maxN+1]
		b := trig[2*maxN]
		x0, y0 := j, i
		var dx0, dy0 int
		xflag := math.Abs(a) > math.Abs(b)
		if xflag {
			dx0 = sign(a)
			dy0 = int(math.Round(b * (1 << shift) / math.Abs(a)))
			y0 = (y0 << shift) + (1 << (shift - 1))
		} else {
			dy0 = sign(b)
			dx0 = int(math.Round(a * (1 << shift) / math.Abs(b)))
			x0 = (x0 << shift) + (1 << (shift - 1))
		}

		pos := func(x, y int) (int, int) {
			if xflag {
				return x, y >> shift
			}
			return x >> shift, y
		}

		var ends [2][2]int
		for k := range 2 {
			gap := 0
			dx, dy := dx0, dy0
			if k > 0 {
				dx, dy = -dx, -dy
			}
			for x, y := x0, y0; ; x, y = x+dx, y+dy {
				j1, i1 := pos(x, y)
				if j1 < 0 || j1 >= w || i1 < 0 || i1 >= h {
					break
				}
				if mask[i1*w+j1] {
					gap = 0
					ends[k] = [2]int{j1, i1}
				} else if gap++; gap > lineGap {
					break
				}
			}
		}

		good := abs(ends[1][0]-ends[0][0]) >= lineLength || abs(ends[1][1]-ends[0][1]) >= lineLength

		for k := range 2 {
			dx, dy := dx0, dy0
			if k > 0 {
				dx, dy = -dx, -dy
			}
			for x, y := x0, y0; ; x, y = x+dx, y+dy {
				j1, i1 := pos(x, y)
				if q := i1*w + j1; mask[q] {
					if good && voted[q] {
						vote(j1, i1, -1)
					}
					mask[q] = false
				}
				if j1 == ends[k][0] && i1 == ends[k][1] {
					break
				}
			}
		}

		if good {
			lines = append(lines, [4]int{ends[0][0], ends[0][1], ends[1][0], ends[1][1]})
			if cfg.MaxLines > 0 && len(lines) >= cfg.MaxLines {
				break
			}
		}
	}

	return lines, nil
}

func sign(v float64) int {
	if v > 0 {
		return 1
	}
	return -1
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
