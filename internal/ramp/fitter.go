package ramp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"quicklook-go/internal/linalg"
	"quicklook-go/internal/noise"
)

const (
	DefaultTolerance     = 1e-4
	DefaultMaxIterations = 3
)

// Fitter estimates a count rate from successive read differences.
//
// Differences d_i = r_i − r_{i−1} share read noise with their neighbours,
// so their covariance is tridiagonal: gain·rate·dt_i + 2σ² on the
// diagonal and −σ² between differences that share a read. The fitter
// factors that band in O(n), whitens the differences, and hands the
// whitened system to the least-squares solver. The Poisson term depends
// on the rate being estimated, so the weights are refined from the
// previous estimate until the rate moves less than Tolerance (relative)
// or MaxIterations passes have run.
//
// The zero value uses linalg.Kernel and the default tolerances.
type Fitter struct {
	Solver        linalg.Solver
	Tolerance     float64
	MaxIterations int
}

// NewFitter returns a Fitter with default settings.
func NewFitter() Fitter {
	return Fitter{Solver: linalg.Kernel{}, Tolerance: DefaultTolerance, MaxIterations: DefaultMaxIterations}
}

// Fit fits a ramp whose reads are all considered valid.
func (f Fitter) Fit(r Ramp, model noise.Model) (FitResult, error) {
	if r.Len() < 2 {
		return FitResult{}, fmt.Errorf("%w: %d reads", ErrInsufficientReads, r.Len())
	}
	return f.FitSegments([]Ramp{r}, model)
}

// FitSegments fits one pixel whose valid reads fall into several
// contiguous segments. Differences are only taken inside a segment, so a
// discontinuity between segments does not bias the rate.
func (f Fitter) FitSegments(segments []Ramp, model noise.Model) (FitResult, error) {
	for _, seg := range segments {
		if err := seg.Validate(); err != nil {
			return FitResult{}, err
		}
	}
	diffs := differences(segments)
	if len(diffs) == 0 {
		return FitResult{}, fmt.Errorf("%w: no segment holds two reads", ErrInsufficientReads)
	}
	sol, err := f.solve(diffs, model)
	if err != nil {
		return FitResult{}, err
	}
	return sol.result(), nil
}

// difference is one usable pair of consecutive valid reads.
type difference struct {
	index  int // read index of the later read
	delta  float64
	dt     float64
	shared bool // earlier read is the later read of the previous difference
}

func differences(segments []Ramp) []difference {
	n := 0
	for _, seg := range segments {
		if seg.Len() > 1 {
			n += seg.Len() - 1
		}
	}
	out := make([]difference, 0, n)
	for _, seg := range segments {
		for i := 1; i < seg.Len(); i++ {
			prev, cur := seg.Reads[i-1], seg.Reads[i]
			out = append(out, difference{
				index:  cur.Index,
				delta:  cur.Counts - prev.Counts,
				dt:     cur.Time - prev.Time,
				shared: i > 1,
			})
		}
	}
	return out
}

type solution struct {
	rate      float64
	variance  float64
	chiSquare float64
	diffs     int
}

func (s solution) result() FitResult {
	res := FitResult{Rate: s.rate, Variance: s.variance, ChiSquare: s.chiSquare}
	if s.diffs == 1 {
		res.ChiSquare = 0
		res.Flags |= LowDOF
	}
	return res
}

func (f Fitter) settings() (linalg.Solver, float64, int) {
	solver := f.Solver
	if solver == nil {
		solver = linalg.Kernel{}
	}
	tol := f.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	iters := f.MaxIterations
	if iters < 1 {
		iters = DefaultMaxIterations
	}
	return solver, tol, iters
}

func (f Fitter) solve(diffs []difference, model noise.Model) (solution, error) {
	solver, tol, iters := f.settings()

	var sumDelta, sumDt float64
	for _, d := range diffs {
		if !(d.dt > 0) {
			return solution{}, fmt.Errorf("%w: read %d", ErrInvalidTimes, d.index)
		}
		sumDelta += d.delta
		sumDt += d.dt
	}
	rate := sumDelta / sumDt

	ws := newWorkspace(len(diffs))
	var sol solution
	for pass := 0; pass < iters; pass++ {
		next, err := ws.pass(solver, diffs, model, rate)
		if err != nil {
			return solution{}, err
		}
		sol = next
		moved := math.Abs(next.rate - rate)
		rate = next.rate
		if moved <= tol*math.Abs(rate) {
			break
		}
	}
	return sol, nil
}

// workspace holds the whitened system for one pixel.
type workspace struct {
	z, y, w []float64
}

func newWorkspace(n int) *workspace {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return &workspace{z: make([]float64, n), y: make([]float64, n), w: w}
}

// pass whitens the differences with the covariance implied by rate and
// solves the resulting unit-weight problem.
func (ws *workspace) pass(solver linalg.Solver, diffs []difference, model noise.Model, rate float64) (solution, error) {
	readVar := model.ReadVariance()

	// Forward substitution through the bidiagonal Cholesky factor L of the
	// tridiagonal covariance: L z = dt, L y = delta.
	var prevL float64
	for i, d := range diffs {
		c := model.DifferenceVariance(rate * d.dt)
		var m float64
		if d.shared && i > 0 {
			m = -readVar / prevL
		}
		l2 := c - m*m
		if !(l2 > 0) {
			return solution{}, fmt.Errorf("%w: covariance not positive at read %d", ErrDegenerate, d.index)
		}
		l := math.Sqrt(l2)
		if m != 0 {
			ws.z[i] = (d.dt - m*ws.z[i-1]) / l
			ws.y[i] = (d.delta - m*ws.y[i-1]) / l
		} else {
			ws.z[i] = d.dt / l
			ws.y[i] = d.delta / l
		}
		prevL = l
	}

	design := mat.NewDense(len(diffs), 1, ws.z)
	coef, err := solver.SolveWeightedLeastSquares(design, ws.w, ws.y)
	if err != nil {
		return solution{}, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	est := coef[0]

	var weight, chi float64
	for i := range diffs {
		weight += ws.z[i] * ws.z[i]
		r := ws.y[i] - ws.z[i]*est
		chi += r * r
	}
	if !(weight > 0) || math.IsNaN(est) || math.IsInf(est, 0) {
		return solution{}, fmt.Errorf("%w: zero total weight", ErrDegenerate)
	}
	dof := len(diffs) - 1
	if dof < 1 {
		dof = 1
	}
	return solution{
		rate:      est,
		variance:  1 / weight,
		chiSquare: chi / float64(dof),
		diffs:     len(diffs),
	}, nil
}
