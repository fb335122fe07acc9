// Package linalg adapts gonum to the weighted least-squares contract the
// ramp fitter consumes. Systems are small (a handful of parameters, dozens
// of rows) and every call allocates its own workspace, so a Kernel is safe
// to share between goroutines.
package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimension is returned when design, weights and observations disagree.
	ErrDimension = errors.New("linalg: dimension mismatch")
	// ErrSingular is returned when the weighted normal matrix is not
	// positive definite.
	ErrSingular = errors.New("linalg: singular normal matrix")
)

// Solver is the weighted least-squares primitive.
type Solver interface {
	SolveWeightedLeastSquares(design mat.Matrix, weights, observations []float64) ([]float64, error)
}

// Kernel solves (XᵀWX) β = XᵀWy through a Cholesky factorization.
type Kernel struct{}

// SolveWeightedLeastSquares returns the coefficients β minimising
// Σ w_i (y_i − X_i·β)². Rows with zero weight are ignored.
func (Kernel) SolveWeightedLeastSquares(design mat.Matrix, weights, observations []float64) ([]float64, error) {
	rows, params := design.Dims()
	if params == 0 || len(weights) != rows || len(observations) != rows {
		return nil, fmt.Errorf("%w: design %dx%d, %d weights, %d observations",
			ErrDimension, rows, params, len(weights), len(observations))
	}

	normal := mat.NewSymDense(params, nil)
	rhs := mat.NewVecDense(params, nil)
	for i := 0; i < rows; i++ {
		w := weights[i]
		if w == 0 {
			continue
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: weight %d is %v", ErrDimension, i, w)
		}
		for a := 0; a < params; a++ {
			xa := design.At(i, a)
			rhs.SetVec(a, rhs.AtVec(a)+w*xa*observations[i])
			for b := a; b < params; b++ {
				normal.SetSym(a, b, normal.At(a, b)+w*xa*design.At(i, b))
			}
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(normal); !ok {
		return nil, ErrSingular
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, rhs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	out := make([]float64, params)
	for i := range out {
		out[i] = beta.AtVec(i)
	}
	return out, nil
}
