package sourcing

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// Sentinel errors surfaced when the model has no solution. Callers should
// check with errors.Is; an all-zero plan is never used to signal either case.
var (
	ErrInfeasible = errors.New("sourcing: demand cannot be satisfied")
	ErrUnbounded  = errors.New("sourcing: model is unbounded")
)

// solve converts the model to standard form (Ax = b, x ≥ 0) by appending one
// slack or surplus column per inequality row, then runs the simplex method.
// It returns the optimal variable values (original variables only, slack
// columns stripped) and the optimal objective value.
func solve(m *model) ([]float64, float64, error) {
	numRows := len(m.rows)
	numCols := m.numVars + numRows

	c := make([]float64, numCols)
	copy(c, m.costs)

	a := mat.NewDense(numRows, numCols, nil)
	b := make([]float64, numRows)
	for i, r := range m.rows {
		for idx, coeff := range r.coeffs {
			a.Set(i, idx, coeff)
		}
		// surplus for ≥ rows, slack for ≤ rows
		if r.kind == rowGE {
			a.Set(i, m.numVars+i, -1)
		} else {
			a.Set(i, m.numVars+i, 1)
		}
		b[i] = r.rhs
	}

	_, x, err := lp.Simplex(c, a, b, 0, nil)
	if err != nil {
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return nil, 0, ErrInfeasible
		case errors.Is(err, lp.ErrUnbounded):
			return nil, 0, ErrUnbounded
		default:
			return nil, 0, fmt.Errorf("simplex failed: %w", err)
		}
	}

	objective := 0.0
	for i := 0; i < m.numVars; i++ {
		objective += m.costs[i] * x[i]
	}
	return x[:m.numVars], objective, nil
}
