package physics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSolver is returned when the implicit solve does not converge.
var ErrSolver = errors.New("physics: constraint solver did not converge")

// gaussSeidel solves (M + diag(d))·x = b in place, starting from the
// current contents of x. It returns the number of sweeps used.
func gaussSeidel(m *mat.SymDense, d, b, x []float64, tol float64, maxIter int) (int, error) {
	n := len(x)
	for it := 1; it <= maxIter; it++ {
		delta, scale := 0.0, 0.0
		for i := 0; i < n; i++ {
			s := b[i]
			for j := 0; j < n; j++ {
				if j != i {
					s -= m.At(i, j) * x[j]
				}
			}
			xi := s / (m.At(i, i) + d[i])
			delta = math.Max(delta, math.Abs(xi-x[i]))
			scale = math.Max(scale, math.Abs(xi))
			x[i] = xi
		}
		if math.IsNaN(delta) || math.IsInf(delta, 0) {
			return it, fmt.Errorf("%w: non-finite iterate", ErrSolver)
		}
		if delta <= tol*(1+scale) {
			return it, nil
		}
	}
	return maxIter, fmt.Errorf("%w after %d sweeps", ErrSolver, maxIter)
}
