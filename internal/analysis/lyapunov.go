package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/jacobian"
)

var errNoJacobians = errors.New("analysis: no jacobians")

// LyapunovFromJacobians estimates the largest Lyapunov exponent along a
// trajectory by propagating a tangent vector through the state Jacobians
// and renormalizing after every step. dt is the time spanned by one
// Jacobian, i.e. the step size times the lookahead.
//
// A positive value indicates chaos.
func LyapunovFromJacobians(js []*jacobian.Jacobians, dt float64) (float64, error) {
	n, err := check(js, dt)
	if err != nil {
		return 0, err
	}

	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, 1/math.Sqrt(float64(n)))
	}

	sumLog := 0.0
	w := mat.NewVecDense(n, nil)
	for _, j := range js {
		w.MulVec(j.State, v)
		sep := floats.Norm(w.RawVector().Data, 2)
		if sep == 0 {
			return math.Inf(-1), nil
		}
		sumLog += math.Log(sep)
		v.ScaleVec(1/sep, w)
	}

	return sumLog / (float64(len(js)) * dt), nil
}

// LyapunovSpectrum computes every exponent by repeated QR
// re-orthonormalization of the tangent space, largest first.
func LyapunovSpectrum(js []*jacobian.Jacobians, dt float64) ([]float64, error) {
	n, err := check(js, dt)
	if err != nil {
		return nil, err
	}

	q := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		q.Set(i, i, 1)
	}

	sums := make([]float64, n)
	var z, r mat.Dense
	var qr mat.QR
	for _, j := range js {
		z.Mul(j.State, q)
		qr.Factorize(&z)
		qr.QTo(q)
		qr.RTo(&r)
		for i := range sums {
			sums[i] += math.Log(math.Abs(r.At(i, i)))
		}
	}

	total := float64(len(js)) * dt
	for i := range sums {
		sums[i] /= total
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sums)))
	return sums, nil
}

func check(js []*jacobian.Jacobians, dt float64) (int, error) {
	if len(js) == 0 {
		return 0, errNoJacobians
	}
	if dt <= 0 {
		return 0, fmt.Errorf("analysis: dt must be positive, got %g", dt)
	}
	n, _ := js[0].State.Dims()
	for i, j := range js {
		r, c := j.State.Dims()
		if r != n || c != n {
			return 0, fmt.Errorf("%w: jacobian %d is %dx%d, want %dx%d", dynamo.ErrShapeMismatch, i, r, c, n, n)
		}
	}
	return n, nil
}
