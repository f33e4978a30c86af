package control

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/dynamo"
)

type LQR struct {
	K      *mat.Dense
	Target dynamo.State
}

func NewLQR(k *mat.Dense, target dynamo.State) *LQR {
	return &LQR{K: k, Target: target}
}

// NewLQRFromRows is a convenience for hand-tuned gain tables.
func NewLQRFromRows(k [][]float64, target dynamo.State) *LQR {
	r, c := len(k), len(k[0])
	data := make([]float64, 0, r*c)
	for _, row := range k {
		data = append(data, row...)
	}
	return NewLQR(mat.NewDense(r, c, data), target)
}

func (l *LQR) Compute(x dynamo.State, t float64) dynamo.Control {
	r, c := l.K.Dims()
	e := mat.NewVecDense(c, nil)
	for j := 0; j < c && j < len(x); j++ {
		target := 0.0
		if j < len(l.Target) {
			target = l.Target[j]
		}
		e.SetVec(j, x[j]-target)
	}

	var u mat.VecDense
	u.MulVec(l.K, e)
	out := make(dynamo.Control, r)
	for i := range out {
		out[i] = -u.AtVec(i)
	}
	return out
}

var (
	pendulumGains = [][]float64{{31.62, 10.0}}
	cartpoleGains = [][]float64{{-1.0, -35.36, -1.73, -8.94}}
)

// NewPendulumLQR regulates the pendulum to rest at θ = 0.
func NewPendulumLQR() *LQR {
	return NewLQRFromRows(pendulumGains, dynamo.State{0, 0})
}

// NewCartPoleLQR uses the qpos‖qvel layout [x θ ẋ θ̇].
func NewCartPoleLQR() *LQR {
	return NewLQRFromRows(cartpoleGains, dynamo.State{0, 0, 0, 0})
}

var errRiccati = errors.New("control: discrete Riccati iteration did not converge")

// DiscreteLQR solves the discrete algebraic Riccati equation for
// x' = A x + B u with diagonal costs q (state) and r (control) by fixed-point
// iteration, and returns K = (R + BᵀPB)⁻¹ BᵀPA.
func DiscreteLQR(a, b mat.Matrix, q, r []float64) (*mat.Dense, error) {
	n, _ := a.Dims()
	_, m := b.Dims()
	if len(q) != n || len(r) != m {
		return nil, fmt.Errorf("%w: costs have %d and %d entries, want %d and %d",
			dynamo.ErrShapeMismatch, len(q), len(r), n, m)
	}

	Q := mat.NewDiagDense(n, append([]float64(nil), q...))
	R := mat.NewDiagDense(m, append([]float64(nil), r...))

	P := mat.DenseCopyOf(Q)
	var k mat.Dense
	for iter := 0; iter < 10000; iter++ {
		var btp, btpb, s mat.Dense
		btp.Mul(b.T(), P)
		btpb.Mul(&btp, b)
		s.Add(R, &btpb)

		var btpa mat.Dense
		btpa.Mul(&btp, a)
		if err := k.Solve(&s, &btpa); err != nil {
			return nil, fmt.Errorf("control: singular R + BᵀPB: %w", err)
		}

		// P' = Q + AᵀPA − AᵀPB K
		var atp, atpa, atpb, corr, next mat.Dense
		atp.Mul(a.T(), P)
		atpa.Mul(&atp, a)
		atpb.Mul(&atp, b)
		corr.Mul(&atpb, &k)
		next.Sub(&atpa, &corr)
		next.Add(&next, Q)

		var diff mat.Dense
		diff.Sub(&next, P)
		P = &next
		if mat.Norm(&diff, 1) < 1e-10*(1+mat.Norm(P, 1)) {
			return mat.DenseCopyOf(&k), nil
		}
	}
	return nil, errRiccati
}
