package physics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/joint"
)

// Linear is qacc = Kq·qpos + Kv·qvel + B·u on n slide joints with unit mass.
// With semi-implicit Euler its one-step map is exactly Discrete(dt).
type Linear struct {
	Kq *mat.Dense
	Kv *mat.Dense
	B  *mat.Dense

	model *joint.Model
	zero  []float64
}

func NewLinear(kq, kv, b *mat.Dense) *Linear {
	n, _ := kq.Dims()
	_, nu := b.Dims()
	joints := make([]joint.Joint, n)
	for i := range joints {
		joints[i] = joint.Joint{Kind: joint.Slide}
	}
	return &Linear{
		Kq:    kq,
		Kv:    kv,
		B:     b,
		model: joint.NewModel(nu, 0, joints...),
		zero:  make([]float64, n),
	}
}

// NewOscillator is two coupled damped oscillators with two inputs.
func NewOscillator() *Linear {
	return NewLinear(
		mat.NewDense(2, 2, []float64{-4, 1, 1, -2}),
		mat.NewDense(2, 2, []float64{-0.2, 0, 0.1, -0.3}),
		mat.NewDense(2, 2, []float64{1, 0, 0.5, 1}),
	)
}

func (l *Linear) Name() string { return "linear" }

func (l *Linear) Model() *joint.Model { return l.model }

func (l *Linear) Mass(qpos []float64, m *mat.SymDense) {
	for i := range qpos {
		m.SetSym(i, i, 1)
	}
}

func (l *Linear) Force(d *dynamo.Data, f []float64) {
	fv := mat.NewVecDense(len(f), f)
	fv.MulVec(l.Kq, mat.NewVecDense(len(d.QPos), d.QPos))

	var tmp mat.VecDense
	tmp.MulVec(l.Kv, mat.NewVecDense(len(d.QVel), d.QVel))
	fv.AddVec(fv, &tmp)
	if len(d.Ctrl) > 0 {
		tmp.MulVec(l.B, mat.NewVecDense(len(d.Ctrl), d.Ctrl))
		fv.AddVec(fv, &tmp)
	}
}

func (l *Linear) Damping() []float64 { return l.zero }

// Discrete returns the exact semi-implicit Euler transition
//
//	A = [I + dt²Kq   dt(I + dt·Kv)]    B = [dt²·B]
//	    [dt·Kq       I + dt·Kv    ]        [dt·B ]
func (l *Linear) Discrete(dt float64) (a, b *mat.Dense) {
	n, _ := l.Kq.Dims()
	_, nu := l.B.Dims()

	var vq, vv mat.Dense
	vq.Scale(dt, l.Kq)
	vv.Scale(dt, l.Kv)
	for i := 0; i < n; i++ {
		vv.Set(i, i, vv.At(i, i)+1)
	}
	var qq, qv mat.Dense
	qq.Scale(dt, &vq)
	for i := 0; i < n; i++ {
		qq.Set(i, i, qq.At(i, i)+1)
	}
	qv.Scale(dt, &vv)

	a = mat.NewDense(2*n, 2*n, nil)
	a.Slice(0, n, 0, n).(*mat.Dense).Copy(&qq)
	a.Slice(0, n, n, 2*n).(*mat.Dense).Copy(&qv)
	a.Slice(n, 2*n, 0, n).(*mat.Dense).Copy(&vq)
	a.Slice(n, 2*n, n, 2*n).(*mat.Dense).Copy(&vv)

	var vu, qu mat.Dense
	vu.Scale(dt, l.B)
	qu.Scale(dt, &vu)
	b = mat.NewDense(2*n, nu, nil)
	b.Slice(0, n, 0, nu).(*mat.Dense).Copy(&qu)
	b.Slice(n, 2*n, 0, nu).(*mat.Dense).Copy(&vu)
	return a, b
}
