package physics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/joint"
)

// Arm is a planar two-link arm with point masses at the link tips. Each
// joint is driven by a muscle whose activation follows its control with
// time constant Tau.
type Arm struct {
	M1, M2   float64
	L1, L2   float64
	Armature float64
	Gain     float64
	Tau      float64
	Friction float64

	model *joint.Model
}

func NewArm() *Arm {
	return &Arm{
		M1:       1.0,
		M2:       1.0,
		L1:       1.0,
		L2:       1.0,
		Armature: 0.1,
		Gain:     5.0,
		Tau:      0.05,
		Friction: 0.1,
		model: joint.NewModel(2, 2,
			joint.Joint{Name: "shoulder", Kind: joint.Hinge},
			joint.Joint{Name: "elbow", Kind: joint.Hinge},
		),
	}
}

func (a *Arm) Name() string { return "arm" }

func (a *Arm) Model() *joint.Model { return a.model }

func (a *Arm) Mass(qpos []float64, m *mat.SymDense) {
	c2 := math.Cos(qpos[1])
	m22 := a.M2 * a.L2 * a.L2
	m12 := m22 + a.M2*a.L1*a.L2*c2
	m11 := (a.M1+a.M2)*a.L1*a.L1 + m22 + 2*a.M2*a.L1*a.L2*c2

	m.SetSym(0, 0, m11+a.Armature)
	m.SetSym(0, 1, m12)
	m.SetSym(1, 1, m22+a.Armature)
}

func (a *Arm) Force(d *dynamo.Data, f []float64) {
	h := a.M2 * a.L1 * a.L2 * math.Sin(d.QPos[1])
	w1, w2 := d.QVel[0], d.QVel[1]

	f[0] = a.Gain*d.Act[0] + h*(2*w1*w2+w2*w2)
	f[1] = a.Gain*d.Act[1] - h*w1*w1
}

func (a *Arm) Damping() []float64 { return []float64{a.Friction, a.Friction} }

func (a *Arm) ActivationRate(d *dynamo.Data, rate []float64) {
	for i := range rate {
		rate[i] = (d.Ctrl[i] - d.Act[i]) / a.Tau
	}
}
