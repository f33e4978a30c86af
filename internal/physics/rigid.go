package physics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/joint"
)

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// gyroscopic is −ω × (I·ω) for a diagonal body inertia.
func gyroscopic(inertia, omega [3]float64) [3]float64 {
	l := [3]float64{inertia[0] * omega[0], inertia[1] * omega[1], inertia[2] * omega[2]}
	g := cross(omega, l)
	return [3]float64{-g[0], -g[1], -g[2]}
}

// FreeBody is a rigid body on a free joint pushed by a thrust given in its
// own frame. qvel is [v_world ω_body].
type FreeBody struct {
	BodyMass       float64
	Inertia        [3]float64
	Gravity        float64
	LinearDamping  float64
	AngularDamping float64

	model *joint.Model
}

func NewFreeBody() *FreeBody {
	return &FreeBody{
		BodyMass:       1.0,
		Inertia:        [3]float64{0.1, 0.2, 0.3},
		Gravity:        9.81,
		LinearDamping:  0.05,
		AngularDamping: 0.02,
		model:          joint.NewModel(3, 0, joint.Joint{Name: "root", Kind: joint.Free}),
	}
}

func (b *FreeBody) Name() string { return "freebody" }

func (b *FreeBody) Model() *joint.Model { return b.model }

func (b *FreeBody) Mass(qpos []float64, m *mat.SymDense) {
	for i := 0; i < 3; i++ {
		m.SetSym(i, i, b.BodyMass)
		m.SetSym(3+i, 3+i, b.Inertia[i])
	}
}

func (b *FreeBody) Force(d *dynamo.Data, f []float64) {
	thrust := joint.Rotate(d.QPos[3:7], [3]float64{d.Ctrl[0], d.Ctrl[1], d.Ctrl[2]})
	f[0] = thrust[0]
	f[1] = thrust[1]
	f[2] = thrust[2] - b.BodyMass*b.Gravity

	g := gyroscopic(b.Inertia, [3]float64{d.QVel[3], d.QVel[4], d.QVel[5]})
	copy(f[3:6], g[:])
}

func (b *FreeBody) Damping() []float64 {
	l, a := b.LinearDamping, b.AngularDamping
	return []float64{l, l, l, a, a, a}
}

func (b *FreeBody) GetParams() map[string]float64 {
	return map[string]float64{
		"mass":    b.BodyMass,
		"gravity": b.Gravity,
	}
}

func (b *FreeBody) SetParam(name string, value float64) error {
	switch name {
	case "mass":
		b.BodyMass = value
	case "gravity":
		b.Gravity = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}

// BallPendulum is a bob hanging from a ball joint at distance Length below
// the pivot, driven by body-frame torques.
type BallPendulum struct {
	BobMass float64
	Length  float64
	// Spin is the bob's own moment of inertia about every axis.
	Spin     float64
	Gravity  float64
	Friction float64

	model *joint.Model
}

func NewBallPendulum() *BallPendulum {
	return &BallPendulum{
		BobMass:  1.0,
		Length:   0.5,
		Spin:     0.01,
		Gravity:  9.81,
		Friction: 0.05,
		model:    joint.NewModel(3, 0, joint.Joint{Name: "ball", Kind: joint.Ball}),
	}
}

func (p *BallPendulum) Name() string { return "ball_pendulum" }

func (p *BallPendulum) Model() *joint.Model { return p.model }

func (p *BallPendulum) inertia() [3]float64 {
	ml2 := p.BobMass * p.Length * p.Length
	return [3]float64{ml2 + p.Spin, ml2 + p.Spin, p.Spin}
}

func (p *BallPendulum) Mass(qpos []float64, m *mat.SymDense) {
	in := p.inertia()
	for i := 0; i < 3; i++ {
		m.SetSym(i, i, in[i])
	}
}

func (p *BallPendulum) Force(d *dynamo.Data, f []float64) {
	q := d.QPos[0:4]
	weight := joint.RotateInv(q, [3]float64{0, 0, -p.BobMass * p.Gravity})
	arm := [3]float64{0, 0, -p.Length}
	tau := cross(arm, weight)
	g := gyroscopic(p.inertia(), [3]float64{d.QVel[0], d.QVel[1], d.QVel[2]})

	for i := 0; i < 3; i++ {
		f[i] = d.Ctrl[i] + tau[i] + g[i]
	}
}

func (p *BallPendulum) Damping() []float64 {
	return []float64{p.Friction, p.Friction, p.Friction}
}
