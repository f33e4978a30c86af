package physics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/joint"
)

// CartPole is a cart on a slide with a pole on a hinge, θ = 0 upright.
// The single actuator pushes the cart.
type CartPole struct {
	CartMass    float64
	PoleMass    float64
	PoleLength  float64
	Gravity     float64
	CartDamping float64
	PoleDamping float64

	model *joint.Model
}

func NewCartPole() *CartPole {
	return &CartPole{
		CartMass:    1.0,
		PoleMass:    0.1,
		PoleLength:  1.0,
		Gravity:     9.81,
		CartDamping: 0.05,
		PoleDamping: 0.01,
		model: joint.NewModel(1, 0,
			joint.Joint{Name: "cart", Kind: joint.Slide},
			joint.Joint{Name: "pole", Kind: joint.Hinge},
		),
	}
}

func (c *CartPole) Name() string { return "cartpole" }

func (c *CartPole) Model() *joint.Model { return c.model }

func (c *CartPole) Mass(qpos []float64, m *mat.SymDense) {
	mc, mp, l := c.CartMass, c.PoleMass, c.PoleLength
	m.SetSym(0, 0, mc+mp)
	m.SetSym(0, 1, mp*l*math.Cos(qpos[1]))
	m.SetSym(1, 1, mp*l*l)
}

func (c *CartPole) Force(d *dynamo.Data, f []float64) {
	mp, l := c.PoleMass, c.PoleLength
	theta, omega := d.QPos[1], d.QVel[1]
	sint := math.Sin(theta)

	f[0] = d.Ctrl[0] + mp*l*sint*omega*omega
	f[1] = mp * c.Gravity * l * sint
}

func (c *CartPole) Damping() []float64 { return []float64{c.CartDamping, c.PoleDamping} }

func (c *CartPole) GetParams() map[string]float64 {
	return map[string]float64{
		"cart_mass":   c.CartMass,
		"pole_mass":   c.PoleMass,
		"pole_length": c.PoleLength,
		"gravity":     c.Gravity,
	}
}

func (c *CartPole) SetParam(name string, value float64) error {
	switch name {
	case "cart_mass":
		c.CartMass = value
	case "pole_mass":
		c.PoleMass = value
	case "pole_length":
		c.PoleLength = value
	case "gravity":
		c.Gravity = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
