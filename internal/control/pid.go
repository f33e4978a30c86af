package control

import "github.com/san-kum/simgrad/internal/dynamo"

// PD drives qpos[i] towards Target[i] with actuator i, for every i < nu.
// Nq locates qvel inside the state.
type PD struct {
	Kp     float64
	Kd     float64
	Target []float64
	Nq     int
	Nu     int
}

func NewPD(kp, kd float64, target []float64, nq, nu int) *PD {
	return &PD{
		Kp:     kp,
		Kd:     kd,
		Target: target,
		Nq:     nq,
		Nu:     nu,
	}
}

func (p *PD) Compute(x dynamo.State, t float64) dynamo.Control {
	u := make(dynamo.Control, p.Nu)
	for i := range u {
		if i >= p.Nq || p.Nq+i >= len(x) {
			break
		}
		target := 0.0
		if i < len(p.Target) {
			target = p.Target[i]
		}
		u[i] = p.Kp*(target-x[i]) - p.Kd*x[p.Nq+i]
	}
	return u
}

func (p *PD) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp": p.Kp,
		"Kd": p.Kd,
	}
}
