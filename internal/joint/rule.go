package joint

// Rule is the position-space perturbation rule of one qpos index.
// The concrete types are Direct, Tangent and Inert.
type Rule interface {
	rule()
}

// Direct moves qpos[Index] additively. DOF is the velocity index it shares.
type Direct struct {
	Index int
	DOF   int
}

// Tangent moves the quaternion at QuatAdr along local axis Axis.
type Tangent struct {
	QuatAdr int
	Axis    int
	DOF     int
}

// Omega is the angular velocity vector with eps on the rule's axis.
func (t Tangent) Omega(eps float64) [3]float64 {
	var w [3]float64
	w[t.Axis] = eps
	return w
}

// Inert marks the quaternion scalar part. It has no tangent direction, so
// perturbing it is a no-op and its Jacobian column is zero.
type Inert struct {
	QuatAdr int
}

func (Direct) rule()  {}
func (Tangent) rule() {}
func (Inert) rule()   {}
