package joint

import "fmt"

type Kind int

const (
	Free Kind = iota
	Ball
	Hinge
	Slide
)

func (k Kind) String() string {
	switch k {
	case Free:
		return "free"
	case Ball:
		return "ball"
	case Hinge:
		return "hinge"
	case Slide:
		return "slide"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// PosDim is the number of qpos entries the joint occupies.
func (k Kind) PosDim() int {
	switch k {
	case Free:
		return 7
	case Ball:
		return 4
	default:
		return 1
	}
}

// VelDim is the number of qvel entries (degrees of freedom) of the joint.
func (k Kind) VelDim() int {
	switch k {
	case Free:
		return 6
	case Ball:
		return 3
	default:
		return 1
	}
}

// quatOffset is the offset of the quaternion inside the joint's qpos block,
// or -1 when the joint has no orientation.
func (k Kind) quatOffset() int {
	switch k {
	case Free:
		return 3
	case Ball:
		return 0
	default:
		return -1
	}
}

type Joint struct {
	Name    string
	Kind    Kind
	QPosAdr int
	DOFAdr  int
}

// DOF is the static descriptor of one velocity index.
type DOF struct {
	Joint int
	Kind  Kind
	// QuatAdr is the qpos address of the owning quaternion, -1 otherwise.
	QuatAdr int
	// Axis is the tangent axis inside the quaternion frame (0..2).
	Axis int
	// QPos is the qpos index moved by this DOF when it is Euclidean, -1 otherwise.
	QPos int
}

func (d DOF) InQuaternion() bool { return d.QuatAdr >= 0 }

type Model struct {
	Joints []Joint
	Nq     int
	Nv     int
	Nu     int
	Na     int

	dofs  []DOF
	rules []Rule
}

// NewModel lays out joints in order, assigning qpos and dof addresses.
// nu is the actuator count, na the length of the activation vector.
func NewModel(nu, na int, joints ...Joint) *Model {
	m := &Model{Nu: nu, Na: na}

	for j, jt := range joints {
		jt.QPosAdr = m.Nq
		jt.DOFAdr = m.Nv
		m.Joints = append(m.Joints, jt)

		qoff := jt.Kind.quatOffset()
		for k := 0; k < jt.Kind.VelDim(); k++ {
			d := DOF{Joint: j, Kind: jt.Kind, QuatAdr: -1, QPos: -1}
			if qoff >= 0 && k >= qoff {
				d.QuatAdr = jt.QPosAdr + qoff
				d.Axis = k - qoff
			} else {
				d.QPos = jt.QPosAdr + k
			}
			m.dofs = append(m.dofs, d)
		}

		for k := 0; k < jt.Kind.PosDim(); k++ {
			dof := jt.DOFAdr + k
			switch {
			case qoff < 0 || k < qoff:
				m.rules = append(m.rules, Direct{Index: jt.QPosAdr + k, DOF: dof})
			case k == qoff:
				m.rules = append(m.rules, Inert{QuatAdr: jt.QPosAdr + qoff})
			default:
				axis := k - qoff - 1
				m.rules = append(m.rules, Tangent{QuatAdr: jt.QPosAdr + qoff, Axis: axis, DOF: jt.DOFAdr + qoff + axis})
			}
		}

		m.Nq += jt.Kind.PosDim()
		m.Nv += jt.Kind.VelDim()
	}

	return m
}

func (m *Model) DOF(i int) DOF { return m.dofs[i] }

func (m *Model) DOFs() []DOF { return m.dofs }

// Rule returns the perturbation rule owning position index i.
func (m *Model) Rule(i int) Rule { return m.rules[i] }

func (m *Model) Rules() []Rule { return m.rules }

func (m *Model) HasQuaternion() bool {
	for _, j := range m.Joints {
		if j.Kind.quatOffset() >= 0 {
			return true
		}
	}
	return false
}

// StateDim is nq+nv, the width of qpos‖qvel.
func (m *Model) StateDim() int { return m.Nq + m.Nv }

// Neutral returns the reference configuration: zeros with identity quaternions.
func (m *Model) Neutral() []float64 {
	q := make([]float64, m.Nq)
	for _, j := range m.Joints {
		if off := j.Kind.quatOffset(); off >= 0 {
			q[j.QPosAdr+off] = 1
		}
	}
	return q
}

// Integrate advances qpos in place by qvel over dt. Quaternion blocks are
// integrated on the manifold with the local angular velocity.
func (m *Model) Integrate(qpos, qvel []float64, dt float64) {
	for _, j := range m.Joints {
		qoff := j.Kind.quatOffset()
		if qoff < 0 {
			qpos[j.QPosAdr] += dt * qvel[j.DOFAdr]
			continue
		}
		for k := 0; k < qoff; k++ {
			qpos[j.QPosAdr+k] += dt * qvel[j.DOFAdr+k]
		}
		a := j.QPosAdr + qoff
		w := j.DOFAdr + qoff
		IntegrateQuat(qpos[a:a+4], [3]float64{qvel[w], qvel[w+1], qvel[w+2]}, dt)
	}
}

// Normalize re-projects every quaternion block of qpos onto the unit sphere.
func (m *Model) Normalize(qpos []float64) {
	for _, j := range m.Joints {
		if off := j.Kind.quatOffset(); off >= 0 {
			a := j.QPosAdr + off
			normalizeQuat(qpos[a : a+4])
		}
	}
}
