// Package perturb produces perturbed copies of a snapshot along a single
// control, velocity or position coordinate.
package perturb

import (
	"fmt"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/joint"
	"github.com/san-kum/simgrad/internal/snapshot"
)

type Channel int

const (
	Control Channel = iota
	Velocity
	Position
)

func (c Channel) String() string {
	switch c {
	case Control:
		return "ctrl"
	case Velocity:
		return "qvel"
	case Position:
		return "qpos"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Len is the number of coordinates of the channel in model m.
func (c Channel) Len(m *joint.Model) int {
	switch c {
	case Control:
		return m.Nu
	case Velocity:
		return m.Nv
	case Position:
		return m.Nq
	default:
		return 0
	}
}

// IsState reports whether the channel perturbs the state rather than the control.
func (c Channel) IsState() bool { return c == Velocity || c == Position }

// Apply returns a copy of s moved by eps along coordinate index of ch.
// Position coordinates follow the model's rule: Euclidean coordinates are
// shifted, quaternion coordinates are rotated in the tangent space and the
// quaternion scalar part is left unchanged. s is never modified.
func Apply(m *joint.Model, s *snapshot.Snapshot, ch Channel, index int, eps float64) (*snapshot.Snapshot, error) {
	if n := ch.Len(m); index < 0 || index >= n {
		return nil, fmt.Errorf("%w: %s[%d] with length %d", dynamo.ErrIndexOutOfRange, ch, index, n)
	}

	out := s.Clone()
	switch ch {
	case Control:
		out.Ctrl[index] += eps
	case Velocity:
		out.QVel[index] += eps
	case Position:
		applyPosition(m.Rule(index), out.QPos, eps)
	}
	return out, nil
}

func applyPosition(r joint.Rule, qpos []float64, eps float64) {
	switch r := r.(type) {
	case joint.Direct:
		qpos[r.Index] += eps
	case joint.Tangent:
		joint.IntegrateQuat(qpos[r.QuatAdr:r.QuatAdr+4], r.Omega(eps), 1)
	case joint.Inert:
	}
}
