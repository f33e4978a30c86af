package jacobian

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/joint"
	"github.com/san-kum/simgrad/internal/snapshot"
)

// AccelJacobians are derivatives of qacc with respect to the state and the
// control, all nv rows. Position columns are per velocity DOF, so
// quaternion joints are differentiated in their tangent space.
type AccelJacobians struct {
	Nv, Nu   int
	Position *mat.Dense
	Velocity *mat.Dense
	// Control is nil when nu is 0.
	Control *mat.Dense
}

// AccelerationJacobians differentiates the forward dynamics at snap without
// integrating. The center solve is refined warmup times and its qacc becomes
// the warm start of every perturbed solve.
func AccelerationJacobians(ctx context.Context, sim dynamo.Simulator, snap *snapshot.Snapshot, eps float64, warmupPasses int) (*AccelJacobians, error) {
	f, ok := sim.(dynamo.Forwarder)
	if !ok {
		return nil, errors.New("jacobian: acceleration derivatives need a simulator implementing Forward")
	}
	if eps <= 0 {
		eps = DefaultOptions().Epsilon
	}

	base, err := warmup(sim, snap, warmupPasses+1)
	if err != nil {
		return nil, err
	}
	center := append([]float64(nil), base.QAcc...)

	m := sim.Model()
	out := &AccelJacobians{
		Nv:       m.Nv,
		Nu:       m.Nu,
		Position: mat.NewDense(m.Nv, m.Nv, nil),
		Velocity: mat.NewDense(m.Nv, m.Nv, nil),
	}
	if m.Nu > 0 {
		out.Control = mat.NewDense(m.Nv, m.Nu, nil)
	}

	solve := func(channel string, index int, dst *mat.Dense, move func(d *dynamo.Data)) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := snapshot.Restore(sim, base); err != nil {
			return err
		}
		d := sim.Data()
		move(d)
		if err := f.Forward(); err != nil {
			return &dynamo.SimulationError{
				Time:    d.Time,
				Channel: channel,
				Index:   index,
				Wrapped: fmt.Errorf("%w: %v", dynamo.ErrSimulationDivergence, err),
			}
		}
		col := make([]float64, m.Nv)
		for i := range col {
			col[i] = (d.QAcc[i] - center[i]) / eps
		}
		if !dynamo.State(col).IsValid() {
			return &dynamo.SimulationError{
				Time:    d.Time,
				Channel: channel,
				Index:   index,
				Wrapped: fmt.Errorf("%w: non-finite acceleration", dynamo.ErrSimulationDivergence),
			}
		}
		dst.SetCol(index, col)
		return nil
	}

	for i := 0; i < m.Nu; i++ {
		if err := solve("ctrl", i, out.Control, func(d *dynamo.Data) { d.Ctrl[i] += eps }); err != nil {
			return nil, err
		}
	}
	for i := 0; i < m.Nv; i++ {
		if err := solve("qvel", i, out.Velocity, func(d *dynamo.Data) { d.QVel[i] += eps }); err != nil {
			return nil, err
		}
	}
	for i := 0; i < m.Nv; i++ {
		dof := m.DOF(i)
		if err := solve("dof", i, out.Position, func(d *dynamo.Data) { moveDOF(d.QPos, dof, eps) }); err != nil {
			return nil, err
		}
	}

	if err := snapshot.Restore(sim, base); err != nil {
		return nil, err
	}
	return out, nil
}

func moveDOF(qpos []float64, dof joint.DOF, eps float64) {
	if !dof.InQuaternion() {
		qpos[dof.QPos] += eps
		return
	}
	var omega [3]float64
	omega[dof.Axis] = eps
	joint.IntegrateQuat(qpos[dof.QuatAdr:dof.QuatAdr+4], omega, 1)
}

// IntegrateAcceleration turns acceleration derivatives into one-step state
// Jacobians of semi-implicit Euler with step dt:
//
//	v' = v + dt·a(q, v, u)
//	q' = q + dt·v'
//
// It needs nq == nv; models with quaternions are rejected. The reward
// Jacobians of the result are nil.
func IntegrateAcceleration(dt float64, a *AccelJacobians, m *joint.Model) (*Jacobians, error) {
	if m.Nq != m.Nv || a.Nv != m.Nv || a.Nu != m.Nu {
		return nil, fmt.Errorf("%w: acceleration integration needs nq == nv, have nq=%d nv=%d",
			dynamo.ErrShapeMismatch, m.Nq, m.Nv)
	}

	n := m.Nv
	eye := mat.NewDiagDense(n, nil)
	for i := 0; i < n; i++ {
		eye.SetDiag(i, 1)
	}

	// velocity rows
	var dvdq, dvdv mat.Dense
	dvdq.Scale(dt, a.Position)
	dvdv.Scale(dt, a.Velocity)
	dvdv.Add(&dvdv, eye)

	// position rows
	var dqdq, dqdv mat.Dense
	dqdq.Scale(dt, &dvdq)
	dqdq.Add(&dqdq, eye)
	dqdv.Scale(dt, &dvdv)

	j := &Jacobians{Nq: n, Nv: n, Nu: m.Nu, State: mat.NewDense(2*n, 2*n, nil)}
	j.State.Slice(0, n, 0, n).(*mat.Dense).Copy(&dqdq)
	j.State.Slice(0, n, n, 2*n).(*mat.Dense).Copy(&dqdv)
	j.State.Slice(n, 2*n, 0, n).(*mat.Dense).Copy(&dvdq)
	j.State.Slice(n, 2*n, n, 2*n).(*mat.Dense).Copy(&dvdv)

	if a.Control != nil {
		var dvdu, dqdu mat.Dense
		dvdu.Scale(dt, a.Control)
		dqdu.Scale(dt, &dvdu)
		j.Control = mat.NewDense(2*n, m.Nu, nil)
		j.Control.Slice(0, n, 0, m.Nu).(*mat.Dense).Copy(&dqdu)
		j.Control.Slice(n, 2*n, 0, m.Nu).(*mat.Dense).Copy(&dvdu)
	}
	return j, nil
}
