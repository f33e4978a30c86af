package jacobian

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/simgrad/internal/dynamo"
)

// Jacobians holds the derivatives of one transition. State columns are
// ordered qpos then qvel, rows are qpos‖qvel of the next state.
type Jacobians struct {
	Nq, Nv, Nu int

	// State is d(next)/d(state), (nq+nv)×(nq+nv).
	State *mat.Dense
	// Control is d(next)/d(ctrl), (nq+nv)×nu; nil when nu is 0.
	Control *mat.Dense
	// Reward is d(reward)/d(state), 1×(nq+nv); nil when the source has no reward.
	Reward *mat.Dense
	// RewardControl is d(reward)/d(ctrl), 1×nu.
	RewardControl *mat.Dense
}

func newJacobians(nq, nv, nu int) *Jacobians {
	n := nq + nv
	j := &Jacobians{
		Nq:     nq,
		Nv:     nv,
		Nu:     nu,
		State:  mat.NewDense(n, n, nil),
		Reward: mat.NewDense(1, n, nil),
	}
	if nu > 0 {
		j.Control = mat.NewDense(n, nu, nil)
		j.RewardControl = mat.NewDense(1, nu, nil)
	}
	return j
}

func (j *Jacobians) dim() int { return j.Nq + j.Nv }

// Position is the d(next)/d(qpos) block of State.
func (j *Jacobians) Position() mat.Matrix { return j.State.Slice(0, j.dim(), 0, j.Nq) }

// Velocity is the d(next)/d(qvel) block of State.
func (j *Jacobians) Velocity() mat.Matrix { return j.State.Slice(0, j.dim(), j.Nq, j.dim()) }

func (j *Jacobians) RewardPosition() mat.Matrix { return j.Reward.Slice(0, 1, 0, j.Nq) }

func (j *Jacobians) RewardVelocity() mat.Matrix { return j.Reward.Slice(0, 1, j.Nq, j.dim()) }

// Compose chains the state Jacobians of consecutive transitions, given in
// time order, into d(x_k)/d(x_0) = J_k ··· J_1.
func Compose(js ...*Jacobians) (*mat.Dense, error) {
	if len(js) == 0 {
		return nil, fmt.Errorf("jacobian: nothing to compose")
	}

	n := js[0].dim()
	out := mat.DenseCopyOf(js[0].State)
	for i, j := range js[1:] {
		if j.dim() != n {
			return nil, fmt.Errorf("%w: transition %d has state width %d, want %d",
				dynamo.ErrShapeMismatch, i+1, j.dim(), n)
		}
		var next mat.Dense
		next.Mul(j.State, out)
		out = &next
	}
	return out, nil
}

type jacobiansJSON struct {
	Nq            int         `json:"nq"`
	Nv            int         `json:"nv"`
	Nu            int         `json:"nu"`
	State         [][]float64 `json:"state"`
	Control       [][]float64 `json:"control,omitempty"`
	Reward        []float64   `json:"reward,omitempty"`
	RewardControl []float64   `json:"reward_control,omitempty"`
}

func (j *Jacobians) MarshalJSON() ([]byte, error) {
	out := jacobiansJSON{
		Nq:    j.Nq,
		Nv:    j.Nv,
		Nu:    j.Nu,
		State: Rows(j.State),
	}
	if j.Control != nil {
		out.Control = Rows(j.Control)
	}
	if j.Reward != nil {
		out.Reward = mat.Row(nil, 0, j.Reward)
	}
	if j.RewardControl != nil {
		out.RewardControl = mat.Row(nil, 0, j.RewardControl)
	}
	return json.Marshal(out)
}

func (j *Jacobians) UnmarshalJSON(data []byte) error {
	var in jacobiansJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	n := in.Nq + in.Nv
	state, err := fromRows(in.State, n, n)
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}

	*j = Jacobians{Nq: in.Nq, Nv: in.Nv, Nu: in.Nu, State: state}
	if in.Control != nil {
		if j.Control, err = fromRows(in.Control, n, in.Nu); err != nil {
			return fmt.Errorf("control: %w", err)
		}
	}
	if in.Reward != nil {
		if j.Reward, err = fromRows([][]float64{in.Reward}, 1, n); err != nil {
			return fmt.Errorf("reward: %w", err)
		}
	}
	if in.RewardControl != nil {
		if j.RewardControl, err = fromRows([][]float64{in.RewardControl}, 1, in.Nu); err != nil {
			return fmt.Errorf("reward_control: %w", err)
		}
	}
	return nil
}

// Rows copies m into a row-major slice of slices.
func Rows(m mat.Matrix) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

func fromRows(rows [][]float64, r, c int) (*mat.Dense, error) {
	if len(rows) != r {
		return nil, fmt.Errorf("%w: %d rows, want %d", dynamo.ErrShapeMismatch, len(rows), r)
	}
	data := make([]float64, 0, r*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", dynamo.ErrShapeMismatch, i, len(row), c)
		}
		data = append(data, row...)
	}
	return mat.NewDense(r, c, data), nil
}
