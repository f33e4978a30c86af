// Package reward provides instantaneous reward functions evaluated by the
// physics engine after every transition.
package reward

import (
	"fmt"
	"math"

	"github.com/san-kum/simgrad/internal/dynamo"
)

// Func scores the transition x --u--> next. Implementations must be pure.
type Func interface {
	Name() string
	Reward(x dynamo.State, u dynamo.Control, next dynamo.State) float64
}

// Quadratic is −Σ Q_i (next_i − target_i)² − Σ R_j u_j². Missing weights
// default to 1 for the state and 0 for the control.
type Quadratic struct {
	Q      []float64
	R      []float64
	Target dynamo.State
}

func NewQuadratic(q, r []float64, target dynamo.State) *Quadratic {
	return &Quadratic{Q: q, R: r, Target: target}
}

func (q *Quadratic) Name() string { return "quadratic" }

func (q *Quadratic) Reward(x dynamo.State, u dynamo.Control, next dynamo.State) float64 {
	sum := 0.0
	for i, v := range next {
		w := 1.0
		if q.Q != nil {
			w = 0
			if i < len(q.Q) {
				w = q.Q[i]
			}
		}
		if i < len(q.Target) {
			v -= q.Target[i]
		}
		sum += w * v * v
	}
	for j, v := range u {
		if j < len(q.R) {
			sum += q.R[j] * v * v
		}
	}
	return -sum
}

type ControlEffort struct {
	Weight float64
}

func NewControlEffort(weight float64) *ControlEffort {
	return &ControlEffort{Weight: weight}
}

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Reward(x dynamo.State, u dynamo.Control, next dynamo.State) float64 {
	sum := 0.0
	for _, v := range u {
		sum += v * v
	}
	return -c.Weight * sum
}

// Height rewards the value of one qpos coordinate, e.g. the z of a free body.
type Height struct {
	Index int
}

func NewHeight(index int) *Height {
	return &Height{Index: index}
}

func (h *Height) Name() string { return "height" }

func (h *Height) Reward(x dynamo.State, u dynamo.Control, next dynamo.State) float64 {
	if h.Index >= len(next) {
		return 0
	}
	return next[h.Index]
}

// Upright is cos θ of a hinge angle measured from the vertical.
type Upright struct {
	Index int
}

func NewUpright(index int) *Upright {
	return &Upright{Index: index}
}

func (u *Upright) Name() string { return "upright" }

func (u *Upright) Reward(x dynamo.State, ctrl dynamo.Control, next dynamo.State) float64 {
	if u.Index >= len(next) {
		return 0
	}
	return math.Cos(next[u.Index])
}

type Sum struct {
	Terms []Func
}

func NewSum(terms ...Func) *Sum {
	return &Sum{Terms: terms}
}

func (s *Sum) Name() string {
	name := "sum("
	for i, t := range s.Terms {
		if i > 0 {
			name += "+"
		}
		name += t.Name()
	}
	return name + ")"
}

func (s *Sum) Reward(x dynamo.State, u dynamo.Control, next dynamo.State) float64 {
	total := 0.0
	for _, t := range s.Terms {
		total += t.Reward(x, u, next)
	}
	return total
}

// Zero is used when a simulator needs no reward.
type Zero struct{}

func (Zero) Name() string { return "zero" }

func (Zero) Reward(x dynamo.State, u dynamo.Control, next dynamo.State) float64 { return 0 }

// New builds a reward by name. index selects the coordinate of height and
// upright rewards.
func New(name string, index int) (Func, error) {
	switch name {
	case "", "quadratic":
		return NewQuadratic(nil, nil, nil), nil
	case "control_effort":
		return NewControlEffort(1), nil
	case "height":
		return NewHeight(index), nil
	case "upright":
		return NewUpright(index), nil
	case "upright_effort":
		return NewSum(NewUpright(index), NewControlEffort(0.01)), nil
	case "zero":
		return Zero{}, nil
	default:
		return nil, fmt.Errorf("unknown reward: %s", name)
	}
}
