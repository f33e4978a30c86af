package control

import "github.com/san-kum/simgrad/internal/dynamo"

// None returns no control, which callers treat as "keep the current one".
type None struct{}

func NewNone() *None {
	return &None{}
}

func (n *None) Compute(x dynamo.State, t float64) dynamo.Control {
	return nil
}
