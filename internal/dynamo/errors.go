package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for sensitivity computations.
var (
	// ErrShapeMismatch indicates a snapshot whose nq/nv/nu/na disagree with
	// the live simulator. It is a configuration error and never retried.
	ErrShapeMismatch = errors.New("dynamo: snapshot shape does not match simulator")

	// ErrTrajectoryDivergence indicates the center rollout did not reproduce
	// the forward pass from the same snapshot.
	ErrTrajectoryDivergence = errors.New("dynamo: rollout diverged from forward pass")

	// ErrSimulationDivergence indicates a rollout produced non-finite output
	// or the solver failed to converge.
	ErrSimulationDivergence = errors.New("dynamo: simulation diverged (NaN, Inf or solver failure)")

	// ErrIndexOutOfRange indicates a perturbation index outside its channel.
	ErrIndexOutOfRange = errors.New("dynamo: perturbation index out of range")
)

// SimulationError wraps an error with rollout context.
type SimulationError struct {
	Step    int
	Time    float64
	Channel string
	Index   int
	Wrapped error
}

func (e *SimulationError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
	}
	return fmt.Sprintf("%s[%d] step %d (t=%.4f): %v", e.Channel, e.Index, e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}

// DivergenceError reports the first element where a reproduced rollout
// differs from the reference one.
type DivergenceError struct {
	Field string
	Index int
	Got   float64
	Want  float64
	Time  float64
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("%s at t=%.4f: %s[%d] = %g, forward pass had %g",
		ErrTrajectoryDivergence, e.Time, e.Field, e.Index, e.Got, e.Want)
}

func (e *DivergenceError) Unwrap() error {
	return ErrTrajectoryDivergence
}
