// Package metrics summarizes a trajectory and the Jacobians computed along it.
package metrics

import (
	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/jacobian"
)

// Sample is one forward step as seen by a metric. Jacobians is nil on steps
// where none were computed or the computation was skipped.
type Sample struct {
	Time      float64
	State     dynamo.State
	Control   dynamo.Control
	Reward    float64
	Jacobians *jacobian.Jacobians
	Skipped   bool
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

// Defaults is the metric set recorded for every run.
func Defaults() []Metric {
	return []Metric{
		NewReturn(),
		NewControlEffort(),
		NewStability(10.0),
		NewGradientNorm(),
		NewSkipRate(),
	}
}

// Collect returns the current value of every metric by name.
func Collect(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
