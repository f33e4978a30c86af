package metrics

import (
	"gonum.org/v1/gonum/mat"
)

// GradientNorm is the mean Frobenius norm of the state Jacobian over the
// samples that carry one.
type GradientNorm struct {
	sum     float64
	samples int
}

func NewGradientNorm() *GradientNorm { return &GradientNorm{} }

func (g *GradientNorm) Name() string { return "gradient_norm" }

func (g *GradientNorm) Observe(s Sample) {
	if s.Jacobians == nil || s.Jacobians.State == nil {
		return
	}
	g.sum += mat.Norm(s.Jacobians.State, 2)
	g.samples++
}

func (g *GradientNorm) Value() float64 {
	if g.samples == 0 {
		return 0
	}
	return g.sum / float64(g.samples)
}

func (g *GradientNorm) Reset() {
	g.sum = 0
	g.samples = 0
}

// SkipRate is the fraction of samples whose Jacobian was skipped after a
// divergent perturbed rollout.
type SkipRate struct {
	skipped int
	samples int
}

func NewSkipRate() *SkipRate { return &SkipRate{} }

func (r *SkipRate) Name() string { return "skip_rate" }

func (r *SkipRate) Observe(s Sample) {
	r.samples++
	if s.Skipped {
		r.skipped++
	}
}

func (r *SkipRate) Value() float64 {
	if r.samples == 0 {
		return 0
	}
	return float64(r.skipped) / float64(r.samples)
}

func (r *SkipRate) Reset() {
	r.skipped = 0
	r.samples = 0
}
