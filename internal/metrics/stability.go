package metrics

// Stability is the share of samples whose state stays within ±Bound in
// every coordinate. Non-finite states always count as excursions.
type Stability struct {
	Bound float64

	inside, total int
}

func NewStability(bound float64) *Stability {
	return &Stability{Bound: bound}
}

func (s *Stability) Name() string { return "stability" }

func (s *Stability) Observe(smp Sample) {
	s.total++
	if smp.State.MaxAbs() <= s.Bound {
		s.inside++
	}
}

// Value is 1 before any sample.
func (s *Stability) Value() float64 {
	if s.total == 0 {
		return 1
	}
	return float64(s.inside) / float64(s.total)
}

func (s *Stability) Reset() { s.inside, s.total = 0, 0 }
