package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/simgrad/internal/control"
	"github.com/san-kum/simgrad/internal/dynamo"
	"github.com/san-kum/simgrad/internal/integrators"
	"github.com/san-kum/simgrad/internal/metrics"
	"github.com/san-kum/simgrad/internal/physics"
	"github.com/san-kum/simgrad/internal/reward"
)

// Gains parameterize the registered controllers.
type Gains struct {
	Kp     float64
	Kd     float64
	Target []float64
}

type controllerFactory func(p physics.Plant, dt float64, g Gains) (dynamo.Controller, error)

type Registry struct {
	models      map[string]func() physics.Plant
	controllers map[string]controllerFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		models:      make(map[string]func() physics.Plant),
		controllers: make(map[string]controllerFactory),
	}

	r.models["pendulum"] = func() physics.Plant { return physics.NewPendulum() }
	r.models["cartpole"] = func() physics.Plant { return physics.NewCartPole() }
	r.models["freebody"] = func() physics.Plant { return physics.NewFreeBody() }
	r.models["ball_pendulum"] = func() physics.Plant { return physics.NewBallPendulum() }
	r.models["arm"] = func() physics.Plant { return physics.NewArm() }
	r.models["linear"] = func() physics.Plant { return physics.NewOscillator() }

	r.controllers["none"] = func(physics.Plant, float64, Gains) (dynamo.Controller, error) {
		return control.NewNone(), nil
	}
	r.controllers["pd"] = func(p physics.Plant, _ float64, g Gains) (dynamo.Controller, error) {
		m := p.Model()
		if m.Nq != m.Nv {
			return nil, fmt.Errorf("pd controller needs nq == nv, %s has %d and %d", p.Name(), m.Nq, m.Nv)
		}
		return control.NewPD(g.Kp, g.Kd, g.Target, m.Nq, m.Nu), nil
	}
	r.controllers["lqr"] = lqrFor

	return r
}

func lqrFor(p physics.Plant, dt float64, g Gains) (dynamo.Controller, error) {
	switch p := p.(type) {
	case *physics.Pendulum:
		return control.NewPendulumLQR(), nil
	case *physics.CartPole:
		return control.NewCartPoleLQR(), nil
	case *physics.Linear:
		a, b := p.Discrete(dt)
		n, _ := a.Dims()
		_, nu := b.Dims()
		q := make([]float64, n)
		for i := range q {
			q[i] = 1
		}
		rc := make([]float64, nu)
		for i := range rc {
			rc[i] = 0.1
		}
		k, err := control.DiscreteLQR(a, b, q, rc)
		if err != nil {
			return nil, err
		}
		return control.NewLQR(k, g.Target), nil
	default:
		return nil, fmt.Errorf("no lqr gains for model %s", p.Name())
	}
}

// RegisterModel adds or replaces a model factory.
func (r *Registry) RegisterModel(name string, fn func() physics.Plant) {
	r.models[name] = fn
}

func (r *Registry) GetModel(name string) (physics.Plant, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	if name == "" {
		name = "semi_implicit_euler"
	}
	integ := integrators.New(name)
	if integ == nil {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return integ, nil
}

// GetController treats the empty name as "none".
func (r *Registry) GetController(name string, p physics.Plant, dt float64, g Gains) (dynamo.Controller, error) {
	if name == "" {
		name = "none"
	}
	fn, ok := r.controllers[name]
	if !ok {
		return nil, fmt.Errorf("unknown controller: %s", name)
	}
	return fn(p, dt, g)
}

func (r *Registry) GetReward(name string, index int) (reward.Func, error) {
	return reward.New(name, index)
}

func (r *Registry) ListModels() []string {
	return sortedKeys(r.models)
}

func (r *Registry) ListIntegrators() []string {
	return []string{"euler", "semi_implicit_euler"}
}

func (r *Registry) ListControllers() []string {
	return sortedKeys(r.controllers)
}

func (r *Registry) DefaultMetrics() []metrics.Metric {
	return metrics.Defaults()
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
