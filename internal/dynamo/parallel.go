package dynamo

import "context"

// Arena hands out exclusive leases over a fixed set of simulator replicas,
// one per worker. When the base simulator is not a Replicator the arena
// holds that single instance and leases serialize on it.
type Arena struct {
	sims  []Simulator
	slots chan int
	reset func(Simulator) error
}

// NewArena builds up to workers replicas of base. reset is run on every
// Release and must put the simulator back into its pristine baseline.
func NewArena(base Simulator, workers int, reset func(Simulator) error) *Arena {
	if workers < 1 {
		workers = 1
	}

	sims := []Simulator{base}
	if r, ok := base.(Replicator); ok {
		for len(sims) < workers {
			sims = append(sims, r.Replicate())
		}
	}

	slots := make(chan int, len(sims))
	for i := range sims {
		slots <- i
	}

	return &Arena{sims: sims, slots: slots, reset: reset}
}

// Size is the number of distinct simulator instances.
func (a *Arena) Size() int { return len(a.sims) }

// Acquire blocks until a replica is free or ctx is done.
func (a *Arena) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case id := <-a.slots:
		return &Lease{arena: a, id: id}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lease is exclusive ownership of one replica between Acquire and Release.
type Lease struct {
	arena    *Arena
	id       int
	released bool
}

func (l *Lease) Sim() Simulator { return l.arena.sims[l.id] }

func (l *Lease) Worker() int { return l.id }

// Release restores the baseline and returns the replica to the arena. It is
// safe to call more than once; only the first call has an effect.
func (l *Lease) Release() error {
	if l.released {
		return nil
	}
	l.released = true

	var err error
	if l.arena.reset != nil {
		err = l.arena.reset(l.Sim())
	}
	l.arena.slots <- l.id
	return err
}
