// Package snapshot captures and restores the complete state of a simulator
// so that perturbed trials never leak into each other.
package snapshot

import (
	"fmt"

	"github.com/san-kum/simgrad/internal/dynamo"
)

// Shape records the dimensions a snapshot was taken with.
type Shape struct {
	Nq, Nv, Nu, Na int
}

func (s Shape) String() string {
	return fmt.Sprintf("nq=%d nv=%d nu=%d na=%d", s.Nq, s.Nv, s.Nu, s.Na)
}

// Snapshot is an immutable copy of every buffer of dynamo.Data. Nothing in
// this package writes to a snapshot after Capture; Restore only reads it.
type Snapshot struct {
	Shape         Shape
	Time          float64
	QPos          []float64
	QVel          []float64
	QAcc          []float64
	QAccWarmstart []float64
	QfrcApplied   []float64
	Ctrl          []float64
	Act           []float64
}

// Capture copies the live buffers of sim.
func Capture(sim dynamo.Simulator) *Snapshot {
	m := sim.Model()
	d := sim.Data()
	return &Snapshot{
		Shape:         Shape{Nq: m.Nq, Nv: m.Nv, Nu: m.Nu, Na: m.Na},
		Time:          d.Time,
		QPos:          clone(d.QPos),
		QVel:          clone(d.QVel),
		QAcc:          clone(d.QAcc),
		QAccWarmstart: clone(d.QAccWarmstart),
		QfrcApplied:   clone(d.QfrcApplied),
		Ctrl:          clone(d.Ctrl),
		Act:           clone(d.Act),
	}
}

// Restore writes s into sim. The next Step reproduces the step that followed
// the capture. A dimension disagreement returns ErrShapeMismatch.
func Restore(sim dynamo.Simulator, s *Snapshot) error {
	m := sim.Model()
	have := Shape{Nq: m.Nq, Nv: m.Nv, Nu: m.Nu, Na: m.Na}
	if have != s.Shape {
		return fmt.Errorf("%w: simulator has %v, snapshot has %v", dynamo.ErrShapeMismatch, have, s.Shape)
	}
	if err := s.validate(); err != nil {
		return err
	}

	d := sim.Data()
	d.Time = s.Time
	d.QPos = fill(d.QPos, s.QPos)
	d.QVel = fill(d.QVel, s.QVel)
	d.QAcc = fill(d.QAcc, s.QAcc)
	d.QAccWarmstart = fill(d.QAccWarmstart, s.QAccWarmstart)
	d.QfrcApplied = fill(d.QfrcApplied, s.QfrcApplied)
	d.Ctrl = fill(d.Ctrl, s.Ctrl)
	if s.Act == nil {
		d.Act = nil
	} else {
		d.Act = fill(d.Act, s.Act)
	}
	return nil
}

// Clone returns a deep copy that can be modified freely.
func (s *Snapshot) Clone() *Snapshot {
	return &Snapshot{
		Shape:         s.Shape,
		Time:          s.Time,
		QPos:          clone(s.QPos),
		QVel:          clone(s.QVel),
		QAcc:          clone(s.QAcc),
		QAccWarmstart: clone(s.QAccWarmstart),
		QfrcApplied:   clone(s.QfrcApplied),
		Ctrl:          clone(s.Ctrl),
		Act:           clone(s.Act),
	}
}

// State returns qpos‖qvel.
func (s *Snapshot) State() dynamo.State { return dynamo.Concat(s.QPos, s.QVel) }

func (s *Snapshot) Control() dynamo.Control { return dynamo.Control(clone(s.Ctrl)) }

func (s *Snapshot) validate() error {
	lens := []struct {
		name      string
		have, exp int
	}{
		{"qpos", len(s.QPos), s.Shape.Nq},
		{"qvel", len(s.QVel), s.Shape.Nv},
		{"qacc", len(s.QAcc), s.Shape.Nv},
		{"qacc_warmstart", len(s.QAccWarmstart), s.Shape.Nv},
		{"qfrc_applied", len(s.QfrcApplied), s.Shape.Nv},
		{"ctrl", len(s.Ctrl), s.Shape.Nu},
		{"act", len(s.Act), s.Shape.Na},
	}
	for _, l := range lens {
		if l.have != l.exp {
			return fmt.Errorf("%w: %s has length %d, want %d", dynamo.ErrShapeMismatch, l.name, l.have, l.exp)
		}
	}
	return nil
}

func clone(v []float64) []float64 {
	if v == nil {
		return nil
	}
	c := make([]float64, len(v))
	copy(c, v)
	return c
}

// fill copies src into dst, reallocating dst when its length is wrong.
func fill(dst, src []float64) []float64 {
	if len(dst) != len(src) {
		dst = make([]float64, len(src))
	}
	copy(dst, src)
	return dst
}
