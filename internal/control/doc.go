// Package control provides the closed-loop policies that rollouts can
// re-evaluate during a lookahead.
//
// Controllers implement [dynamo.Controller] and must be pure functions of
// the state and time, since the same snapshot is replayed many times:
//
//   - [None]: open loop, the captured control is held
//   - [LQR]: u = −K(x − x*), with gains from [DiscreteLQR]
//   - [PD]: per-DOF proportional-derivative feedback
//
// # Usage
//
//	j, _ := asm.Compute(ctx, snap, next, r, jacobian.DefaultOptions())
//	k, _ := control.DiscreteLQR(j.State, j.Control, q, r)
//	lqr := control.NewLQR(k, target)
package control
