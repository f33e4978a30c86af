// Package physics is a small deterministic articulated-body simulator.
//
// An [Engine] advances a [Plant] (a joint layout plus its inertia and
// generalized forces) one tick at a time:
//
//  1. generalized forces f from the plant, qfrc_applied and damping D
//  2. (M + dt·D)·qacc = f − D·qvel solved by Gauss-Seidel, warm-started
//     from qacc_warmstart
//  3. actuator activation update for plants with act
//  4. qvel/qpos integration by a [dynamo.Integrator]
//  5. the transition's reward from a [reward.Func]
//
// Plants:
//
//   - [Pendulum]: hinge
//   - [CartPole]: slide + hinge
//   - [FreeBody]: free joint driven by body-frame thrust (nq=7, nv=6, nu=3)
//   - [BallPendulum]: ball joint driven by body-frame torques
//   - [Arm]: two hinges with first-order muscle activation (na=2)
//   - [Linear]: qacc = Kq·qpos + Kv·qvel + B·u, with a closed-form
//     discrete model for reference
//
// The engine keeps every bit of state that influences the next step in
// [dynamo.Data], so a snapshot restore followed by Step is reproducible
// bit for bit.
package physics
