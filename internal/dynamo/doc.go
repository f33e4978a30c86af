// Package dynamo provides the simulator primitives the sensitivity engine
// is built on.
//
// The package defines the contract between the engine and an opaque
// physics simulator:
//
//   - [State]: qpos‖qvel vector
//   - [Data]: the live buffers of a simulator (time, qpos, qvel, qacc,
//     warm-start, applied forces, ctrl, act)
//   - [Simulator]: one-tick stepping over [Data]
//   - [Replicator]: simulators that can be cloned for parallel workers
//   - [Forwarder]: simulators that can solve accelerations without stepping
//   - [Controller]: closed-loop policy used during multi-step rollouts
//   - [Arena]: exclusive leases over simulator replicas
//
// # Thread Safety
//
// Simulator instances are NOT thread-safe. Parallel work must go through an
// [Arena], which hands every worker its own replica, or serializes access
// to a single instance when the simulator cannot be replicated.
package dynamo
