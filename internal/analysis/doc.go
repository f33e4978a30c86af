// Package analysis characterizes a trajectory from the Jacobians computed
// along it.
//
//   - [LyapunovFromJacobians]: largest Lyapunov exponent by tangent propagation
//   - [LyapunovSpectrum]: all exponents via QR re-orthonormalization
//   - [Condition], [SingularValues]: sensitivity conditioning of one Jacobian
//   - [ColumnNorms]: per-input influence, zero for inert coordinates
//
// # Chaos Detection
//
// A positive largest Lyapunov exponent indicates chaotic dynamics:
//
//	lambda, err := analysis.LyapunovFromJacobians(res.Jacobians(), dt)
//	if err == nil && lambda > 0 {
//	    // System is chaotic
//	}
package analysis
