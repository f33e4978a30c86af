// Package viz renders Jacobians in the terminal.
//
//   - [RenderMatrix]: a labelled grid, heat-colored by sign and magnitude
//   - [Plot], [PlotMany]: asciigraph line charts of trajectories and norms
//   - [Inspector]: a Bubble Tea browser over the Jacobians of a stored run
//
// # Key Bindings
//
//	←/→ h/l     - Previous/next differentiated step
//	pgup/pgdn   - Jump ten steps
//	g/G         - First/last step
//	tab/b       - Cycle ∂x'/∂x, ∂x'/∂u, ∂r/∂x, ∂r/∂u
//	t           - Cycle color themes
//	q           - Quit
package viz
