// Package viz provides the terminal views of orbitlab.
//
// The live view steps an integrator on every frame with Bubble Tea and draws
// the bodies on a Braille [Canvas] seen through a rotatable [Camera]:
//
//   - [Model]: one running system with trails and an energy drift chart
//   - [App]: preset picker that launches a [Model]
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Restart from the initial conditions
//	[ ]   - Step back/forward through recorded frames
//	x/y   - Rotate the view (shift reverses)
//	+ -   - Zoom
//	T     - Cycle color themes
//	G     - Toggle GIF recording
//	?     - Show help overlay
package viz
