package shader

import _ "embed"

// Program defines accepted by ComputeProgramSource.
const (
	// DefineDoubleBuffered selects the ping-pong particle bindings: slot 0 the read-only source
	// and slot 1 the read-write destination. Without it slot 0 is one read-write buffer.
	DefineDoubleBuffered = "DOUBLE_BUFFERED"
)

// ComputeProgramSource is the default particle compute program with the swap, step_particles
// and emit entry points.
//
//go:embed assets/compute.wgsl
var ComputeProgramSource string

// RenderProgramSource is the default particle render program with the vs_main and fs_main
// entry points and an optional sprite in group 2.
//
//go:embed assets/render.wgsl
var RenderProgramSource string
