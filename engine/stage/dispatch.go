package stage

const (
	// DefaultWorkgroupSize is used when a program declares no workgroup size for an entry point.
	DefaultWorkgroupSize uint32 = 64

	// DefaultMaxWorkgroupsPerDimension is the WebGPU guaranteed minimum for
	// maxComputeWorkgroupsPerDimension.
	DefaultMaxWorkgroupsPerDimension uint32 = 65535
)

// Dispatch returns the workgroup grid covering count invocations with workgroups of workgroupSize.
// The group count is split across X and Y once it exceeds maxPerDimension, with the Y extent rounded
// up, so x*y*workgroupSize >= count always holds. A zero count dispatches nothing.
//
// Parameters:
//   - count: the number of invocations needed, usually the particle capacity
//   - workgroupSize: the X workgroup size of the entry point, DefaultWorkgroupSize when zero
//   - maxPerDimension: the device dispatch limit, DefaultMaxWorkgroupsPerDimension when zero
//
// Returns:
//   - [3]uint32: the workgroup counts for X, Y and Z
func Dispatch(count, workgroupSize, maxPerDimension uint32) [3]uint32 {
	if count == 0 {
		return [3]uint32{}
	}
	if workgroupSize == 0 {
		workgroupSize = DefaultWorkgroupSize
	}
	if maxPerDimension == 0 {
		maxPerDimension = DefaultMaxWorkgroupsPerDimension
	}

	groups := ceilDiv(count, workgroupSize)
	x := min(groups, maxPerDimension)
	return [3]uint32{x, ceilDiv(groups, x), 1}
}

// EmitDispatch returns the one dimensional grid the emit pass runs with.
//
// Parameters:
//   - emitBatch: the particles emitted per frame
//   - workgroupSize: the X workgroup size of the emit entry point, DefaultWorkgroupSize when zero
//
// Returns:
//   - [3]uint32: the workgroup counts for X, Y and Z
func EmitDispatch(emitBatch, workgroupSize uint32) [3]uint32 {
	if emitBatch == 0 {
		return [3]uint32{}
	}
	if workgroupSize == 0 {
		workgroupSize = DefaultWorkgroupSize
	}
	return [3]uint32{ceilDiv(emitBatch, workgroupSize), 1, 1}
}

// ceilDiv divides without overflowing for values near the uint32 maximum.
func ceilDiv(n, d uint32) uint32 {
	q := n / d
	if n%d != 0 {
		q++
	}
	return q
}

// empty reports whether a grid dispatches no workgroups.
func empty(grid [3]uint32) bool {
	return grid[0] == 0 || grid[1] == 0 || grid[2] == 0
}
