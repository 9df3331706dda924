package shader

import "github.com/cogentcore/webgpu/wgpu"

// EntryPoint is one stage function declared in a shader module.
type EntryPoint struct {
	// Name is the WGSL function name.
	Name string

	// Stage is the pipeline stage the function is declared for.
	Stage ShaderType

	// WorkgroupSize is the @workgroup_size of a compute entry point, zero for render stages.
	WorkgroupSize [3]uint32
}

// sampledTextureInfo holds the view dimension and multisampled flag for a sampled texture type
type sampledTextureInfo struct {
	viewDimension wgpu.TextureViewDimension
	multisampled  bool
}

// wgslTypeLayout holds the byte size and alignment for a WGSL type.
// Used to compute MinBindingSize for buffer bindings.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}
