package shader

import (
	"fmt"
	"os"
	"slices"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// ShaderType identifies the pipeline stage of an entry point.
type ShaderType int

const (
	// ShaderTypeCompute indicates a @compute entry point.
	ShaderTypeCompute ShaderType = iota

	// ShaderTypeVertex indicates a @vertex entry point.
	ShaderTypeVertex

	// ShaderTypeFragment indicates a @fragment entry point.
	ShaderTypeFragment
)

func (t ShaderType) String() string {
	switch t {
	case ShaderTypeCompute:
		return "compute"
	case ShaderTypeVertex:
		return "vertex"
	case ShaderTypeFragment:
		return "fragment"
	default:
		return fmt.Sprintf("ShaderType(%d)", int(t))
	}
}

// shader is the implementation of the Shader interface.
// It holds the pre-processed source and the layout metadata parsed from it.
type shader struct {
	key                        string
	source                     string
	defines                    []string
	entryPoints                []EntryPoint
	bindGroupLayoutDescriptors map[int]wgpu.BindGroupLayoutDescriptor
	bindingVarNames            map[int]map[int]string
	declarations               []Annotation
}

// Shader is a pre-processed WGSL program. One module may declare several entry points across
// the compute, vertex and fragment stages. The parsed bind group layouts are used to validate
// the layouts the stages build from their own resources.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for labels and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the pre-processed WGSL source code.
	//
	// Returns:
	//   - string: the WGSL source code of the shader
	Source() string

	// Module returns the shader module descriptor built from the pre-processed source.
	//
	// Returns:
	//   - gpu.ShaderModuleDescriptor: the descriptor labelled with the shader key
	Module() gpu.ShaderModuleDescriptor

	// Defines returns the define names the source was pre-processed with.
	//
	// Returns:
	//   - []string: the sorted define names
	Defines() []string

	// EntryPoints returns the entry points declared for a stage, in source order.
	//
	// Parameters:
	//   - shaderType: the stage to list
	//
	// Returns:
	//   - []EntryPoint: the entry points of that stage
	EntryPoints(shaderType ShaderType) []EntryPoint

	// EntryPoint looks up a declared entry point by function name.
	//
	// Parameters:
	//   - name: the WGSL function name
	//
	// Returns:
	//   - EntryPoint: the entry point
	//   - bool: false if the module declares no entry point with that name
	EntryPoint(name string) (EntryPoint, bool)

	// RequireEntryPoints checks that every name is declared as an entry point of the given stage.
	//
	// Parameters:
	//   - shaderType: the stage the entry points must belong to
	//   - names: the required function names
	//
	// Returns:
	//   - error: an error naming the first missing entry point
	RequireEntryPoints(shaderType ShaderType, names ...string) error

	// WorkgroupSize returns the @workgroup_size of a compute entry point. Omitted dimensions are 1
	// and a compute entry point without the attribute reports [1, 1, 1]. Unknown names and render
	// entry points report [0, 0, 0].
	//
	// Parameters:
	//   - entryPoint: the compute function name
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize(entryPoint string) [3]uint32

	// BindGroupLayoutDescriptor retrieves the parsed layout descriptor of a group.
	//
	// Parameters:
	//   - group: the bind group index
	//
	// Returns:
	//   - wgpu.BindGroupLayoutDescriptor: the descriptor, or an empty descriptor if the group is unused
	BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor

	// BindGroupLayoutDescriptors retrieves all parsed bind group layout descriptors keyed by group.
	//
	// Returns:
	//   - map[int]wgpu.BindGroupLayoutDescriptor: descriptors keyed by group index
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// BindGroupVarName retrieves the variable name declared at a group and binding.
	//
	// Parameters:
	//   - group: the bind group index
	//   - binding: the binding index within the group
	//
	// Returns:
	//   - string: the variable name, or an empty string if nothing is declared there
	BindGroupVarName(group, binding int) string

	// BindGroupFromVarName retrieves the binding index of a variable within a group.
	//
	// Parameters:
	//   - group: the bind group index
	//   - varName: the variable name within the group
	//
	// Returns:
	//   - int: the binding index, or -1 if not found
	//   - bool: true if the variable name was found
	BindGroupFromVarName(group int, varName string) (int, bool)

	// Declarations returns the group and provider annotations the pre-processor collected.
	//
	// Returns:
	//   - []Annotation: the declarations in source order
	Declarations() []Annotation

	// Provider returns the group and binding a provider annotation registered for a binding role.
	//
	// Parameters:
	//   - role: the binding role, e.g. AnnotationArgSpriteTexture
	//
	// Returns:
	//   - int: the group index
	//   - int: the binding index
	//   - bool: false if no provider annotation names the role
	Provider(role AnnotationArg) (int, int, bool)

	// ValidateLayout checks host layout entries against the bindings the shader declares in a
	// group. Every declared binding must be present with the same resource kind and buffer
	// binding type, and every host buffer entry must be large enough for the declared type.
	// Host entries the shader does not use are allowed.
	//
	// Parameters:
	//   - group: the bind group index
	//   - entries: the host layout entries
	//
	// Returns:
	//   - error: an error describing the first mismatch
	ValidateLayout(group int, entries []wgpu.BindGroupLayoutEntry) error
}

var _ Shader = &shader{}

// NewShader pre-processes WGSL source and parses its entry points and bind group layouts.
// Binding visibility is the union of the stages the module declares entry points for.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - source: the WGSL source, including @oxy annotations
//   - opts: a variadic list of ShaderBuilderOption functions
//
// Returns:
//   - Shader: the parsed shader
//   - error: an error if pre-processing fails or the source declares no entry point
func NewShader(key string, source string, opts ...ShaderBuilderOption) (Shader, error) {
	cfg := &shaderConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	pp := NewPreProcessor(cfg.defines...)
	processed, err := pp.Process(source)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}

	s := &shader{
		key:          key,
		source:       processed,
		defines:      pp.Defines(),
		entryPoints:  parseEntryPoints(processed),
		declarations: slices.Clone(pp.Declarations()),
	}
	if len(s.entryPoints) == 0 {
		return nil, fmt.Errorf("shader %s: no entry points declared", key)
	}

	var visibility wgpu.ShaderStage
	for _, ep := range s.entryPoints {
		switch ep.Stage {
		case ShaderTypeCompute:
			visibility |= wgpu.ShaderStageCompute
		case ShaderTypeVertex:
			visibility |= wgpu.ShaderStageVertex
		case ShaderTypeFragment:
			visibility |= wgpu.ShaderStageFragment
		}
	}
	s.bindGroupLayoutDescriptors, s.bindingVarNames = parseBindGroupLayouts(processed, visibility)
	return s, nil
}

// NewShaderFromPath reads WGSL source from a file and calls NewShader.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - path: the file path to read WGSL source from
//   - opts: a variadic list of ShaderBuilderOption functions
//
// Returns:
//   - Shader: the parsed shader
//   - error: an error if the file cannot be read or the source is invalid
func NewShaderFromPath(key, path string, opts ...ShaderBuilderOption) (Shader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shader %s: failed to read source file %q: %w", key, path, err)
	}
	return NewShader(key, string(data), opts...)
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) Module() gpu.ShaderModuleDescriptor {
	return gpu.ShaderModuleDescriptor{Label: s.key, Code: s.source}
}

func (s *shader) Defines() []string {
	return s.defines
}

func (s *shader) EntryPoints(shaderType ShaderType) []EntryPoint {
	var out []EntryPoint
	for _, ep := range s.entryPoints {
		if ep.Stage == shaderType {
			out = append(out, ep)
		}
	}
	return out
}

func (s *shader) EntryPoint(name string) (EntryPoint, bool) {
	for _, ep := range s.entryPoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return EntryPoint{}, false
}

func (s *shader) RequireEntryPoints(shaderType ShaderType, names ...string) error {
	for _, name := range names {
		ep, ok := s.EntryPoint(name)
		if !ok {
			return fmt.Errorf("shader %s: missing %s entry point %q", s.key, shaderType, name)
		}
		if ep.Stage != shaderType {
			return fmt.Errorf("shader %s: entry point %q is a %s entry point, want %s", s.key, name, ep.Stage, shaderType)
		}
	}
	return nil
}

func (s *shader) WorkgroupSize(entryPoint string) [3]uint32 {
	ep, ok := s.EntryPoint(entryPoint)
	if !ok {
		return [3]uint32{}
	}
	return ep.WorkgroupSize
}

func (s *shader) BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors[group]
}

func (s *shader) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors
}

func (s *shader) BindGroupVarName(group, binding int) string {
	if s.bindingVarNames[group] == nil {
		return ""
	}
	return s.bindingVarNames[group][binding]
}

func (s *shader) BindGroupFromVarName(group int, varName string) (int, bool) {
	for binding, name := range s.bindingVarNames[group] {
		if name == varName {
			return binding, true
		}
	}
	return -1, false
}

func (s *shader) Declarations() []Annotation {
	return s.declarations
}

func (s *shader) Provider(role AnnotationArg) (int, int, bool) {
	for _, a := range s.declarations {
		if a.Type != AnnotationTypeProvider || len(a.Args) < 2 || a.Args[1] != role {
			continue
		}
		return *a.Group, *a.Binding, true
	}
	return 0, 0, false
}

func (s *shader) ValidateLayout(group int, entries []wgpu.BindGroupLayoutEntry) error {
	declared := s.bindGroupLayoutDescriptors[group].Entries
	for _, want := range declared {
		idx := slices.IndexFunc(entries, func(e wgpu.BindGroupLayoutEntry) bool {
			return e.Binding == want.Binding
		})
		name := s.BindGroupVarName(group, int(want.Binding))
		if idx < 0 {
			return fmt.Errorf("shader %s: group %d binding %d (%s) has no layout entry", s.key, group, want.Binding, name)
		}
		got := entries[idx]
		if got.Visibility&want.Visibility == 0 {
			return fmt.Errorf("shader %s: group %d binding %d (%s) is not visible to any stage of the module", s.key, group, want.Binding, name)
		}
		switch {
		case want.Buffer.Type != wgpu.BufferBindingTypeUndefined:
			if got.Buffer.Type != want.Buffer.Type {
				return fmt.Errorf("shader %s: group %d binding %d (%s) buffer type mismatch", s.key, group, want.Binding, name)
			}
			if got.Buffer.MinBindingSize != 0 && got.Buffer.MinBindingSize < want.Buffer.MinBindingSize {
				return fmt.Errorf("shader %s: group %d binding %d (%s) min binding size %d is below the declared %d bytes",
					s.key, group, want.Binding, name, got.Buffer.MinBindingSize, want.Buffer.MinBindingSize)
			}
		case want.Sampler.Type != wgpu.SamplerBindingTypeUndefined:
			if got.Sampler.Type == wgpu.SamplerBindingTypeUndefined {
				return fmt.Errorf("shader %s: group %d binding %d (%s) is not a sampler", s.key, group, want.Binding, name)
			}
		case want.Texture.SampleType != wgpu.TextureSampleTypeUndefined:
			if got.Texture.SampleType == wgpu.TextureSampleTypeUndefined {
				return fmt.Errorf("shader %s: group %d binding %d (%s) is not a texture", s.key, group, want.Binding, name)
			}
		}
	}
	return nil
}
