// pre_processor.go implements the Oxy WGSL shader pre-processor. It scans shader
// source code for @oxy: annotations, evaluates conditional blocks against the active
// defines, replaces struct and binding annotations with generated WGSL, and collects
// a declarations list the stages use to locate their bindings.
//
// The pre-processor maintains two registries:
//   - structRegistry: maps AnnotationArg keys to embedded WGSL struct sources and their
//     resolved type names.
//   - addressSpaceRegistry: maps address space argument keys to WGSL var<> syntax strings.
package shader

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Carmen-Shannon/oxy-particles/engine/particle"
	"github.com/Carmen-Shannon/oxy-particles/engine/shared"
)

// registryEntry pairs a WGSL struct source string (embedded from a .wgsl asset file)
// with the resolved WGSL type name used in generated @group/@binding declarations.
type registryEntry struct {
	// Source is the raw WGSL struct definition text injected by @oxy:include.
	Source string

	// Type is the WGSL type name emitted in @oxy:group declarations (e.g. "Particle").
	Type string
}

// conditional is one open @oxy:if block.
type conditional struct {
	// parentActive is whether the enclosing block emits lines.
	parentActive bool
	// matched is whether the define of the block was set.
	matched bool
	// inElse is set once the block's @oxy:else was seen.
	inElse bool
	line   int
}

func (c conditional) active() bool {
	if !c.parentActive {
		return false
	}
	return c.matched != c.inElse
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	structRegistry       map[AnnotationArg]registryEntry
	addressSpaceRegistry map[AnnotationArg]string

	// defines holds the names that satisfy @oxy:if.
	defines []string

	// declarations accumulates group and provider annotations of active lines during a
	// Process call. Reset at the start of each Process invocation.
	declarations []Annotation
}

// PreProcessor processes raw WGSL shader source code containing @oxy: annotations.
type PreProcessor interface {
	// Process takes raw WGSL shader source code and pre-processes it. Lines inside inactive
	// conditional blocks are dropped, @oxy:include annotations are replaced with embedded
	// struct source text, and @oxy:group annotations with generated @group/@binding variable
	// declarations. @oxy:provider annotations produce no WGSL output but are recorded in the
	// declarations list.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code containing annotations to be processed
	//
	// Returns:
	//   - string: the processed WGSL shader source code
	//   - error: an error if an annotation is malformed or a conditional block is unbalanced
	Process(source string) (string, error)

	// Declarations returns the group and provider annotations collected during the most recent
	// call to Process, in source order. Annotations inside inactive blocks are not included.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation

	// Defines returns the define names this pre-processor evaluates conditionals against.
	//
	// Returns:
	//   - []string: the sorted define names
	Defines() []string
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a new PreProcessor with the particle and shared state struct types
// registered.
//
// Parameters:
//   - defines: the names that satisfy @oxy:if blocks
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(defines ...string) PreProcessor {
	d := slices.Clone(defines)
	slices.Sort(d)
	return &preProcessor{
		structRegistry: map[AnnotationArg]registryEntry{
			AnnotationArgParticle: {Source: particle.GPUParticleSource, Type: "Particle"},
			AnnotationArgUniforms: {Source: shared.GPUUniformsSource, Type: "Uniforms"},
			AnnotationArgMetadata: {Source: shared.GPUMetadataSource, Type: "Metadata"},
		},
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
		defines: slices.Compact(d),
	}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	var stack []conditional
	active := func() bool {
		return len(stack) == 0 || stack[len(stack)-1].active()
	}

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			if !active() {
				// malformed annotations in dropped blocks are dropped with them
				continue
			}
			return "", err
		}

		if a != nil {
			switch a.Type {
			case annotationTypeIf:
				_, matched := slices.BinarySearch(p.defines, string(a.Args[0]))
				stack = append(stack, conditional{parentActive: active(), matched: matched, line: a.Line})
				continue
			case annotationTypeElse:
				if len(stack) == 0 {
					return "", fmt.Errorf("line %d: @oxy else without @oxy if", a.Line)
				}
				top := &stack[len(stack)-1]
				if top.inElse {
					return "", fmt.Errorf("line %d: duplicate @oxy else for @oxy if on line %d", a.Line, top.line)
				}
				top.inElse = true
				continue
			case annotationTypeEndif:
				if len(stack) == 0 {
					return "", fmt.Errorf("line %d: @oxy endif without @oxy if", a.Line)
				}
				stack = stack[:len(stack)-1]
				continue
			}
		}

		if !active() {
			continue
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			entry, ok := p.structRegistry[a.Args[0]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", i+1, a.Args[0])
			}
			out = append(out, entry.Source)
		case AnnotationTypeBindingGroup:
			addrSpace := p.addressSpaceRegistry[a.Args[0]]
			varName := string(a.Args[1])
			var wgslType string
			if inner, ok := strings.CutPrefix(string(a.Args[2]), "array<"); ok {
				inner = strings.TrimSuffix(inner, ">")
				wgslType = fmt.Sprintf("array<%s>", p.structRegistry[AnnotationArg(inner)].Type)
			} else {
				wgslType = p.structRegistry[a.Args[2]].Type
			}
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, addrSpace, varName, wgslType))
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeProvider:
			p.declarations = append(p.declarations, *a)
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", i+1, a.Type)
		}
	}
	if len(stack) > 0 {
		return "", fmt.Errorf("line %d: @oxy if is never closed", stack[len(stack)-1].line)
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}

func (p *preProcessor) Defines() []string {
	return p.defines
}
