package bind_group_provider

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
)

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	// label is a debug label added for convenience. Variant bind groups are labelled "<label> <index>".
	label string

	// layout is the layout every variant is created against.
	layout gpu.BindGroupLayout
	// ownsLayout releases the layout together with the provider.
	ownsLayout bool

	// variants holds the resources of each precomputed variant in binding order. Populated by the builder
	// options and never mutated once NewBindGroupProvider returns.
	variants [][]gpu.BindGroupEntry

	// bindGroups holds the GPU bind group created for each variant, indexed like variants.
	bindGroups []gpu.BindGroup
}

// BindGroupProvider exposes a fixed set of precomputed bind groups that share one layout.
// A provider never rebinds resources: callers that need a different resource arrangement
// select a different variant, and callers whose resources are replaced build a new provider.
//
// Usage pattern:
//  1. Stage creates the layout for a group index
//  2. Stage calls NewBindGroupProvider with one WithVariant option per resource arrangement
//  3. Stage selects BindGroup(frame) for each pass, which wraps around the variant count
//  4. Stage releases the provider before the buffers it references
type BindGroupProvider interface {
	// Release releases every bind group held by this provider, and the layout when the provider owns it.
	// Buffers, texture views and samplers referenced by the variants are not released.
	Release()

	// Label returns the debug label for this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// Layout returns the layout the variants were created against.
	//
	// Returns:
	//   - gpu.BindGroupLayout: the shared layout
	Layout() gpu.BindGroupLayout

	// VariantCount returns the number of precomputed variants.
	//
	// Returns:
	//   - int: the variant count, at least 1
	VariantCount() int

	// BindGroup returns the bind group of the variant selected by index. The index wraps around the
	// variant count, so a frame counter can be passed directly to select by parity.
	//
	// Parameters:
	//   - index: the variant index or frame counter
	//
	// Returns:
	//   - gpu.BindGroup: the selected bind group
	BindGroup(index uint64) gpu.BindGroup

	// Buffer returns the buffer bound at binding in the variant selected by index, or nil if that binding
	// does not hold a buffer.
	//
	// Parameters:
	//   - index: the variant index or frame counter
	//   - binding: the binding index within the group
	//
	// Returns:
	//   - gpu.Buffer: the bound buffer or nil
	Buffer(index uint64, binding uint32) gpu.Buffer
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates every variant bind group on the device. At least one variant must be
// supplied with WithVariant.
//
// Parameters:
//   - device: the device that creates the bind groups
//   - label: the debug label of the provider
//   - layout: the layout every variant is created against
//   - options: a variadic list of options adding variants and ownership rules
//
// Returns:
//   - BindGroupProvider: the provider holding one bind group per variant
//   - error: an error if no variant was supplied or bind group creation fails
func NewBindGroupProvider(device gpu.Device, label string, layout gpu.BindGroupLayout, options ...BindGroupProviderOption) (BindGroupProvider, error) {
	p := &bindGroupProvider{
		label:  label,
		layout: layout,
	}
	for _, opt := range options {
		opt(p)
	}
	if layout == nil {
		return nil, fmt.Errorf("bind group provider %q: nil layout", label)
	}
	if len(p.variants) == 0 {
		return nil, fmt.Errorf("bind group provider %q: no variants", label)
	}

	p.bindGroups = make([]gpu.BindGroup, 0, len(p.variants))
	for i, entries := range p.variants {
		bgLabel := label
		if len(p.variants) > 1 {
			bgLabel = fmt.Sprintf("%s %d", label, i)
		}
		bg, err := device.CreateBindGroup(gpu.BindGroupDescriptor{
			Label:   bgLabel,
			Layout:  layout,
			Entries: entries,
		})
		if err != nil {
			p.Release()
			return nil, fmt.Errorf("bind group provider %q: variant %d: %w", label, i, err)
		}
		p.bindGroups = append(p.bindGroups, bg)
	}
	return p, nil
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) Layout() gpu.BindGroupLayout {
	return p.layout
}

func (p *bindGroupProvider) VariantCount() int {
	return len(p.bindGroups)
}

func (p *bindGroupProvider) BindGroup(index uint64) gpu.BindGroup {
	if len(p.bindGroups) == 0 {
		return nil
	}
	return p.bindGroups[index%uint64(len(p.bindGroups))]
}

func (p *bindGroupProvider) Buffer(index uint64, binding uint32) gpu.Buffer {
	if len(p.variants) == 0 {
		return nil
	}
	for _, e := range p.variants[index%uint64(len(p.variants))] {
		if e.Binding == binding {
			return e.Buffer
		}
	}
	return nil
}

func (p *bindGroupProvider) Release() {
	for i, bg := range p.bindGroups {
		if bg != nil {
			bg.Release()
			p.bindGroups[i] = nil
		}
	}
	p.bindGroups = nil
	if p.ownsLayout && p.layout != nil {
		p.layout.Release()
		p.layout = nil
	}
}
