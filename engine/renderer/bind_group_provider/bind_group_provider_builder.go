package bind_group_provider

import "github.com/Carmen-Shannon/oxy-particles/engine/gpu"

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithVariant appends one precomputed variant. Variants are indexed in the order the options are applied.
//
// Parameters:
//   - entries: the resources bound by this variant, one per layout binding
//
// Returns:
//   - BindGroupProviderOption: a function that appends the variant to the provider
func WithVariant(entries ...gpu.BindGroupEntry) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.variants = append(p.variants, append([]gpu.BindGroupEntry(nil), entries...))
	}
}

// WithBufferVariant appends a variant that binds buffers to consecutive bindings starting at 0.
//
// Parameters:
//   - buffers: the buffers to bind, in binding order
//
// Returns:
//   - BindGroupProviderOption: a function that appends the variant to the provider
func WithBufferVariant(buffers ...gpu.Buffer) BindGroupProviderOption {
	entries := make([]gpu.BindGroupEntry, len(buffers))
	for i, b := range buffers {
		entries[i] = gpu.BindGroupEntry{Binding: uint32(i), Buffer: b}
	}
	return WithVariant(entries...)
}

// WithOwnedLayout makes the provider release its layout on Release.
//
// Returns:
//   - BindGroupProviderOption: a function that transfers layout ownership to the provider
func WithOwnedLayout() BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.ownsLayout = true
	}
}
