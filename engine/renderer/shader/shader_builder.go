package shader

// shaderConfig collects the options NewShader is called with.
type shaderConfig struct {
	defines []string
}

// ShaderBuilderOption is a functional option used to configure a Shader during construction.
type ShaderBuilderOption func(*shaderConfig)

// WithDefines sets names that satisfy @oxy:if blocks in the source.
//
// Parameters:
//   - defines: the define names
//
// Returns:
//   - ShaderBuilderOption: a function that appends the defines
func WithDefines(defines ...string) ShaderBuilderOption {
	return func(c *shaderConfig) {
		c.defines = append(c.defines, defines...)
	}
}

// WithDefine sets a single define when enabled is true, which keeps call sites flag driven.
//
// Parameters:
//   - name: the define name
//   - enabled: whether the define is set
//
// Returns:
//   - ShaderBuilderOption: a function that appends the define when enabled
func WithDefine(name string, enabled bool) ShaderBuilderOption {
	return func(c *shaderConfig) {
		if enabled {
			c.defines = append(c.defines, name)
		}
	}
}
