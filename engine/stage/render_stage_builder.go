package stage

import (
	"github.com/Carmen-Shannon/oxy-particles/common"
	"go.uber.org/zap"
)

// RenderStageOption is a functional option used to configure a RenderStage during construction.
type RenderStageOption func(*renderStage)

// WithSprite sets the sprite every particle is textured with.
//
// Parameters:
//   - data: the decoded RGBA sprite
//
// Returns:
//   - RenderStageOption: a function that sets the sprite
func WithSprite(data common.TextureStagingData) RenderStageOption {
	return func(s *renderStage) {
		s.spriteData = &data
	}
}

// WithRenderEntryPoints overrides the vertex and fragment entry points, vs_main and fs_main by default.
//
// Parameters:
//   - vertex: the vertex function name
//   - fragment: the fragment function name
//
// Returns:
//   - RenderStageOption: a function that sets the entry points
func WithRenderEntryPoints(vertex, fragment string) RenderStageOption {
	return func(s *renderStage) {
		if vertex != "" {
			s.vertexEntryPoint = vertex
		}
		if fragment != "" {
			s.fragmentEntryPoint = fragment
		}
	}
}

// WithRenderLogger sets the logger of the stage.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - RenderStageOption: a function that sets the logger
func WithRenderLogger(logger *zap.Logger) RenderStageOption {
	return func(s *renderStage) {
		if logger != nil {
			s.logger = logger
		}
	}
}
