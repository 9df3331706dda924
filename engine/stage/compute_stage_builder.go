package stage

import "go.uber.org/zap"

// ComputeStageOption is a functional option used to configure a ComputeStage during construction.
type ComputeStageOption func(*computeStage)

// WithSwapPass enables the swap pass, which exchanges the metadata source and destination lengths
// before the step pass runs. The program must declare the swap entry point when enabled.
//
// Parameters:
//   - enabled: whether to record the swap pass
//
// Returns:
//   - ComputeStageOption: a function that toggles the swap pass
func WithSwapPass(enabled bool) ComputeStageOption {
	return func(s *computeStage) {
		s.swapEnabled = enabled
	}
}

// WithComputeLogger sets the logger of the stage.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - ComputeStageOption: a function that sets the logger
func WithComputeLogger(logger *zap.Logger) ComputeStageOption {
	return func(s *computeStage) {
		if logger != nil {
			s.logger = logger
		}
	}
}
