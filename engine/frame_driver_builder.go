package engine

import "go.uber.org/zap"

// FrameDriverBuilderOption is a functional option for configuring a FrameDriver.
type FrameDriverBuilderOption func(*frameDriver)

// WithFrameLogger sets the logger used for skipped frame reports.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - FrameDriverBuilderOption: option function to apply
func WithFrameLogger(logger *zap.Logger) FrameDriverBuilderOption {
	return func(d *frameDriver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithStateObserver registers a function called every time the driver enters a FrameState,
// with the frame index at that moment.
//
// Parameters:
//   - observer: the function to call
//
// Returns:
//   - FrameDriverBuilderOption: option function to apply
func WithStateObserver(observer func(state FrameState, frame uint64)) FrameDriverBuilderOption {
	return func(d *frameDriver) {
		d.onState = observer
	}
}
