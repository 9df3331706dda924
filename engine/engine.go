package engine

import (
	"errors"
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-particles/engine/input"
	"github.com/Carmen-Shannon/oxy-particles/engine/profiler"
	"github.com/Carmen-Shannon/oxy-particles/engine/window"
	"go.uber.org/zap"
)

// engine implements the Engine interface.
// Drives the frame driver from the window message loop on the locked OS thread.
type engine struct {
	window  window.Window
	tracker input.Tracker
	driver  FrameDriver
	logger  *zap.Logger

	profiler         *profiler.Profiler
	profilingEnabled bool
	metrics          *profiler.Metrics

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped

	frameCallback func(result PresentResult, frame uint64)

	err error

	now   func() time.Time
	sleep func(time.Duration)
}

// Engine is the main entry point for the engine.
// It runs the window message loop and advances one frame per loop iteration.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Driver returns the frame driver advanced by the loop.
	//
	// Returns:
	//   - FrameDriver: the driver
	Driver() FrameDriver

	// Tracker returns the input tracker polled once per frame.
	//
	// Returns:
	//   - input.Tracker: the tracker
	Tracker() input.Tracker

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetRenderFrameLimit sets an optional frame rate cap in frames per second.
	// Pass 0 to uncap the loop (default).
	//
	// Parameters:
	//   - fps: maximum frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Step polls the tracker and advances one frame, recording metrics and profiler stats.
	//
	// Returns:
	//   - PresentResult: the outcome of the frame
	//   - error: a fatal frame error
	Step() (PresentResult, error)

	// Run runs the message loop on the calling goroutine, locked to its OS thread, until the
	// window closes, quit is requested or a frame fails.
	//
	// Returns:
	//   - error: the fatal frame error that stopped the loop, if any
	Run() error

	// Quit asks the loop to stop before the next frame. Safe to call multiple times.
	Quit()
}

// NewEngine creates a new Engine advancing driver.
// When a window is supplied the tracker is attached to its input and resize callbacks.
//
// Parameters:
//   - driver: the frame driver
//   - options: functional options for engine configuration (window, profiling, metrics, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(driver FrameDriver, options ...EngineBuilderOption) Engine {
	e := &engine{
		driver:  driver,
		tracker: input.NewTracker(),
		logger:  zap.NewNop(),
		now:     time.Now,
		sleep:   time.Sleep,
	}

	for _, opt := range options {
		opt(e)
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(e.logger, time.Second)
	}
	if e.window != nil {
		e.tracker.Attach(e.window)
	}

	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Driver() FrameDriver {
	return e.driver
}

func (e *engine) Tracker() input.Tracker {
	return e.tracker
}

func (e *engine) Run() error {
	if e.window == nil {
		return errors.New("engine: no window")
	}
	// The surface and queue belong to the thread that opened the device.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.window.SetUpdateCallback(func() {
		result, err := e.Step()
		if err != nil {
			e.err = err
			e.logger.Error("frame failed", zap.Uint64("frame", e.driver.Frame()), zap.Error(err))
		}
		if err != nil || result == PresentResultQuit {
			e.window.RequestClose()
		}
	})
	defer e.window.SetUpdateCallback(nil)

	e.logger.Info("engine running", zap.Duration("frame_limit", e.renderFrameLimit))
	e.window.ProcessMessages()
	e.logger.Info("engine stopped", zap.Uint64("frames", e.driver.Frame()))
	return e.err
}

func (e *engine) Step() (PresentResult, error) {
	start := e.now()
	result, err := e.driver.AdvanceFrame(e.tracker.Poll())
	if err != nil || result == PresentResultQuit {
		return result, err
	}

	elapsed := e.now().Sub(start)
	presented := result == PresentResultPresented
	if e.metrics != nil {
		e.metrics.ObserveFrame(presented, elapsed)
	}
	if e.profilingEnabled {
		e.profiler.Tick(presented)
	}
	if e.frameCallback != nil {
		e.frameCallback(result, e.driver.Frame())
	}

	if e.renderFrameLimit > 0 {
		if remaining := e.renderFrameLimit - e.now().Sub(start); remaining > 0 {
			e.sleep(remaining)
		}
	}
	return result, nil
}

// Quit routes through the tracker so the loop stops at a frame boundary.
func (e *engine) Quit() {
	e.tracker.RequestQuit()
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	e.renderFrameLimit = frameDuration(fps)
}

func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
