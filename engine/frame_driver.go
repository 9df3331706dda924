package engine

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
	"github.com/Carmen-Shannon/oxy-particles/engine/input"
	"github.com/Carmen-Shannon/oxy-particles/engine/particle"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer"
	"github.com/Carmen-Shannon/oxy-particles/engine/shared"
	"github.com/Carmen-Shannon/oxy-particles/engine/stage"
	"go.uber.org/zap"
)

// FrameState is the phase of the frame the driver is in.
type FrameState int

const (
	FrameStateIdle FrameState = iota
	FrameStateUpdating
	FrameStateComputeDispatch
	FrameStateRenderDispatch
	FrameStateSubmitted
	FrameStatePresented
)

func (s FrameState) String() string {
	switch s {
	case FrameStateIdle:
		return "idle"
	case FrameStateUpdating:
		return "updating"
	case FrameStateComputeDispatch:
		return "compute_dispatch"
	case FrameStateRenderDispatch:
		return "render_dispatch"
	case FrameStateSubmitted:
		return "submitted"
	case FrameStatePresented:
		return "presented"
	default:
		return fmt.Sprintf("FrameState(%d)", int(s))
	}
}

// PresentResult is the outcome of one AdvanceFrame call.
type PresentResult int

const (
	// PresentResultPresented means the frame was submitted and presented and the frame index advanced.
	PresentResultPresented PresentResult = iota

	// PresentResultSkipped means the surface timed out. Nothing was submitted and the frame index is unchanged.
	PresentResultSkipped

	// PresentResultQuit means the input asked to stop. Nothing was recorded.
	PresentResultQuit
)

func (r PresentResult) String() string {
	switch r {
	case PresentResultPresented:
		return "presented"
	case PresentResultSkipped:
		return "skipped"
	case PresentResultQuit:
		return "quit"
	default:
		return fmt.Sprintf("PresentResult(%d)", int(r))
	}
}

// frameDriver is the implementation of the FrameDriver interface.
type frameDriver struct {
	renderer renderer.Renderer
	store    particle.Store
	shared   shared.SharedState
	compute  stage.ComputeStage
	render   stage.RenderStage
	logger   *zap.Logger

	frame  uint64
	state  FrameState
	paused bool

	onState func(state FrameState, frame uint64)
}

// FrameDriver owns the frame index and runs the per-frame procedure: update the shared uniforms,
// record the compute passes, acquire the surface, record the render pass, submit once and present.
type FrameDriver interface {
	// AdvanceFrame runs one frame against snapshot.
	//
	// Parameters:
	//   - snapshot: the input accumulated since the previous frame
	//
	// Returns:
	//   - PresentResult: whether the frame was presented, skipped or the session should end
	//   - error: a fatal error from resizing, recording, acquisition or presentation
	AdvanceFrame(snapshot input.Snapshot) (PresentResult, error)

	// Frame returns the index of the next frame, which is the number of frames presented so far.
	//
	// Returns:
	//   - uint64: the frame index
	Frame() uint64

	// State returns the phase the driver last entered.
	//
	// Returns:
	//   - FrameState: the current phase
	State() FrameState

	// Reallocate replaces the particle buffers with ones holding capacity records and rebuilds every
	// bind group that referenced them. It must be called between frames. The new buffers start out
	// as a freshly built store's do and the frame index is kept.
	//
	// Parameters:
	//   - capacity: the new capacity in records
	//
	// Returns:
	//   - error: an error if the buffers or bind groups cannot be recreated
	Reallocate(capacity uint32) error

	// Paused reports whether the simulation is paused.
	//
	// Returns:
	//   - bool: the pause flag last written to the uniforms
	Paused() bool
}

var _ FrameDriver = &frameDriver{}

// NewFrameDriver creates a FrameDriver at frame 0 over the given components.
// The stages must have been built against r's device and store.
//
// Parameters:
//   - r: the renderer owning the surface and queue
//   - store: the particle store both stages read
//   - state: the shared uniform block written on input
//   - compute: the compute stage
//   - render: the render stage
//   - options: functional options for logging and the state observer
//
// Returns:
//   - FrameDriver: the driver
func NewFrameDriver(r renderer.Renderer, store particle.Store, state shared.SharedState, compute stage.ComputeStage, render stage.RenderStage, options ...FrameDriverBuilderOption) FrameDriver {
	d := &frameDriver{
		renderer: r,
		store:    store,
		shared:   state,
		compute:  compute,
		render:   render,
		logger:   zap.NewNop(),
		state:    FrameStateIdle,
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

func (d *frameDriver) Frame() uint64 {
	return d.frame
}

func (d *frameDriver) State() FrameState {
	return d.state
}

func (d *frameDriver) Paused() bool {
	return d.paused
}

func (d *frameDriver) Reallocate(capacity uint32) error {
	if err := d.store.Resize(capacity, d.frame); err != nil {
		return fmt.Errorf("reallocate: %w", err)
	}
	if err := d.shared.Resize(d.renderer.Queue(), capacity); err != nil {
		return fmt.Errorf("reallocate: %w", err)
	}
	if err := d.compute.Rebuild(); err != nil {
		return fmt.Errorf("reallocate: %w", err)
	}
	if err := d.render.Rebuild(); err != nil {
		return fmt.Errorf("reallocate: %w", err)
	}
	d.logger.Info("particle buffers reallocated", zap.Uint32("capacity", capacity), zap.Uint64("frame", d.frame))
	return nil
}

func (d *frameDriver) enter(state FrameState) {
	d.state = state
	if d.onState != nil {
		d.onState(state, d.frame)
	}
}

func (d *frameDriver) AdvanceFrame(snapshot input.Snapshot) (PresentResult, error) {
	if snapshot.Quit {
		return PresentResultQuit, nil
	}
	defer d.enter(FrameStateIdle)

	d.enter(FrameStateUpdating)
	if err := d.update(snapshot); err != nil {
		return 0, err
	}

	encoder, err := d.renderer.Device().CreateCommandEncoder("Frame Encoder")
	if err != nil {
		return 0, fmt.Errorf("frame %d: create encoder: %w", d.frame, err)
	}
	defer encoder.Release()

	d.enter(FrameStateComputeDispatch)
	if err := d.compute.Record(encoder, d.frame); err != nil {
		return 0, fmt.Errorf("frame %d: %w", d.frame, err)
	}

	d.enter(FrameStateRenderDispatch)
	frame, err := d.renderer.AcquireFrame()
	if errors.Is(err, gpu.ErrSurfaceTimeout) {
		d.logger.Debug("surface timed out, skipping frame", zap.Uint64("frame", d.frame))
		return PresentResultSkipped, nil
	}
	if err != nil {
		return 0, fmt.Errorf("frame %d: %w", d.frame, err)
	}
	if err := d.render.Record(encoder, d.renderer.ColorAttachment(frame), d.frame); err != nil {
		frame.Release()
		return 0, fmt.Errorf("frame %d: %w", d.frame, err)
	}

	cmd, err := encoder.Finish()
	if err != nil {
		frame.Release()
		return 0, fmt.Errorf("frame %d: finish encoder: %w", d.frame, err)
	}
	d.renderer.Submit(cmd)
	cmd.Release()
	d.enter(FrameStateSubmitted)

	if err := d.renderer.Present(frame); err != nil {
		return 0, fmt.Errorf("frame %d: %w", d.frame, err)
	}
	d.frame++
	d.enter(FrameStatePresented)
	return PresentResultPresented, nil
}

// update applies the snapshot's resize and rewrites the uniform block when input arrived.
func (d *frameDriver) update(snapshot input.Snapshot) error {
	if snapshot.Resized != nil {
		if err := d.renderer.Resize(snapshot.Resized.Width, snapshot.Resized.Height); err != nil {
			return fmt.Errorf("frame %d: %w", d.frame, err)
		}
	}
	if !snapshot.HasInput {
		return nil
	}

	if snapshot.PauseToggled {
		d.paused = !d.paused
	}
	surface := d.renderer.SurfaceState()
	u := d.shared.Uniforms()
	u.Pointer = input.Normalize(snapshot.Pointer, surface.Width, surface.Height)
	u.PointerDown = boolToUint32(snapshot.PointerDown)
	u.Paused = boolToUint32(d.paused)
	if err := d.shared.UpdateUniforms(d.renderer.Queue(), u); err != nil {
		return fmt.Errorf("frame %d: %w", d.frame, err)
	}
	return nil
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
