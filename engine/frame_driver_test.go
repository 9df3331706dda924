package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
	"github.com/Carmen-Shannon/oxy-particles/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-particles/engine/input"
	"github.com/Carmen-Shannon/oxy-particles/engine/particle"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-particles/engine/shared"
	"github.com/Carmen-Shannon/oxy-particles/engine/stage"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type surfaceWindow struct {
	width, height int
}

func (w surfaceWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor { return &wgpu.SurfaceDescriptor{} }
func (w surfaceWindow) Width() int                                 { return w.width }
func (w surfaceWindow) Height() int                                { return w.height }

// harness wires a full pipeline over the recording backend.
type harness struct {
	backend  *gputest.Backend
	renderer renderer.Renderer
	store    particle.Store
	shared   shared.SharedState
	compute  stage.ComputeStage
	render   stage.RenderStage
	driver   FrameDriver
}

type harnessConfig struct {
	capacity    uint32
	emitBatch   uint32
	double      bool
	sampleCount renderer.MSAASampleCount
	storeOpts   []particle.StoreBuilderOption
	driverOpts  []FrameDriverBuilderOption
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()
	h := &harness{backend: gputest.NewBackend()}

	var err error
	h.renderer, err = renderer.NewRenderer(h.backend, surfaceWindow{800, 600}, renderer.WithMSAA(cfg.sampleCount))
	require.NoError(t, err)
	device := h.renderer.Device()

	storeOpts := append([]particle.StoreBuilderOption{
		particle.WithCapacity(cfg.capacity),
		particle.WithDoubleBuffering(cfg.double),
	}, cfg.storeOpts...)
	h.store, err = particle.NewStore(device, storeOpts...)
	require.NoError(t, err)
	h.shared, err = shared.NewSharedState(device, cfg.capacity, cfg.emitBatch)
	require.NoError(t, err)

	computeProgram, err := shader.NewShader("particles compute", shader.ComputeProgramSource, shader.WithDefine(shader.DefineDoubleBuffered, cfg.double))
	require.NoError(t, err)
	h.compute, err = stage.NewComputeStage(device, computeProgram, h.store, h.shared)
	require.NoError(t, err)

	renderProgram, err := shader.NewShader("particles render", shader.RenderProgramSource)
	require.NoError(t, err)
	surface := h.renderer.SurfaceState()
	h.render, err = stage.NewRenderStage(device, renderProgram, h.store, h.shared,
		stage.RenderTarget{Format: surface.Format, SampleCount: surface.SampleCount})
	require.NoError(t, err)

	h.driver = NewFrameDriver(h.renderer, h.store, h.shared, h.compute, h.render, cfg.driverOpts...)
	t.Cleanup(func() {
		h.render.Release()
		h.compute.Release()
		h.shared.Release()
		h.store.Release()
		h.renderer.Release()
	})
	h.backend.Recorder.Reset()
	return h
}

// frameSources splits the call log at every Submit and returns the compute source of each frame.
func frameSources(t *testing.T, calls []gputest.Call) []int {
	t.Helper()
	var out []int
	current := -1
	for _, c := range calls {
		switch c.Op {
		case "SetComputeBindGroup":
			if c.Args[0] != uint64(stage.GroupParticles) {
				continue
			}
			idx := 0
			if c.Label == "Particle Compute 1" {
				idx = 1
			}
			if current >= 0 {
				require.Equal(t, current, idx, "every pass of a frame reads the same source")
			}
			current = idx
		case "Submit":
			out = append(out, current)
			current = -1
		}
	}
	return out
}

func TestFrameDriverAlternatesSources(t *testing.T) {
	h := newHarness(t, harnessConfig{capacity: 100, emitBatch: 10, double: true, sampleCount: renderer.MSAAOff})

	for range 3 {
		result, err := h.driver.AdvanceFrame(input.Snapshot{})
		require.NoError(t, err)
		assert.Equal(t, PresentResultPresented, result)
	}

	rec := h.backend.Recorder
	assert.Equal(t, 3, rec.Count("Present"))
	assert.Equal(t, 3, rec.Count("Submit"))
	assert.Equal(t, []int{0, 1, 0}, frameSources(t, rec.Calls()), "sources A, B, A")
	assert.Equal(t, uint64(3), h.driver.Frame())
	assert.Equal(t, 1, h.store.ReadableIndex(h.driver.Frame()), "B holds the population after 3 frames")

	for _, s := range rec.Filter("Submit") {
		assert.Equal(t, []uint64{1}, s.Args, "one command buffer per frame")
	}
	var draws []gputest.Call
	for _, c := range rec.Calls() {
		if c.Op == "SetRenderBindGroup" && c.Args[0] == uint64(stage.GroupParticles) {
			draws = append(draws, c)
		}
	}
	require.Len(t, draws, 3)
	assert.Equal(t, []string{"Particle Render 1", "Particle Render 0", "Particle Render 1"},
		[]string{draws[0].Label, draws[1].Label, draws[2].Label}, "render reads what compute wrote")
	for _, d := range rec.Filter("Draw") {
		assert.Equal(t, []uint64{300, 1, 0, 0}, d.Args)
	}
}

func TestFrameDriverFrameProcedureOrder(t *testing.T) {
	var states []FrameState
	h := newHarness(t, harnessConfig{
		capacity: 100, emitBatch: 10, double: true, sampleCount: renderer.MSAA4x,
		driverOpts: []FrameDriverBuilderOption{WithStateObserver(func(s FrameState, _ uint64) {
			states = append(states, s)
		})},
	})

	_, err := h.driver.AdvanceFrame(input.Snapshot{})
	require.NoError(t, err)

	assert.Equal(t, []FrameState{
		FrameStateUpdating, FrameStateComputeDispatch, FrameStateRenderDispatch,
		FrameStateSubmitted, FrameStatePresented, FrameStateIdle,
	}, states)
	assert.Equal(t, FrameStateIdle, h.driver.State())

	ops := h.backend.Recorder.Ops()
	index := func(op string) int { return slices.Index(ops, op) }
	assert.Less(t, index("CreateCommandEncoder"), index("BeginComputePass"))
	assert.Less(t, slices.Index(ops, "EndComputePass"), index("GetCurrentTexture"), "compute is recorded before acquisition")
	assert.Less(t, index("GetCurrentTexture"), index("BeginRenderPass"))
	assert.Less(t, index("Finish"), index("Submit"))
	assert.Less(t, index("Submit"), index("Present"))
	assert.Less(t, index("Present"), index("ReleaseFrame"))

	pass := h.backend.Recorder.Filter("BeginRenderPass")
	require.Len(t, pass, 1)
	assert.Equal(t, "MSAA Texture", pass[0].Label)
	assert.Equal(t, []uint64{1, uint64(wgpu.StoreOpDiscard)}, pass[0].Args, "resolves into the swap image")
}

func TestFrameDriverSkipsTimedOutFrame(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := newHarness(t, harnessConfig{
		capacity: 100, emitBatch: 10, double: true, sampleCount: renderer.MSAAOff,
		driverOpts: []FrameDriverBuilderOption{WithFrameLogger(zap.New(core))},
	})
	rec := h.backend.Recorder

	for range 4 {
		_, err := h.driver.AdvanceFrame(input.Snapshot{})
		require.NoError(t, err)
	}
	require.Equal(t, 4, rec.Count("Present"))

	// Frame 5 times out.
	h.backend.Surface.QueueAcquireErrors(gpu.ErrSurfaceTimeout)
	rec.Reset()
	result, err := h.driver.AdvanceFrame(input.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, PresentResultSkipped, result)
	assert.Zero(t, rec.Count("Present"))
	assert.Zero(t, rec.Count("Submit"))
	assert.Zero(t, rec.Count("Finish"))
	assert.Equal(t, 1, rec.Count("ReleaseEncoder"), "the recorded encoder is dropped")
	assert.Equal(t, uint64(4), h.driver.Frame(), "a skipped frame does not advance parity")
	assert.Equal(t, 1, logs.FilterMessage("surface timed out, skipping frame").Len())

	// Frame 6 runs normally from the same source frame 5 would have used.
	rec.Reset()
	result, err = h.driver.AdvanceFrame(input.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, PresentResultPresented, result)
	assert.Equal(t, 1, rec.Count("Present"))
	assert.Equal(t, []int{0}, frameSources(t, rec.Calls()))
	assert.Equal(t, uint64(5), h.driver.Frame())
	assert.Equal(t, 1, h.store.ReadableIndex(h.driver.Frame()))
}

func TestFrameDriverOutdatedSurfaceRecovers(t *testing.T) {
	h := newHarness(t, harnessConfig{capacity: 100, emitBatch: 10, double: true, sampleCount: renderer.MSAAOff})
	h.backend.Surface.QueueAcquireErrors(gpu.ErrSurfaceOutdated)

	result, err := h.driver.AdvanceFrame(input.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, PresentResultPresented, result)
	assert.Equal(t, 1, h.backend.Recorder.Count("Configure"))
	assert.Equal(t, 1, h.backend.Recorder.Count("Present"))
}

func TestFrameDriverFatalAcquire(t *testing.T) {
	h := newHarness(t, harnessConfig{capacity: 100, emitBatch: 10, double: true, sampleCount: renderer.MSAAOff})
	h.backend.Surface.QueueAcquireErrors(gpu.ErrSurfaceLost)

	_, err := h.driver.AdvanceFrame(input.Snapshot{})
	assert.ErrorIs(t, err, gpu.ErrSurfaceLost)
	assert.ErrorContains(t, err, "frame 0")
	assert.Zero(t, h.backend.Recorder.Count("Submit"))
	assert.Equal(t, uint64(0), h.driver.Frame())

	h.backend.Surface.QueueAcquireErrors(gpu.ErrSurfaceOutdated, gpu.ErrSurfaceOutdated)
	_, err = h.driver.AdvanceFrame(input.Snapshot{})
	assert.ErrorIs(t, err, renderer.ErrAcquireRetryFailed)
}

func TestFrameDriverResize(t *testing.T) {
	h := newHarness(t, harnessConfig{capacity: 100, emitBatch: 10, double: true, sampleCount: renderer.MSAA4x})
	rec := h.backend.Recorder

	result, err := h.driver.AdvanceFrame(input.Snapshot{HasInput: true, Resized: &input.Size{Width: 0, Height: 600}})
	require.NoError(t, err)
	assert.Equal(t, PresentResultPresented, result)
	assert.Zero(t, rec.Count("Configure"), "a zero dimension never reconfigures")
	assert.Zero(t, rec.Count("CreateRenderTarget"))
	assert.Equal(t, uint32(800), h.renderer.SurfaceState().Width)

	rec.Reset()
	result, err = h.driver.AdvanceFrame(input.Snapshot{HasInput: true, Resized: &input.Size{Width: 1024, Height: 768}})
	require.NoError(t, err)
	assert.Equal(t, PresentResultPresented, result)
	configures := rec.Filter("Configure")
	require.Len(t, configures, 1)
	assert.Equal(t, []uint64{1024, 768}, configures[0].Args[:2])
	targets := rec.Filter("CreateRenderTarget")
	require.Len(t, targets, 1)
	assert.Equal(t, []uint64{1024, 768, 4}, targets[0].Args)
	assert.Less(t, slices.Index(rec.Ops(), "Configure"), slices.Index(rec.Ops(), "GetCurrentTexture"))

	h.backend.Surface.ConfigureErr = errors.New("device lost")
	_, err = h.driver.AdvanceFrame(input.Snapshot{Resized: &input.Size{Width: 640, Height: 480}})
	assert.ErrorContains(t, err, "device lost")
}

func TestFrameDriverWritesUniformsBeforeSubmit(t *testing.T) {
	h := newHarness(t, harnessConfig{capacity: 100, emitBatch: 10, double: true, sampleCount: renderer.MSAAOff})
	rec := h.backend.Recorder

	_, err := h.driver.AdvanceFrame(input.Snapshot{
		HasInput:     true,
		Pointer:      [2]float32{600, 150},
		PointerDown:  true,
		PauseToggled: true,
	})
	require.NoError(t, err)

	calls := rec.Calls()
	write := slices.IndexFunc(calls, func(c gputest.Call) bool { return c.Op == "WriteBuffer" && c.Label == "Shared Uniforms" })
	submit := slices.IndexFunc(calls, func(c gputest.Call) bool { return c.Op == "Submit" })
	pass := slices.IndexFunc(calls, func(c gputest.Call) bool { return c.Op == "BeginComputePass" })
	require.GreaterOrEqual(t, write, 0)
	assert.Less(t, write, pass, "the write is queued before any pass is recorded")
	assert.Less(t, write, submit)
	assert.Equal(t, []uint64{0, 32}, calls[write].Args, "the whole block is written")

	buf := h.shared.UniformBuffer().(*gputest.Buffer).Contents()
	assert.Equal(t, uint32(100), binary.LittleEndian.Uint32(buf[0:]), "capacity")
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[4:]), "paused")
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[8:]), "pointer down")
	assert.Equal(t, uint32(10), binary.LittleEndian.Uint32(buf[12:]), "emit batch")
	assert.InDelta(t, 0.5, math.Float32frombits(binary.LittleEndian.Uint32(buf[16:])), 1e-6)
	assert.InDelta(t, 0.5, math.Float32frombits(binary.LittleEndian.Uint32(buf[20:])), 1e-6)
	assert.True(t, h.driver.Paused())

	// No input leaves the block untouched.
	rec.Reset()
	_, err = h.driver.AdvanceFrame(input.Snapshot{})
	require.NoError(t, err)
	assert.Zero(t, rec.Count("WriteBuffer"))

	// A second toggle resumes.
	_, err = h.driver.AdvanceFrame(input.Snapshot{HasInput: true, PauseToggled: true})
	require.NoError(t, err)
	assert.False(t, h.driver.Paused())
	assert.Equal(t, uint32(0), h.shared.Uniforms().Paused)
}

func TestFrameDriverQuit(t *testing.T) {
	h := newHarness(t, harnessConfig{capacity: 10, emitBatch: 1, double: false, sampleCount: renderer.MSAAOff})

	result, err := h.driver.AdvanceFrame(input.Snapshot{Quit: true, HasInput: true})
	require.NoError(t, err)
	assert.Equal(t, PresentResultQuit, result)
	assert.Empty(t, h.backend.Recorder.Calls())
}

func TestFrameDriverSingleBuffer(t *testing.T) {
	h := newHarness(t, harnessConfig{capacity: 64, emitBatch: 8, double: false, sampleCount: renderer.MSAAOff})
	for range 3 {
		_, err := h.driver.AdvanceFrame(input.Snapshot{})
		require.NoError(t, err)
	}
	assert.Equal(t, []int{0, 0, 0}, frameSources(t, h.backend.Recorder.Calls()))
	for _, c := range h.backend.Recorder.Filter("SetRenderBindGroup") {
		if c.Args[0] == uint64(stage.GroupParticles) {
			assert.Equal(t, "Particle Render", c.Label)
		}
	}
}

func TestFrameStateNames(t *testing.T) {
	assert.Equal(t, "compute_dispatch", FrameStateComputeDispatch.String())
	assert.Equal(t, "presented", FrameStatePresented.String())
	assert.Equal(t, "FrameState(42)", FrameState(42).String())
	assert.Equal(t, "skipped", PresentResultSkipped.String())
}

func TestFrameDriverReallocate(t *testing.T) {
	h := newHarness(t, harnessConfig{capacity: 100, emitBatch: 10, double: true, sampleCount: renderer.MSAAOff})
	_, err := h.driver.AdvanceFrame(input.Snapshot{})
	require.NoError(t, err)
	old := h.store.Buffer(0).(*gputest.Buffer)

	require.NoError(t, h.driver.Reallocate(1000))
	assert.True(t, old.Released())
	assert.Equal(t, uint32(1000), h.store.Capacity())
	assert.Equal(t, uint32(1000), h.shared.Uniforms().Capacity)
	assert.Equal(t, [3]uint32{16, 1, 1}, h.compute.Workgroups())
	assert.Equal(t, uint32(3000), h.render.VertexCount())

	h.backend.Recorder.Reset()
	_, err = h.driver.AdvanceFrame(input.Snapshot{})
	require.NoError(t, err, "the stages were rebuilt against the new buffers")
	assert.Equal(t, []int{1}, frameSources(t, h.backend.Recorder.Calls()), "parity continues across reallocation")
	for _, d := range h.backend.Recorder.Filter("Draw") {
		assert.Equal(t, uint64(3000), d.Args[0])
	}

	assert.Error(t, h.driver.Reallocate(0))
}

func TestFrameDriverReallocateSeedsNextSource(t *testing.T) {
	for _, frames := range []int{1, 2} {
		t.Run(fmt.Sprintf("after %d frames", frames), func(t *testing.T) {
			h := newHarness(t, harnessConfig{
				capacity:    100,
				emitBatch:   10,
				double:      true,
				sampleCount: renderer.MSAAOff,
				storeOpts:   []particle.StoreBuilderOption{particle.WithSeeder(particle.ScatterSeeder(3))},
			})
			for range frames {
				_, err := h.driver.AdvanceFrame(input.Snapshot{})
				require.NoError(t, err)
			}

			require.NoError(t, h.driver.Reallocate(200))
			source := h.store.SourceIndex(h.driver.Frame())
			seeded := h.store.Buffer(source).(*gputest.Buffer).Contents()
			zeroed := h.store.Buffer(1 - source).(*gputest.Buffer).Contents()
			assert.NotEqual(t, make([]byte, len(seeded)), seeded, "the next compute source holds the seeded records")
			assert.Equal(t, make([]byte, len(zeroed)), zeroed)
		})
	}
}
