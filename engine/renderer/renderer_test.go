package renderer

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
	"github.com/Carmen-Shannon/oxy-particles/engine/gpu/gputest"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeWindow struct {
	width, height int
}

func (w fakeWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor { return &wgpu.SurfaceDescriptor{} }
func (w fakeWindow) Width() int                                 { return w.width }
func (w fakeWindow) Height() int                                { return w.height }

func newTestRenderer(t *testing.T, opts ...RendererBuilderOption) (Renderer, *gputest.Backend) {
	t.Helper()
	backend := gputest.NewBackend()
	r, err := NewRenderer(backend, fakeWindow{800, 600}, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r, backend
}

func TestNewRendererDefaults(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r, backend := newTestRenderer(t, WithLogger(zap.New(core)))

	assert.Equal(t, wgpu.PowerPreferenceHighPerformance, backend.LastOptions.PowerPreference)
	assert.Equal(t, DefaultStorageBindingLimit, backend.LastOptions.StorageBindingLimit)
	assert.Equal(t, DefaultStorageBindingLimit, r.Device().Limits().MaxStorageBufferBindingSize)

	configures := backend.Recorder.Filter("Configure")
	require.Len(t, configures, 1)
	assert.Equal(t, []uint64{800, 600, uint64(wgpu.PresentModeImmediate)}, configures[0].Args)

	targets := backend.Recorder.Filter("CreateRenderTarget")
	require.Len(t, targets, 1)
	assert.Equal(t, []uint64{800, 600, 4}, targets[0].Args)

	state := r.SurfaceState()
	assert.Equal(t, uint32(800), state.Width)
	assert.Equal(t, uint32(600), state.Height)
	assert.Equal(t, wgpu.TextureFormatBGRA8Unorm, state.Format)
	assert.Equal(t, PresentModeUncapped, state.PresentMode)
	require.NotNil(t, state.MSAATarget)
	assert.Equal(t, uint32(4), state.MSAATarget.SampleCount())

	assert.Equal(t, 1, logs.FilterMessage("renderer initialized").Len())
}

func TestNewRendererOptions(t *testing.T) {
	r, backend := newTestRenderer(t,
		WithMSAA(MSAAOff),
		WithPresentMode(PresentModeVSync),
		WithStorageBindingLimit(1<<30),
	)

	assert.Equal(t, uint64(1<<30), backend.LastOptions.StorageBindingLimit)
	assert.Zero(t, backend.Recorder.Count("CreateRenderTarget"))
	assert.Nil(t, r.SurfaceState().MSAATarget)
	assert.Equal(t, wgpu.PresentModeFifo, backend.Surface.Config().PresentMode)
}

func TestNewRendererErrors(t *testing.T) {
	backend := gputest.NewBackend()
	backend.OpenErr = gpu.ErrNoAdapter
	_, err := NewRenderer(backend, fakeWindow{800, 600})
	assert.ErrorIs(t, err, gpu.ErrNoAdapter)

	_, err = NewRenderer(gputest.NewBackend(), fakeWindow{800, 600}, WithMSAA(3))
	assert.ErrorContains(t, err, "unsupported sample count 3")

	backend = gputest.NewBackend()
	_, err = NewRenderer(backend, fakeWindow{0, 600})
	assert.ErrorContains(t, err, "configure surface 0x600")
	assert.Equal(t, 1, backend.Recorder.Count("ReleaseDevice"))
}

func TestNewRendererClampedStorageLimit(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	backend := gputest.NewBackend()
	backend.SupportedStorageBindingLimit = 128 << 20

	r, err := NewRenderer(backend, fakeWindow{800, 600}, WithLogger(zap.New(core)))
	require.NoError(t, err)
	t.Cleanup(r.Release)

	assert.Equal(t, uint64(128<<20), r.Device().Limits().MaxStorageBufferBindingSize)
	entries := logs.FilterMessage("adapter storage binding limit below the requested size").All()
	require.Len(t, entries, 1)
	assert.Equal(t, DefaultStorageBindingLimit, entries[0].ContextMap()["requested"])
	assert.Equal(t, uint64(128<<20), entries[0].ContextMap()["granted"])
}

func TestResize(t *testing.T) {
	reconfigured := []SurfaceState{}
	r, backend := newTestRenderer(t, WithConfigureObserver(func(s SurfaceState) {
		reconfigured = append(reconfigured, s)
	}))
	first := r.SurfaceState().MSAATarget.(*gputest.TextureView)
	backend.Recorder.Reset()

	tests := []struct {
		name          string
		width, height int
	}{
		{"zero width", 0, 600},
		{"zero height", 800, 0},
		{"both zero", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, r.Resize(tt.width, tt.height))
			assert.Empty(t, backend.Recorder.Calls())
			assert.Equal(t, uint32(800), r.SurfaceState().Width)
			assert.Same(t, first, r.SurfaceState().MSAATarget)
		})
	}

	require.NoError(t, r.Resize(1024, 768))
	state := r.SurfaceState()
	assert.Equal(t, uint32(1024), state.Width)
	assert.Equal(t, uint32(768), state.Height)
	assert.Equal(t, uint32(1024), state.MSAATarget.Width())
	assert.Equal(t, uint32(768), state.MSAATarget.Height())
	assert.Equal(t, uint32(4), state.MSAATarget.SampleCount())
	assert.True(t, first.Released())
	assert.Equal(t, []string{"CreateRenderTarget", "Configure", "ReleaseTexture"}, backend.Recorder.Ops())
	assert.Len(t, reconfigured, 2)

	backend.Surface.ConfigureErr = errors.New("device lost")
	err := r.Resize(640, 480)
	assert.ErrorContains(t, err, "device lost")
	assert.Equal(t, uint32(1024), r.SurfaceState().Width, "failed resize keeps the last good configuration")
}

func TestResizeFailureKeepsSurfaceAndTarget(t *testing.T) {
	t.Run("multisample target", func(t *testing.T) {
		r, backend := newTestRenderer(t)
		first := r.SurfaceState().MSAATarget
		backend.Recorder.Reset()
		backend.Device.Errors["CreateRenderTarget"] = errors.New("out of memory")

		err := r.Resize(1024, 768)
		assert.ErrorContains(t, err, "create multisample target 1024x768")
		assert.Zero(t, backend.Recorder.Count("Configure"), "the surface keeps its size")
		assert.Equal(t, uint32(800), r.SurfaceState().Width)
		assert.Same(t, first, r.SurfaceState().MSAATarget)
		assert.False(t, first.(*gputest.TextureView).Released())
	})

	t.Run("surface", func(t *testing.T) {
		r, backend := newTestRenderer(t)
		first := r.SurfaceState().MSAATarget
		backend.Recorder.Reset()
		backend.Surface.ConfigureErr = errors.New("device lost")

		require.Error(t, r.Resize(1024, 768))
		assert.Equal(t, []string{"CreateRenderTarget", "ReleaseTexture"}, backend.Recorder.Ops(), "the new target is dropped")
		assert.Same(t, first, r.SurfaceState().MSAATarget)
		assert.False(t, first.(*gputest.TextureView).Released())
	})
}

func TestAcquireFrame(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		r, backend := newTestRenderer(t)
		frame, err := r.AcquireFrame()
		require.NoError(t, err)
		assert.Equal(t, "Surface Frame 1", frame.View().Label())
		assert.Equal(t, 1, backend.Recorder.Count("GetCurrentTexture"))
	})

	t.Run("outdated reconfigures once and retries", func(t *testing.T) {
		r, backend := newTestRenderer(t)
		backend.Surface.QueueAcquireErrors(gpu.ErrSurfaceOutdated)
		backend.Recorder.Reset()

		frame, err := r.AcquireFrame()
		require.NoError(t, err)
		require.NotNil(t, frame)
		assert.Equal(t, []string{"GetCurrentTexture", "CreateRenderTarget", "Configure", "ReleaseTexture", "GetCurrentTexture"}, backend.Recorder.Ops())
		assert.Equal(t, []uint64{800, 600, uint64(wgpu.PresentModeImmediate)}, backend.Recorder.Filter("Configure")[0].Args)
	})

	t.Run("outdated twice is fatal", func(t *testing.T) {
		r, backend := newTestRenderer(t)
		backend.Surface.QueueAcquireErrors(gpu.ErrSurfaceOutdated, gpu.ErrSurfaceTimeout)

		_, err := r.AcquireFrame()
		assert.ErrorIs(t, err, ErrAcquireRetryFailed)
		assert.NotErrorIs(t, err, gpu.ErrSurfaceTimeout)
	})

	t.Run("timeout is skippable", func(t *testing.T) {
		r, backend := newTestRenderer(t)
		backend.Surface.QueueAcquireErrors(errors.New("surface texture status: Timeout"))
		backend.Recorder.Reset()

		_, err := r.AcquireFrame()
		assert.ErrorIs(t, err, gpu.ErrSurfaceTimeout)
		assert.Zero(t, backend.Recorder.Count("Configure"))
	})

	t.Run("lost is fatal", func(t *testing.T) {
		r, backend := newTestRenderer(t)
		backend.Surface.QueueAcquireErrors(gpu.ErrSurfaceLost)

		_, err := r.AcquireFrame()
		assert.ErrorIs(t, err, gpu.ErrSurfaceLost)
		assert.ErrorContains(t, err, "renderer: acquire frame")
	})
}

func TestColorAttachment(t *testing.T) {
	r, _ := newTestRenderer(t, WithClearColor(wgpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1}))
	frame, err := r.AcquireFrame()
	require.NoError(t, err)

	a := r.ColorAttachment(frame)
	assert.Equal(t, "MSAA Texture", a.View.Label())
	assert.Same(t, frame.View(), a.ResolveTarget)
	assert.Equal(t, wgpu.StoreOpDiscard, a.StoreOp)
	assert.Equal(t, wgpu.LoadOpClear, a.LoadOp)
	assert.Equal(t, 0.1, a.ClearValue.R)

	single, _ := newTestRenderer(t, WithMSAA(MSAAOff))
	frame, err = single.AcquireFrame()
	require.NoError(t, err)
	a = single.ColorAttachment(frame)
	assert.Same(t, frame.View(), a.View)
	assert.Nil(t, a.ResolveTarget)
	assert.Equal(t, wgpu.StoreOpStore, a.StoreOp)
	assert.Equal(t, 1.0, a.ClearValue.A)
}

func TestPresentReleasesFrame(t *testing.T) {
	r, backend := newTestRenderer(t)
	frame, err := r.AcquireFrame()
	require.NoError(t, err)
	backend.Recorder.Reset()

	require.NoError(t, r.Present(frame))
	assert.Equal(t, []string{"Present", "ReleaseFrame"}, backend.Recorder.Ops())
}

func TestPresentModeNames(t *testing.T) {
	for _, name := range []string{"vsync", "immediate"} {
		m, err := ParsePresentMode(name)
		require.NoError(t, err)
		assert.Equal(t, name, m.String())
	}
	_, err := ParsePresentMode("mailbox")
	assert.Error(t, err)

	assert.True(t, MSAA8x.Valid())
	assert.False(t, MSAASampleCount(2).Valid())
}
