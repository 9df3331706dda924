package stage

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
	"github.com/Carmen-Shannon/oxy-particles/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-particles/engine/particle"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-particles/engine/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	device *gputest.Device
	store  particle.Store
	shared shared.SharedState
}

func newFixture(t *testing.T, capacity, emitBatch uint32, doubleBuffered bool) fixture {
	t.Helper()
	d := gputest.NewDevice(nil)
	store, err := particle.NewStore(d, particle.WithCapacity(capacity), particle.WithDoubleBuffering(doubleBuffered))
	require.NoError(t, err)
	state, err := shared.NewSharedState(d, capacity, emitBatch)
	require.NoError(t, err)
	t.Cleanup(func() {
		state.Release()
		store.Release()
	})
	return fixture{device: d, store: store, shared: state}
}

func computeProgram(t *testing.T, doubleBuffered bool) shader.Shader {
	t.Helper()
	s, err := shader.NewShader("particles compute", shader.ComputeProgramSource, shader.WithDefine(shader.DefineDoubleBuffered, doubleBuffered))
	require.NoError(t, err)
	return s
}

func recordCompute(t *testing.T, f fixture, s ComputeStage, frame uint64) []gputest.Call {
	t.Helper()
	f.device.Recorder().Reset()
	enc, err := f.device.CreateCommandEncoder("Frame")
	require.NoError(t, err)
	require.NoError(t, s.Record(enc, frame))
	return f.device.Recorder().Calls()
}

func dispatches(calls []gputest.Call) []gputest.Call {
	var out []gputest.Call
	for _, c := range calls {
		if c.Op == "Dispatch" {
			out = append(out, c)
		}
	}
	return out
}

func particleGroups(calls []gputest.Call) []string {
	var out []string
	for _, c := range calls {
		if (c.Op == "SetComputeBindGroup" || c.Op == "SetRenderBindGroup") && c.Args[0] == uint64(GroupParticles) {
			out = append(out, c.Label)
		}
	}
	return out
}

func TestComputeStageRecordsPassesInOrder(t *testing.T) {
	f := newFixture(t, 100, 10, true)
	s, err := NewComputeStage(f.device, computeProgram(t, true), f.store, f.shared, WithSwapPass(true))
	require.NoError(t, err)
	defer s.Release()

	assert.True(t, s.SwapEnabled())
	assert.Equal(t, [3]uint32{2, 1, 1}, s.Workgroups())
	assert.Equal(t, [3]uint32{1, 1, 1}, s.EmitWorkgroups())

	calls := recordCompute(t, f, s, 0)
	d := dispatches(calls)
	require.Len(t, d, 3)
	assert.Equal(t, "swap", d[0].Label)
	assert.Equal(t, []uint64{1, 1, 1}, d[0].Args)
	assert.Equal(t, "step_particles", d[1].Label)
	assert.Equal(t, []uint64{2, 1, 1}, d[1].Args)
	assert.Equal(t, "emit", d[2].Label)
	assert.Equal(t, []uint64{1, 1, 1}, d[2].Args)

	passes := 0
	for _, c := range calls {
		if c.Op == "BeginComputePass" {
			passes++
		}
	}
	assert.Equal(t, 3, passes)
	assert.Equal(t, 3, f.device.Recorder().Count("EndComputePass"))
}

func TestComputeStageWithoutSwap(t *testing.T) {
	f := newFixture(t, 100, 10, true)
	s, err := NewComputeStage(f.device, computeProgram(t, true), f.store, f.shared)
	require.NoError(t, err)
	defer s.Release()

	d := dispatches(recordCompute(t, f, s, 0))
	require.Len(t, d, 2)
	assert.Equal(t, "step_particles", d[0].Label)
	assert.Equal(t, "emit", d[1].Label)
}

func TestComputeStageSelectsBindGroupByParity(t *testing.T) {
	f := newFixture(t, 100, 10, true)
	s, err := NewComputeStage(f.device, computeProgram(t, true), f.store, f.shared)
	require.NoError(t, err)
	defer s.Release()

	for frame, want := range []string{"Particle Compute 0", "Particle Compute 1", "Particle Compute 0", "Particle Compute 1"} {
		groups := particleGroups(recordCompute(t, f, s, uint64(frame)))
		assert.Equal(t, []string{want, want}, groups, "frame %d", frame)
	}

	provider := s.(*computeStage).particles
	even := provider.BindGroup(0).(*gputest.BindGroup)
	odd := provider.BindGroup(1).(*gputest.BindGroup)
	assert.Same(t, f.store.Buffer(0), even.Entry(0).Buffer, "frame 0 reads A")
	assert.Same(t, f.store.Buffer(1), even.Entry(1).Buffer, "frame 0 writes B")
	assert.Same(t, f.store.Buffer(1), odd.Entry(0).Buffer, "frame 1 reads B")
	assert.Same(t, f.store.Buffer(0), odd.Entry(1).Buffer, "frame 1 writes A")
}

func TestComputeStageSingleBuffer(t *testing.T) {
	f := newFixture(t, 64, 64, false)
	s, err := NewComputeStage(f.device, computeProgram(t, false), f.store, f.shared)
	require.NoError(t, err)
	defer s.Release()

	assert.Equal(t, [3]uint32{1, 1, 1}, s.Workgroups())
	for frame := range uint64(3) {
		assert.Equal(t, []string{"Particle Compute", "Particle Compute"}, particleGroups(recordCompute(t, f, s, frame)))
	}
	bg := s.(*computeStage).particles.BindGroup(7).(*gputest.BindGroup)
	assert.Same(t, f.store.Buffer(0), bg.Entry(0).Buffer)
}

func TestComputeStageSplitsLargeDispatch(t *testing.T) {
	f := newFixture(t, 1000, 0, true)
	f.device.SetMaxWorkgroupsPerDimension(4)

	s, err := NewComputeStage(f.device, computeProgram(t, true), f.store, f.shared)
	require.NoError(t, err)
	defer s.Release()

	assert.Equal(t, [3]uint32{4, 4, 1}, s.Workgroups())
	d := dispatches(recordCompute(t, f, s, 0))
	require.Len(t, d, 1, "an empty emit batch records no emit pass")
	assert.Equal(t, []uint64{4, 4, 1}, d[0].Args)
}

func TestComputeStageRejectsMismatchedProgram(t *testing.T) {
	t.Run("buffering", func(t *testing.T) {
		f := newFixture(t, 100, 10, false)
		_, err := NewComputeStage(f.device, computeProgram(t, true), f.store, f.shared)
		assert.ErrorContains(t, err, "does not match the store")
	})

	t.Run("missing swap entry point", func(t *testing.T) {
		f := newFixture(t, 100, 10, true)
		src := strings.Replace(shader.ComputeProgramSource, "fn swap()", "fn swap_lengths()", 1)
		program, err := shader.NewShader("no swap", src, shader.WithDefines(shader.DefineDoubleBuffered))
		require.NoError(t, err)

		_, err = NewComputeStage(f.device, program, f.store, f.shared, WithSwapPass(true))
		assert.ErrorContains(t, err, `missing compute entry point "swap"`)

		s, err := NewComputeStage(f.device, program, f.store, f.shared)
		require.NoError(t, err, "swap is only required when enabled")
		s.Release()
	})

	t.Run("stride below the record size", func(t *testing.T) {
		d := gputest.NewDevice(nil)
		store, err := particle.NewStore(d, particle.WithCapacity(10), particle.WithStride(32), particle.WithDoubleBuffering(true))
		require.NoError(t, err)
		state, err := shared.NewSharedState(d, 10, 1)
		require.NoError(t, err)

		_, err = NewComputeStage(d, computeProgram(t, true), store, state)
		assert.ErrorContains(t, err, "below the declared 64 bytes")
	})

	t.Run("nil program", func(t *testing.T) {
		f := newFixture(t, 100, 10, true)
		_, err := NewComputeStage(f.device, nil, f.store, f.shared)
		assert.ErrorContains(t, err, "no program")
	})
}

func TestComputeStageRebuildAfterResize(t *testing.T) {
	f := newFixture(t, 100, 10, true)
	s, err := NewComputeStage(f.device, computeProgram(t, true), f.store, f.shared)
	require.NoError(t, err)
	defer s.Release()
	old := s.(*computeStage).particles.BindGroup(0).(*gputest.BindGroup)

	require.NoError(t, f.store.Resize(200, 0))
	require.NoError(t, f.shared.Resize(f.device.Queue(), 200))

	enc, err := f.device.CreateCommandEncoder("Frame")
	require.NoError(t, err)
	assert.ErrorContains(t, s.Record(enc, 0), "stale")

	require.NoError(t, s.Rebuild())
	assert.True(t, old.Released())
	assert.Equal(t, [3]uint32{4, 1, 1}, s.Workgroups())
	bg := s.(*computeStage).particles.BindGroup(0).(*gputest.BindGroup)
	assert.Same(t, f.store.Buffer(0), bg.Entry(0).Buffer)
	assert.Len(t, dispatches(recordCompute(t, f, s, 0)), 2)
}

func TestComputeStageBindsSharedState(t *testing.T) {
	f := newFixture(t, 100, 10, true)
	s, err := NewComputeStage(f.device, computeProgram(t, true), f.store, f.shared)
	require.NoError(t, err)
	defer s.Release()

	var sharedGroups []string
	for _, c := range recordCompute(t, f, s, 0) {
		if c.Op == "SetComputeBindGroup" && c.Args[0] == uint64(GroupShared) {
			sharedGroups = append(sharedGroups, c.Label)
		}
	}
	assert.Equal(t, []string{"Shared Compute", "Shared Compute"}, sharedGroups)

	bg := f.shared.ComputeGroup().BindGroup(0).(*gputest.BindGroup)
	assert.Equal(t, gpu.Buffer(f.shared.MetadataBuffer()), bg.Entry(shared.BindingMetadata).Buffer)
}
