package input

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-particles/common"
	"github.com/Carmen-Shannon/oxy-particles/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// callbackWindow captures the callbacks a tracker registers.
type callbackWindow struct {
	window.Window

	resize      func(int, int)
	keyDown     func(uint32)
	keyUp       func(uint32)
	mouseButton func(int, bool, int32, int32)
	mouseMove   func(int32, int32)
}

func (w *callbackWindow) SetResizeCallback(cb func(int, int))                     { w.resize = cb }
func (w *callbackWindow) SetKeyDownCallback(cb func(uint32))                      { w.keyDown = cb }
func (w *callbackWindow) SetKeyUpCallback(cb func(uint32))                        { w.keyUp = cb }
func (w *callbackWindow) SetMouseButtonCallback(cb func(int, bool, int32, int32)) { w.mouseButton = cb }
func (w *callbackWindow) SetMouseMoveCallback(cb func(int32, int32))              { w.mouseMove = cb }
func (w *callbackWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor              { return nil }

func TestTrackerPollResetsOneShotFields(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, Snapshot{}, tr.Poll())

	tr.MouseMove(400, 300)
	tr.KeyDown(common.KeyP)
	tr.Resize(1024, 0)

	s := tr.Poll()
	assert.True(t, s.HasInput)
	assert.Equal(t, [2]float32{400, 300}, s.Pointer)
	assert.True(t, s.PauseToggled)
	require.NotNil(t, s.Resized)
	assert.Equal(t, Size{Width: 1024, Height: 0}, *s.Resized)

	s = tr.Poll()
	assert.False(t, s.HasInput)
	assert.False(t, s.PauseToggled)
	assert.Nil(t, s.Resized)
	assert.Equal(t, [2]float32{400, 300}, s.Pointer, "the pointer position persists")
}

func TestTrackerPointerButton(t *testing.T) {
	tr := NewTracker()

	tr.MouseButton(common.MouseButtonRight, true, 10, 10)
	assert.False(t, tr.Poll().HasInput, "only the left button drives the pointer")

	tr.MouseButton(common.MouseButtonLeft, true, 20, 30)
	s := tr.Poll()
	assert.True(t, s.PointerDown)
	assert.Equal(t, [2]float32{20, 30}, s.Pointer)

	assert.True(t, tr.Poll().PointerDown, "the button state is held between polls")

	tr.MouseButton(common.MouseButtonLeft, false, 20, 30)
	assert.False(t, tr.Poll().PointerDown)
}

func TestTrackerKeys(t *testing.T) {
	tests := []struct {
		name   string
		keys   []uint32
		paused bool
		quit   bool
	}{
		{"pause", []uint32{common.KeyP}, true, false},
		{"pause twice cancels", []uint32{common.KeyP, common.KeyP}, false, false},
		{"escape quits", []uint32{common.KeyEsc}, false, true},
		{"q quits", []uint32{common.KeyQ}, false, true},
		{"space ignored", []uint32{common.KeySpace}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			for _, k := range tt.keys {
				tr.KeyDown(k)
				tr.KeyUp(k)
			}
			s := tr.Poll()
			assert.Equal(t, tt.paused, s.PauseToggled)
			assert.Equal(t, tt.quit, s.Quit)
		})
	}
}

func TestTrackerQuitIsSticky(t *testing.T) {
	tr := NewTracker()
	tr.RequestQuit()
	assert.True(t, tr.Poll().Quit)
	assert.True(t, tr.Poll().Quit)
}

func TestTrackerAttach(t *testing.T) {
	w := &callbackWindow{}
	tr := NewTracker()
	tr.Attach(w)

	require.NotNil(t, w.mouseMove)
	w.mouseMove(5, 6)
	w.mouseButton(common.MouseButtonLeft, true, 7, 8)
	w.keyDown(common.KeyP)
	w.keyUp(common.KeyP)
	w.resize(640, 480)

	s := tr.Poll()
	assert.Equal(t, [2]float32{7, 8}, s.Pointer)
	assert.True(t, s.PointerDown)
	assert.True(t, s.PauseToggled)
	assert.Equal(t, &Size{Width: 640, Height: 480}, s.Resized)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name          string
		pointer       [2]float32
		width, height uint32
		want          [2]float32
	}{
		{"top left", [2]float32{0, 0}, 800, 600, [2]float32{-1, 1}},
		{"center", [2]float32{400, 300}, 800, 600, [2]float32{0, 0}},
		{"bottom right", [2]float32{800, 600}, 800, 600, [2]float32{1, -1}},
		{"quarter", [2]float32{200, 450}, 800, 600, [2]float32{-0.5, -0.5}},
		{"zero size", [2]float32{10, 10}, 0, 600, [2]float32{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.pointer, tt.width, tt.height)
			assert.InDelta(t, tt.want[0], got[0], 1e-6)
			assert.InDelta(t, tt.want[1], got[1], 1e-6)
		})
	}
}
