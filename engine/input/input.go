// Package input turns window events into one Snapshot per frame.
package input

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-particles/common"
	"github.com/Carmen-Shannon/oxy-particles/engine/window"
)

// Size is a framebuffer size in pixels.
type Size struct {
	Width, Height int
}

// Snapshot is the host input accumulated since the previous Poll.
type Snapshot struct {
	// HasInput is true when any pointer, key or resize event arrived since the previous Poll.
	HasInput bool

	// Pointer is the last known cursor position in framebuffer pixels.
	Pointer [2]float32

	// PointerDown is true while the left mouse button is held.
	PointerDown bool

	// PauseToggled is true when the pause key was pressed since the previous Poll.
	PauseToggled bool

	// Resized holds the latest framebuffer size when the window was resized since the previous Poll.
	Resized *Size

	// Quit is true once a quit key was pressed or the window asked to close. It stays set.
	Quit bool
}

// tracker is the implementation of the Tracker interface.
type tracker struct {
	mu sync.Mutex

	pointer      [2]float32
	pointerDown  bool
	dirty        bool
	pauseToggled bool
	resized      *Size
	quit         bool
}

// Tracker accumulates window events between frames.
// The handler methods match the window callback signatures so the tracker can be attached directly.
type Tracker interface {
	// Attach registers the tracker's handlers as the window's input and resize callbacks.
	//
	// Parameters:
	//   - w: the window to track
	Attach(w window.Window)

	// KeyDown handles a key press. common.KeyP toggles pause, common.KeyEsc and common.KeyQ quit.
	KeyDown(keyCode uint32)

	// KeyUp handles a key release.
	KeyUp(keyCode uint32)

	// MouseButton handles a mouse button press or release at x, y.
	MouseButton(button int, down bool, x, y int32)

	// MouseMove handles cursor movement.
	MouseMove(x, y int32)

	// Resize handles a framebuffer resize, including the zero size reported when minimized.
	Resize(width, height int)

	// RequestQuit marks the session as finished.
	RequestQuit()

	// Poll returns the input accumulated since the previous Poll and clears the one-shot fields.
	//
	// Returns:
	//   - Snapshot: the accumulated input
	Poll() Snapshot
}

var _ Tracker = &tracker{}

// NewTracker returns a tracker with no pending input.
//
// Returns:
//   - Tracker: the new tracker
func NewTracker() Tracker {
	return &tracker{}
}

func (t *tracker) Attach(w window.Window) {
	w.SetKeyDownCallback(t.KeyDown)
	w.SetKeyUpCallback(t.KeyUp)
	w.SetMouseButtonCallback(t.MouseButton)
	w.SetMouseMoveCallback(t.MouseMove)
	w.SetResizeCallback(t.Resize)
}

func (t *tracker) KeyDown(keyCode uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch keyCode {
	case common.KeyP:
		t.pauseToggled = !t.pauseToggled
		t.dirty = true
	case common.KeyEsc, common.KeyQ:
		t.quit = true
	}
}

func (t *tracker) KeyUp(keyCode uint32) {}

func (t *tracker) MouseButton(button int, down bool, x, y int32) {
	if button != common.MouseButtonLeft {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pointerDown = down
	t.pointer = [2]float32{float32(x), float32(y)}
	t.dirty = true
}

func (t *tracker) MouseMove(x, y int32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pointer = [2]float32{float32(x), float32(y)}
	t.dirty = true
}

func (t *tracker) Resize(width, height int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resized = &Size{Width: width, Height: height}
	t.dirty = true
}

func (t *tracker) RequestQuit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.quit = true
}

func (t *tracker) Poll() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		HasInput:     t.dirty,
		Pointer:      t.pointer,
		PointerDown:  t.pointerDown,
		PauseToggled: t.pauseToggled,
		Resized:      t.resized,
		Quit:         t.quit,
	}
	t.dirty = false
	t.pauseToggled = false
	t.resized = nil
	return s
}

// Normalize maps a framebuffer pixel position to clip space, with Y pointing up.
// A degenerate size maps to the origin.
//
// Parameters:
//   - pointer: the position in pixels
//   - width, height: the framebuffer size in pixels
//
// Returns:
//   - [2]float32: the position in [-1, 1] on both axes
func Normalize(pointer [2]float32, width, height uint32) [2]float32 {
	if width == 0 || height == 0 {
		return [2]float32{}
	}
	return [2]float32{
		pointer[0]/float32(width)*2 - 1,
		-(pointer[1]/float32(height))*2 + 1,
	}
}
