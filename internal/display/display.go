// Package display shows frames in named windows.
package display

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Window names used by the app.
const (
	DebugWindow = "Debug Frame"
	DepthWindow = "Depth Frame"
	PoseWindow  = "Pose"
)

// Keys that stop the app.
const (
	KeyQuit   = 'q'
	KeyEscape = 27
)

// IsQuit reports whether key asks the app to stop.
func IsQuit(key int) bool {
	return key == KeyQuit || key == KeyEscape
}

// Display shows Mats in named windows and polls the keyboard.
type Display interface {
	Show(name string, m gocv.Mat)
	WaitKey(ms int) int
	Close() error
}

// Windows is a Display backed by highgui windows, opened on first use.
type Windows struct {
	windows map[string]*gocv.Window
	order   []string
	mu      sync.Mutex
}

// NewWindows creates an empty set of windows.
func NewWindows() *Windows {
	return &Windows{windows: make(map[string]*gocv.Window)}
}

// Show draws m in the window called name, creating it if needed.
func (w *Windows) Show(name string, m gocv.Mat) {
	if m.Empty() {
		return
	}

	w.mu.Lock()
	win, ok := w.windows[name]
	if !ok {
		win = gocv.NewWindow(name)
		w.windows[name] = win
		w.order = append(w.order, name)
	}
	w.mu.Unlock()

	win.IMShow(m)
}

// WaitKey pumps window events for ms milliseconds and returns the pressed
// key, or -1. Without windows it returns -1 immediately.
func (w *Windows) WaitKey(ms int) int {
	w.mu.Lock()
	var win *gocv.Window
	if len(w.order) > 0 {
		win = w.windows[w.order[0]]
	}
	w.mu.Unlock()

	if win == nil {
		return -1
	}
	return win.WaitKey(ms)
}

// Close destroys every window.
func (w *Windows) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var first error
	for _, name := range w.order {
		if err := w.windows[name].Close(); err != nil && first == nil {
			first = err
		}
	}
	w.windows = make(map[string]*gocv.Window)
	w.order = nil
	return first
}

// Headless is a Display that drops frames. It counts what it was shown and
// replays queued key presses, which makes it useful in tests.
type Headless struct {
	shown map[string]int
	last  map[string]image.Point
	keys  []int
	mu    sync.Mutex
}

// NewHeadless creates a Headless display.
func NewHeadless() *Headless {
	return &Headless{
		shown: make(map[string]int),
		last:  make(map[string]image.Point),
	}
}

// Show records that a frame was shown in name, and its size.
func (h *Headless) Show(name string, m gocv.Mat) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shown[name]++
	h.last[name] = image.Pt(m.Cols(), m.Rows())
}

// Last returns the size of the last frame shown in name.
func (h *Headless) Last(name string) image.Point {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last[name]
}

// WaitKey returns the next queued key, or -1.
func (h *Headless) WaitKey(ms int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.keys) == 0 {
		return -1
	}
	k := h.keys[0]
	h.keys = h.keys[1:]
	return k
}

// PressKey queues a key for WaitKey.
func (h *Headless) PressKey(key int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys = append(h.keys, key)
}

// Shown returns how many frames were shown in name.
func (h *Headless) Shown(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shown[name]
}

// Close is a no-op.
func (h *Headless) Close() error {
	return nil
}
