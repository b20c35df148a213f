// Package tray provides a system tray menu for poseview.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/poseview/internal/pose"
)

// Tray is the system tray menu: an enabled toggle, the last confirmed pose
// and Quit.
type Tray struct {
	onToggle func(enabled bool)
	onQuit   func()
	enabled  bool
	last     pose.Pose
	mu       sync.RWMutex

	menuToggle   *systray.MenuItem
	menuLastPose *systray.MenuItem
}

// New creates a Tray that starts enabled.
func New() *Tray {
	return &Tray{
		enabled: true,
		last:    pose.None,
	}
}

// OnToggle sets the function called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnQuit sets the function called when Quit is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the tray. It blocks until Quit is clicked or Stop is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Stop removes the tray and makes Run return.
func (t *Tray) Stop() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("poseview")
	systray.SetTooltip("poseview pose recognition")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Pause or resume pose classification")
	systray.AddSeparator()
	t.menuLastPose = systray.AddMenuItem(lastTitle(t.last), "Last confirmed pose")
	t.menuLastPose.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit poseview")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.Toggle()
			case <-menuQuit.ClickedCh:
				t.quit()
				return
			}
		}
	}()
}

// Toggle flips the enabled state and calls the toggle function.
func (t *Tray) Toggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) quit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
	systray.Quit()
}

// SetLastPose updates the "Last" menu entry.
func (t *Tray) SetLastPose(p pose.Pose) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = p
	if t.menuLastPose != nil {
		t.menuLastPose.SetTitle(lastTitle(p))
	}
}

// LastPose returns the pose shown in the menu.
func (t *Tray) LastPose() pose.Pose {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}

func lastTitle(p pose.Pose) string {
	if p == "" || p == pose.None {
		return "Last: none"
	}
	return "Last: " + string(p)
}
