// Package tray provides a desktop tray menu for bench tuning: switch target
// processing and watch the current result without a dashboard.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/victis/victis-vision/internal/detector"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func(enabled bool)
	onStream func()
	onQuit   func()
	enabled  bool
	mu       sync.RWMutex

	menuToggle *systray.MenuItem
	menuTarget *systray.MenuItem
}

// New creates a new Tray showing the given processing state.
func New(enabled bool) *Tray {
	return &Tray{
		enabled: enabled,
	}
}

// OnToggle sets the callback for the processing switch.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnStream sets the callback for the "Open Stream" item.
func (t *Tray) OnStream(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStream = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit stops a running tray.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Victis")
	systray.SetTooltip("Victis gear target vision")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle target processing")
	systray.AddSeparator()
	t.menuTarget = systray.AddMenuItem(StatusLine(detector.NotFound()), "Current gear target")
	t.menuTarget.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuStream := systray.AddMenuItem("Open Stream...", "Open the annotated stream in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Victis Vision")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.Toggle()
			case <-menuStream.ClickedCh:
				t.handleStream()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// Toggle flips the processing switch as a menu click does.
func (t *Tray) Toggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleStream() {
	t.mu.RLock()
	callback := t.onStream
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetEnabled reflects a processing switch made elsewhere, e.g. over the API
// or from the robot table. It does not call the toggle callback.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// SetResult updates the target line in the menu.
func (t *Tray) SetResult(res detector.Result) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuTarget != nil {
		t.menuTarget.SetTitle(StatusLine(res))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Processing"
	}
	return "○ Paused"
}

// StatusLine renders a result as a one-line menu title.
func StatusLine(res detector.Result) string {
	switch {
	case !res.Present:
		return "Target: none"
	case res.Partial:
		return fmt.Sprintf("Target: partial %+.1f°", res.Angle)
	case res.Skew != nil:
		return fmt.Sprintf("Target: locked %+.1f° skew %+.2f", res.Angle, *res.Skew)
	default:
		return fmt.Sprintf("Target: locked %+.1f°", res.Angle)
	}
}
