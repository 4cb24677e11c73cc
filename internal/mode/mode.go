package mode

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Mode selects which frame source feeds the console
type Mode string

const (
	// Upload - operator uploads a still image and triggers a scan manually
	Upload Mode = "UPLOAD"
	// Live - every new camera capture triggers a scan
	Live Mode = "LIVE"
)

// Dashboard labels of the mode selector
const (
	UploadLabel = "Upload Image"
	LiveLabel   = "Go Live (Camera)"
)

var ErrUnknownMode = errors.New("unknown input mode")

// Parse accepts the canonical values, their lower-case forms and the dashboard labels
func Parse(s string) (Mode, error) {
	switch strings.TrimSpace(s) {
	case string(Upload), "upload", UploadLabel:
		return Upload, nil
	case string(Live), "live", LiveLabel:
		return Live, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func (m Mode) Valid() bool {
	return m == Upload || m == Live
}

// Label returns the dashboard label for the mode
func (m Mode) Label() string {
	if m == Live {
		return LiveLabel
	}
	return UploadLabel
}

// Visibility tells the presentation layer which frame-source widget is active.
// Exactly one field is true.
type Visibility struct {
	UploadVisible bool `json:"upload_visible"`
	LiveVisible   bool `json:"live_visible"`
}

// VisibilityOf derives widget visibility from a single mode value
func VisibilityOf(m Mode) Visibility {
	live := m == Live
	return Visibility{UploadVisible: !live, LiveVisible: live}
}

// ChangeListener is called after every transition with the previous and new mode.
// Listeners run one transition at a time and must not call Select.
type ChangeListener func(from, to Mode)

// Controller is the two-state input mode switch. It starts in Upload and only
// moves on an explicit Select call.
type Controller struct {
	// notifyMu orders transitions with their listener calls, so the last
	// notification always names the current mode
	notifyMu sync.Mutex

	mu        sync.RWMutex
	current   Mode
	listeners []ChangeListener
}

// NewController creates a controller in the Upload state
func NewController() *Controller {
	return &Controller{current: Upload}
}

// Mode returns the active mode
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Visibility returns the widget visibility for the active mode
func (c *Controller) Visibility() Visibility {
	return VisibilityOf(c.Mode())
}

// OnChange registers a listener for mode transitions
func (c *Controller) OnChange(l ChangeListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Select handles a user mode-selection event. Unknown modes leave the state untouched.
func (c *Controller) Select(m Mode) (Visibility, error) {
	if !m.Valid() {
		return c.Visibility(), fmt.Errorf("%w: %q", ErrUnknownMode, string(m))
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	prev := c.current
	c.current = m
	listeners := append([]ChangeListener(nil), c.listeners...)
	c.mu.Unlock()

	if prev != m {
		for _, l := range listeners {
			l(prev, m)
		}
	}
	return VisibilityOf(m), nil
}
