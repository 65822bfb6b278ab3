// Package overlay stamps text onto presented frames before they are
// streamed.
package overlay

import (
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
	"github.com/bryanchriswhite/SauronThermal/internal/logger"
)

// Manager holds overlay widgets and draws them in the order they were added
type Manager struct {
	widgets []Widget
	mu      sync.RWMutex
	enabled bool
}

// NewManager creates a new, empty overlay manager
func NewManager() *Manager {
	return &Manager{enabled: true}
}

// NewDefault creates a manager with a frame info widget in the top-left
// corner.
func NewDefault() *Manager {
	m := NewManager()
	_ = m.AddWidget(NewFrameInfoWidget("frame-info", 4, 4))
	return m
}

// AddWidget appends a widget above the existing ones
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.widgets {
		if w.ID() == widget.ID() {
			return fmt.Errorf("widget with ID %s already exists", widget.ID())
		}
	}
	m.widgets = append(m.widgets, widget)

	logger.WithComponent("overlay").Debug().
		Str("widget", widget.ID()).
		Str("type", widget.Type()).
		Msg("Added widget")
	return nil
}

// RemoveWidget removes a widget from the overlay
func (m *Manager) RemoveWidget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, w := range m.widgets {
		if w.ID() == id {
			m.widgets = append(m.widgets[:i], m.widgets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("widget with ID %s not found", id)
}

// Widgets returns the widgets in drawing order
func (m *Manager) Widgets() []Widget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Widget(nil), m.widgets...)
}

// SetEnabled enables or disables the entire overlay
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// IsEnabled returns whether the overlay is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Render draws every enabled widget onto img. A failing widget is logged and
// skipped.
func (m *Manager) Render(img *image.RGBA, f *frame.Frame) {
	if !m.IsEnabled() {
		return
	}
	for _, w := range m.Widgets() {
		if !w.IsEnabled() {
			continue
		}
		if err := w.Render(img, f); err != nil {
			logger.WithComponent("overlay").Warn().
				Err(err).
				Str("widget", w.ID()).
				Msg("Failed to render widget")
		}
	}
}

// Annotate returns an RGBA copy of img with the overlay drawn on it. img is
// returned unchanged when the overlay is disabled. Its signature matches
// output.Annotator.
func (m *Manager) Annotate(img image.Image, f *frame.Frame) image.Image {
	if !m.IsEnabled() {
		return img
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	m.Render(rgba, f)
	return rgba
}
