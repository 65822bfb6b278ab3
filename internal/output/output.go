package output

import (
	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

// Output is a consumer of processed frames other than the local display
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame publishes a processed frame. Float frames are expected in
	// [0,1]; uint16 frames span the full integer range.
	WriteFrame(f *frame.Frame) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	Width   int
	Height  int
	FPS     int
	Quality int
}
