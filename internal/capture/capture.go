// Package capture provides the frame sources a camera can read from: a
// synthetic scene, a UVC device delivering 16-bit grey (FLIR Boson) and a
// FLIR Lepton on SPI.
package capture

import (
	"context"
	"errors"
	"image"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

// ErrDeviceExhausted is returned by Acquire once a source has no more frames
var ErrDeviceExhausted = errors.New("capture: device exhausted")

// Source produces raw uint16 frames
type Source interface {
	// Name returns a human-readable name for this source
	Name() string

	// Bounds returns the frame geometry
	Bounds() image.Rectangle

	// Acquire blocks until the next frame is available. Frames carry a
	// monotonically increasing Seq starting at 1 and the acquisition time.
	Acquire(ctx context.Context) (*frame.Frame, error)

	// Close releases the device
	Close() error
}

// Kind selects a Source implementation
type Kind string

const (
	KindFake   Kind = "fake"
	KindV4L2   Kind = "v4l2"
	KindLepton Kind = "lepton"
	KindAuto   Kind = "auto"
)

// Options configures source selection and geometry
type Options struct {
	Source Kind   `json:"source" yaml:"source" mapstructure:"source"`
	Device string `json:"device" yaml:"device" mapstructure:"device"`
	Width  int    `json:"width" yaml:"width" mapstructure:"width"`
	Height int    `json:"height" yaml:"height" mapstructure:"height"`
	FPS    int    `json:"fps" yaml:"fps" mapstructure:"fps"`

	// Frames limits the synthetic source; 0 runs forever
	Frames int `json:"frames" yaml:"frames" mapstructure:"frames"`

	SPIBus string `json:"spi_bus" yaml:"spi_bus" mapstructure:"spi_bus"`
	I2CBus string `json:"i2c_bus" yaml:"i2c_bus" mapstructure:"i2c_bus"`
}

// DefaultOptions describes a Boson 640 at its native 9 Hz export rate
func DefaultOptions() Options {
	return Options{
		Source: KindFake,
		Device: "/dev/video0",
		Width:  640,
		Height: 512,
		FPS:    9,
	}
}
