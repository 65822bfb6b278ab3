//go:build !linux

package capture

import (
	"context"
	"errors"
	"image"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

var errNoV4L2 = errors.New("v4l2 capture is only available on linux")

// V4L2 is unavailable off linux
type V4L2 struct{}

func OpenV4L2(Options) (*V4L2, error) { return nil, errNoV4L2 }

func (*V4L2) Name() string            { return string(KindV4L2) }
func (*V4L2) Bounds() image.Rectangle { return image.Rectangle{} }
func (*V4L2) Close() error            { return nil }

func (*V4L2) Acquire(context.Context) (*frame.Frame, error) { return nil, errNoV4L2 }
