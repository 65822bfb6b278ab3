//go:build linux

package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
	"github.com/bryanchriswhite/SauronThermal/internal/logger"
)

// pixelFmtY16 is the 16-bit little-endian greyscale fourcc ('Y16 ')
const pixelFmtY16 uint32 = 'Y' | '1'<<8 | '6'<<16 | ' '<<24

// V4L2 reads raw Y16 frames from a UVC device such as the FLIR Boson
type V4L2 struct {
	path   string
	bounds image.Rectangle
	dev    *device.Device
	out    <-chan []byte
	cancel context.CancelFunc
	seq    atomic.Uint64
}

// OpenV4L2 opens opts.Device in Y16 mode and starts streaming
func OpenV4L2(opts Options) (*V4L2, error) {
	w, h := opts.Width, opts.Height
	dev, err := device.Open(opts.Device,
		device.WithIOType(v4l2.IOTypeMMAP),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: pixelFmtY16,
			Width:       uint32(w),
			Height:      uint32(h),
			Field:       v4l2.FieldNone,
		}),
		device.WithBufferSize(2),
		device.WithFPS(uint32(opts.FPS)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", opts.Device, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(ctx); err != nil {
		cancel()
		dev.Close()
		return nil, fmt.Errorf("failed to start streaming from %s: %w", opts.Device, err)
	}

	logger.WithComponent("capture").Info().
		Str("device", opts.Device).
		Int("width", w).
		Int("height", h).
		Int("fps", opts.FPS).
		Msg("V4L2 device streaming")

	return &V4L2{
		path:   opts.Device,
		bounds: image.Rect(0, 0, w, h),
		dev:    dev,
		out:    dev.GetOutput(),
		cancel: cancel,
	}, nil
}

func (v *V4L2) Name() string            { return string(KindV4L2) + ":" + v.path }
func (v *V4L2) Bounds() image.Rectangle { return v.bounds }

// Acquire waits for the next buffer and decodes it. A closed stream means
// the device went away.
func (v *V4L2) Acquire(ctx context.Context) (*frame.Frame, error) {
	var buf []byte
	var ok bool
	select {
	case buf, ok = <-v.out:
		if !ok {
			return nil, ErrDeviceExhausted
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	w, h := v.bounds.Dx(), v.bounds.Dy()
	if len(buf) < w*h*2 {
		return nil, fmt.Errorf("short Y16 buffer from %s: got %d bytes, want %d", v.path, len(buf), w*h*2)
	}
	f := frame.NewU16(w, h, 1)
	for i := range f.U16 {
		f.U16[i] = binary.LittleEndian.Uint16(buf[2*i:])
	}
	f.Seq = v.seq.Add(1)
	f.Time = time.Now()
	return f, nil
}

func (v *V4L2) Close() error {
	v.cancel()
	return v.dev.Close()
}
