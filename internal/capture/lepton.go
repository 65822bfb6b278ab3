package capture

import (
	"context"
	"fmt"
	"image"
	"time"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/devices/lepton"
	"periph.io/x/periph/devices/lepton/image14bit"
	"periph.io/x/periph/host"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
	"github.com/bryanchriswhite/SauronThermal/internal/logger"
)

// Lepton reads a FLIR Lepton over SPI, controlled over I²C. The 14-bit
// samples are widened to the full 16-bit range.
type Lepton struct {
	spiBus spi.PortCloser
	i2cBus i2c.BusCloser
	dev    *lepton.Dev
	buf    *lepton.Frame
	seq    uint64
}

// OpenLepton initializes the host drivers and opens the camera. Empty bus
// names select the first bus registered.
func OpenLepton(opts Options) (*Lepton, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	spiBus, err := spireg.Open(opts.SPIBus)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI bus %q: %w", opts.SPIBus, err)
	}
	i2cBus, err := i2creg.Open(opts.I2CBus)
	if err != nil {
		spiBus.Close()
		return nil, fmt.Errorf("failed to open I2C bus %q: %w", opts.I2CBus, err)
	}
	dev, err := lepton.New(spiBus, i2cBus)
	if err != nil {
		i2cBus.Close()
		spiBus.Close()
		return nil, fmt.Errorf("failed to initialize lepton: %w", err)
	}

	l := &Lepton{
		spiBus: spiBus,
		i2cBus: i2cBus,
		dev:    dev,
		buf:    &lepton.Frame{Gray14: image14bit.NewGray14(dev.Bounds())},
	}
	logger.WithComponent("capture").Info().
		Str("device", dev.String()).
		Str("bounds", dev.Bounds().String()).
		Msg("Lepton ready")
	return l, nil
}

func (l *Lepton) Name() string            { return string(KindLepton) }
func (l *Lepton) Bounds() image.Rectangle { return l.dev.Bounds() }

// Acquire blocks on the SPI stream until a complete frame arrives. The
// transfer cannot be interrupted once started, so ctx is only checked
// beforehand.
func (l *Lepton) Acquire(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.dev.NextFrame(l.buf); err != nil {
		return nil, fmt.Errorf("failed to read lepton frame: %w", err)
	}

	b := l.buf.Bounds()
	f := frame.NewU16(b.Dx(), b.Dy(), 1)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			f.U16[y*b.Dx()+x] = uint16(l.buf.Intensity14At(b.Min.X+x, b.Min.Y+y)) << 2
		}
	}
	l.seq++
	f.Seq = l.seq
	f.Time = time.Now()
	return f, nil
}

func (l *Lepton) Close() error {
	err := l.dev.Halt()
	if cerr := l.i2cBus.Close(); err == nil {
		err = cerr
	}
	if cerr := l.spiBus.Close(); err == nil {
		err = cerr
	}
	return err
}
