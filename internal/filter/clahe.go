package filter

import (
	"errors"
	"image"

	"gocv.io/x/gocv"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

// ErrCLAHEClosed is returned by Process after Close
var ErrCLAHEClosed = errors.New("clahe: closed")

// CLAHEConfig configures contrast limited adaptive histogram equalization
type CLAHEConfig struct {
	ClipLimit float64 `json:"clip_limit" yaml:"clip_limit" mapstructure:"clip_limit"`
	TileRows  int     `json:"tile_rows" yaml:"tile_rows" mapstructure:"tile_rows"`
	TileCols  int     `json:"tile_cols" yaml:"tile_cols" mapstructure:"tile_cols"`
}

// DefaultCLAHEConfig returns a clip limit of 2 over an 8x8 grid
func DefaultCLAHEConfig() CLAHEConfig {
	return CLAHEConfig{ClipLimit: 2.0, TileRows: 8, TileCols: 8}
}

// Validate checks the configuration without building a filter
func (c CLAHEConfig) Validate() error {
	switch {
	case !(c.ClipLimit > 0):
		return configErr(KindCLAHE, "clip_limit", "must be > 0, got %v", c.ClipLimit)
	case c.TileRows <= 0:
		return configErr(KindCLAHE, "tile_rows", "must be > 0, got %d", c.TileRows)
	case c.TileCols <= 0:
		return configErr(KindCLAHE, "tile_cols", "must be > 0, got %d", c.TileCols)
	}
	return nil
}

// CLAHE equalizes contrast locally using OpenCV. It keeps no state between
// frames; the native matrices it holds are scratch space reused to avoid
// per-frame allocation. Call Close to release them.
type CLAHE struct {
	cfg CLAHEConfig

	clahe  gocv.CLAHE
	grid   image.Point
	src    gocv.Mat
	dst    gocv.Mat
	plane  []uint16
	closed bool
}

// NewCLAHE validates cfg. Tile dimensions and clip limit must be positive.
func NewCLAHE(cfg CLAHEConfig) (*CLAHE, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	grid := image.Pt(cfg.TileCols, cfg.TileRows)
	return &CLAHE{
		cfg:   cfg,
		clahe: gocv.NewCLAHEWithParams(cfg.ClipLimit, grid),
		grid:  grid,
		src:   gocv.NewMat(),
		dst:   gocv.NewMat(),
	}, nil
}

func (c *CLAHE) Kind() Kind { return KindCLAHE }
func (c *CLAHE) sealed()    {}

// Config returns the immutable configuration
func (c *CLAHE) Config() CLAHEConfig { return c.cfg }

// Close releases the native CLAHE and its matrices. It is safe to call more
// than once.
func (c *CLAHE) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return errors.Join(c.clahe.Close(), c.src.Close(), c.dst.Close())
}

// Process converts a float32 frame to 16-bit precision, equalizes every
// channel independently and converts the result back to float32.
func (c *CLAHE) Process(in *frame.Frame) (*frame.Frame, error) {
	if c.closed {
		return nil, ErrCLAHEClosed
	}
	if err := in.Expect(KindCLAHE.String(), frame.F32); err != nil {
		return nil, err
	}
	n := in.Len()
	if cap(c.plane) < n {
		c.plane = make([]uint16, n)
	}
	pix := c.plane[:n]
	Float32ToU16(pix, in.F32)

	if n > 0 {
		c.fit(in.Width, in.Height)
		for ch := 0; ch < in.Channels; ch++ {
			if err := c.equalize(pix, in.Channels, ch); err != nil {
				return nil, err
			}
		}
	}

	out := in.LikeF32()
	U16ToFloat32(out.F32, pix)
	return out, nil
}

// fit sizes the source matrix to the frame and shrinks the tile grid for
// frames smaller than it.
func (c *CLAHE) fit(w, h int) {
	if c.src.Rows() != h || c.src.Cols() != w {
		c.src.Close()
		c.src = gocv.NewMatWithSize(h, w, gocv.MatTypeCV16UC1)
	}
	grid := image.Pt(min(c.cfg.TileCols, w), min(c.cfg.TileRows, h))
	if grid != c.grid {
		c.clahe.Close()
		c.clahe = gocv.NewCLAHEWithParams(c.cfg.ClipLimit, grid)
		c.grid = grid
	}
}

// equalize applies CLAHE in place to channel ch of an interleaved plane
func (c *CLAHE) equalize(pix []uint16, chans, ch int) error {
	src, err := c.src.DataPtrUint16()
	if err != nil {
		return err
	}
	for i := range src {
		src[i] = pix[i*chans+ch]
	}

	c.clahe.Apply(c.src, &c.dst)

	eq, err := c.dst.DataPtrUint16()
	if err != nil {
		return err
	}
	for i, v := range eq {
		pix[i*chans+ch] = v
	}
	return nil
}
