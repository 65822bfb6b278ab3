package filter

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

func TestNewCLAHERejectsBadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cfg   CLAHEConfig
		field string
	}{
		{"zero clip", CLAHEConfig{ClipLimit: 0, TileRows: 8, TileCols: 8}, "clip_limit"},
		{"negative clip", CLAHEConfig{ClipLimit: -1, TileRows: 8, TileCols: 8}, "clip_limit"},
		{"zero rows", CLAHEConfig{ClipLimit: 2, TileRows: 0, TileCols: 8}, "tile_rows"},
		{"negative cols", CLAHEConfig{ClipLimit: 2, TileRows: 8, TileCols: -2}, "tile_cols"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCLAHE(tt.cfg)
			assert.Nil(t, c)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, "clahe", ce.Stage)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCLAHEPreservesShape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   *frame.Frame
	}{
		{"even grid", noiseF32(64, 48, 1, 1)},
		{"uneven grid", noiseF32(37, 23, 1, 2)},
		{"three channels", noiseF32(32, 24, 3, 3)},
		{"smaller than grid", noiseF32(3, 2, 1, 4)},
		{"single pixel", noiseF32(1, 1, 1, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCLAHE(DefaultCLAHEConfig())
			require.NoError(t, err)
			defer c.Close()

			tt.in.Seq = 3
			out, err := c.Process(tt.in)
			require.NoError(t, err)
			assert.Equal(t, frame.F32, out.DType)
			assert.True(t, out.SameShape(tt.in))
			assert.Equal(t, uint64(3), out.Seq)
			for _, v := range out.F32 {
				require.True(t, v >= 0 && v <= 1, "sample %v outside [0,1]", v)
			}
		})
	}
}

func TestCLAHERejectsUint16(t *testing.T) {
	t.Parallel()

	c, err := NewCLAHE(DefaultCLAHEConfig())
	require.NoError(t, err)
	_, err = c.Process(frame.NewU16(8, 8, 1))
	var fe *frame.FormatError
	assert.True(t, errors.As(err, &fe))
}

func TestCLAHESingleTileIsMonotonic(t *testing.T) {
	t.Parallel()

	c, err := NewCLAHE(CLAHEConfig{ClipLimit: 2, TileRows: 1, TileCols: 1})
	require.NoError(t, err)

	in := frame.NewF32(64, 64, 1)
	for i := range in.F32 {
		in.F32[i] = 0.4 + 0.2*float32(i)/float32(len(in.F32)-1)
	}
	out, err := c.Process(in)
	require.NoError(t, err)

	for i := 1; i < len(out.F32); i++ {
		require.GreaterOrEqual(t, out.F32[i], out.F32[i-1], "sample %d", i)
	}
	// a narrow band of distinct values is spread over nearly the full range
	assert.Greater(t, out.F32[len(out.F32)-1]-out.F32[0], float32(0.9))
}

func TestCLAHEIsStateless(t *testing.T) {
	t.Parallel()

	c, err := NewCLAHE(DefaultCLAHEConfig())
	require.NoError(t, err)

	a := noiseF32(40, 30, 1, 8)
	first, err := c.Process(a)
	require.NoError(t, err)
	_, err = c.Process(noiseF32(20, 10, 1, 9))
	require.NoError(t, err)
	again, err := c.Process(a)
	require.NoError(t, err)

	if diff := cmp.Diff(first, again); diff != "" {
		t.Errorf("output depends on history (-first +again):\n%s", diff)
	}
}

func TestCLAHEChannelsAreIndependent(t *testing.T) {
	t.Parallel()

	c, err := NewCLAHE(DefaultCLAHEConfig())
	require.NoError(t, err)

	rgb := noiseF32(32, 24, 3, 10)
	green := frame.NewF32(32, 24, 1)
	for i := range green.F32 {
		green.F32[i] = rgb.F32[i*3+1]
	}

	outRGB, err := c.Process(rgb)
	require.NoError(t, err)
	outGreen, err := c.Process(green)
	require.NoError(t, err)

	for i, v := range outGreen.F32 {
		require.Equal(t, v, outRGB.F32[i*3+1], "pixel %d", i)
	}
}

func TestCLAHEClose(t *testing.T) {
	t.Parallel()

	c, err := NewCLAHE(DefaultCLAHEConfig())
	require.NoError(t, err)
	_, err = c.Process(noiseF32(16, 16, 1, 11))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, err = c.Process(noiseF32(16, 16, 1, 11))
	assert.ErrorIs(t, err, ErrCLAHEClosed)
}
