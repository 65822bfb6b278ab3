package filter

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

func TestSimpleAGCConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		mod   func(*SimpleAGCConfig)
		field string
	}{
		{"zero sample rate", func(c *SimpleAGCConfig) { c.SampleRate = 0 }, "sample_rate"},
		{"zero eps", func(c *SimpleAGCConfig) { c.Eps = 0 }, "eps"},
		{"nan eps", func(c *SimpleAGCConfig) { c.Eps = math.NaN() }, "eps"},
		{"negative coeff", func(c *SimpleAGCConfig) { c.EWMACoeff = -0.1 }, "ewma_coeff"},
		{"alpha above one", func(c *SimpleAGCConfig) { c.EWMACoeff = 10 }, "ewma_coeff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSimpleAGCConfig()
			tt.mod(&cfg)
			_, err := NewSimpleAGC(cfg, nil)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, "simple_agc", ce.Stage)
			assert.Equal(t, tt.field, ce.Field)
		})
	}

	_, err := NewSimpleAGC(DefaultSimpleAGCConfig(), nil)
	assert.NoError(t, err)
}

func TestSimpleAGCScenario(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		subtractMin bool
		want        []float64
	}{
		{"adds running min", false, []float64{0, 1.1 / 0.81, 0.09 / 0.729}},
		{"subtracts running min", true, []float64{0, 0.9 / 0.81, -0.09 / 0.729}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSimpleAGCConfig()
			cfg.SubtractMin = tt.subtractMin
			agc, err := NewSimpleAGC(cfg, nil)
			require.NoError(t, err)
			p := NewPipeline(ToFloat32{}, agc)

			wantStates := []SimpleAGCState{
				{RunningMin: 0, RunningMax: 0.9},
				{RunningMin: 0.1, RunningMax: 0.91},
				{RunningMin: 0.09, RunningMax: 0.819},
			}
			inputs := []uint16{0, frame.U16Max, 0}

			for i, v := range inputs {
				out, err := p.Process(constU16(4, 3, v))
				require.NoError(t, err)
				require.Equal(t, frame.F32, out.DType)

				s := agc.State()
				assert.InDelta(t, wantStates[i].RunningMin, s.RunningMin, 1e-9, "frame %d min", i)
				assert.InDelta(t, wantStates[i].RunningMax, s.RunningMax, 1e-9, "frame %d max", i)
				for _, got := range out.F32 {
					assert.InDelta(t, tt.want[i], float64(got), 1e-5, "frame %d output", i)
				}
			}
		})
	}
}

func TestSimpleAGCEpsFloor(t *testing.T) {
	t.Parallel()

	cfg := DefaultSimpleAGCConfig()
	agc, err := NewSimpleAGC(cfg, nil)
	require.NoError(t, err)

	for _, v := range []float32{0, 0.5} {
		for i := 0; i < 600; i++ {
			out, err := agc.Process(constF32(3, 3, v))
			require.NoError(t, err)
			for _, o := range out.F32 {
				require.False(t, math.IsNaN(float64(o)) || math.IsInf(float64(o), 0), "non-finite output %v", o)
			}
		}
		s := agc.State()
		assert.Equal(t, cfg.Eps, s.Interval(cfg.Eps), "flat scene at %v", v)
	}
}

func TestSimpleAGCConverges(t *testing.T) {
	t.Parallel()

	cfg := DefaultSimpleAGCConfig()
	agc, err := NewSimpleAGC(cfg, nil)
	require.NoError(t, err)

	f := frame.NewF32(4, 4, 1)
	for i := range f.F32 {
		f.F32[i] = 0.2
		if i%2 == 1 {
			f.F32[i] = 0.7
		}
	}
	wantMin, wantMax := float64(float32(0.2)), float64(float32(0.7))

	start := agc.State()
	decay := 1 - cfg.Alpha()
	prevMin := math.Abs(start.RunningMin - wantMin)
	prevMax := math.Abs(start.RunningMax - wantMax)
	bound := 1.0
	for n := 1; n <= 150; n++ {
		_, err := agc.Process(f)
		require.NoError(t, err)
		s := agc.State()
		bound *= decay

		dMin := math.Abs(s.RunningMin - wantMin)
		dMax := math.Abs(s.RunningMax - wantMax)
		require.Less(t, dMin, prevMin, "running_min moved away at frame %d", n)
		require.Less(t, dMax, prevMax, "running_max moved away at frame %d", n)
		require.LessOrEqual(t, dMin, math.Abs(start.RunningMin-wantMin)*bound+1e-12, "running_min too slow at frame %d", n)
		require.LessOrEqual(t, dMax, math.Abs(start.RunningMax-wantMax)*bound+1e-12, "running_max too slow at frame %d", n)
		prevMin, prevMax = dMin, dMax
	}
	assert.InDelta(t, wantMin, agc.State().RunningMin, 1e-6)
	assert.InDelta(t, wantMax, agc.State().RunningMax, 1e-6)
}

func TestSimpleAGCIgnoresNaN(t *testing.T) {
	t.Parallel()

	agc, err := NewSimpleAGC(DefaultSimpleAGCConfig(), nil)
	require.NoError(t, err)

	f := frame.NewF32(3, 1, 1)
	copy(f.F32, []float32{float32(math.NaN()), 0.25, 0.75})
	_, err = agc.Process(f)
	require.NoError(t, err)

	s := agc.State()
	require.False(t, math.IsNaN(s.RunningMin) || math.IsNaN(s.RunningMax), "state %+v", s)
	assert.InDelta(t, 0.9*0.0+0.1*0.25, s.RunningMin, 1e-9)
	assert.InDelta(t, 0.9*1.0+0.1*0.75, s.RunningMax, 1e-9)

	allNaN := frame.NewF32(2, 1, 1)
	allNaN.F32[0] = float32(math.NaN())
	allNaN.F32[1] = float32(math.NaN())
	_, err = agc.Process(allNaN)
	require.NoError(t, err)
	assert.Equal(t, s, agc.State(), "a frame without samples leaves the range alone")

	_, err = agc.Process(constF32(2, 2, 0.5))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(agc.State().RunningMin))
}

func TestSimpleAGCStepIsPure(t *testing.T) {
	t.Parallel()

	agc, err := NewSimpleAGC(DefaultSimpleAGCConfig(), nil)
	require.NoError(t, err)
	in := noiseF32(8, 6, 1, 1)

	s1, out1 := agc.Step(agc.State(), in)
	s2, out2 := agc.Step(agc.State(), in)
	assert.Equal(t, s1, s2)
	assert.Equal(t, out1.F32, out2.F32)
	assert.Equal(t, InitialSimpleAGCState(), agc.State())

	empty := frame.NewF32(0, 0, 1)
	s3, out3 := agc.Step(s1, empty)
	assert.Equal(t, s1, s3)
	assert.Zero(t, out3.Len())
}

func TestSimpleAGCDiagnostics(t *testing.T) {
	t.Parallel()

	var got []Diagnostic
	agc, err := NewSimpleAGC(DefaultSimpleAGCConfig(), func(d Diagnostic) { got = append(got, d) })
	require.NoError(t, err)

	for seq := uint64(1); seq <= 3; seq++ {
		f := noiseF32(4, 4, 1, int64(seq))
		f.Seq = seq
		_, err := agc.Process(f)
		require.NoError(t, err)
	}

	require.Len(t, got, 3)
	for i, d := range got {
		assert.Equal(t, uint64(i+1), d.Seq)
		assert.Equal(t, "simple_agc", d.Stage)
	}
	last := got[len(got)-1]
	assert.Equal(t, agc.State().RunningMin, last.RunningMin)
	assert.Equal(t, agc.State().RunningMax, last.RunningMax)
}

func TestSimpleAGCRejectsUint16(t *testing.T) {
	t.Parallel()

	agc, err := NewSimpleAGC(DefaultSimpleAGCConfig(), nil)
	require.NoError(t, err)

	_, err = agc.Process(frame.NewU16(2, 2, 1))
	var fe *frame.FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, InitialSimpleAGCState(), agc.State())
}
