package filter

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

func TestEnvelopeAGCConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		mod   func(*EnvelopeAGCConfig)
		field string
	}{
		{"zero sample rate", func(c *EnvelopeAGCConfig) { c.SampleRate = 0 }, "sample_rate"},
		{"zero attack", func(c *EnvelopeAGCConfig) { c.AttackTime = 0 }, "attack_time"},
		{"negative release", func(c *EnvelopeAGCConfig) { c.ReleaseTime = -1 }, "release_time"},
		{"floor above ceiling", func(c *EnvelopeAGCConfig) { c.GainFloor, c.GainCeiling = 5, 1 }, "gain_floor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultEnvelopeAGCConfig()
			tt.mod(&cfg)
			_, err := NewEnvelopeAGC(cfg, nil)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, "envelope_agc", ce.Stage)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestEnvelopeAGCCoefficients(t *testing.T) {
	t.Parallel()

	cfg := DefaultEnvelopeAGCConfig()
	cfg.ReleaseTime = 0.5
	agc, err := NewEnvelopeAGC(cfg, nil)
	require.NoError(t, err)

	attack, release := agc.Coefficients()
	assert.InDelta(t, math.Exp(-1/0.9), attack, 1e-12)
	assert.InDelta(t, math.Exp(-1/4.5), release, 1e-12)
}

func TestEnvelopeAGCGainBounds(t *testing.T) {
	t.Parallel()

	cfg := DefaultEnvelopeAGCConfig()
	mixed := noiseF32(16, 16, 1, 7)
	for i := range mixed.F32 {
		mixed.F32[i] = (mixed.F32[i] - 0.5) * 2e30
	}

	tests := []struct {
		name string
		in   *frame.Frame
	}{
		{"zeros", constF32(8, 8, 0)},
		{"tiny", constF32(8, 8, 1e-12)},
		{"unit", constF32(8, 8, 1)},
		{"huge", constF32(8, 8, 1e30)},
		{"huge negative", constF32(8, 8, -1e30)},
		{"mixed sign extremes", mixed},
		{"noise", noiseF32(16, 16, 1, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agc, err := NewEnvelopeAGC(cfg, nil)
			require.NoError(t, err)

			out, err := agc.Process(tt.in)
			require.NoError(t, err)
			require.True(t, out.SameShape(tt.in))

			g := agc.State().Gain
			assert.GreaterOrEqual(t, g, cfg.GainFloor)
			assert.LessOrEqual(t, g, cfg.GainCeiling)

			for i, x := range tt.in.F32 {
				if x == 0 {
					assert.Zero(t, out.F32[i])
					continue
				}
				ratio := float64(out.F32[i]) / float64(x)
				require.True(t, ratio >= cfg.GainFloor*(1-1e-6) && ratio <= cfg.GainCeiling*(1+1e-6),
					"sample %d: applied gain %v outside [%v,%v]", i, ratio, cfg.GainFloor, cfg.GainCeiling)
			}
		})
	}
}

func TestEnvelopeAGCZerosHoldFloor(t *testing.T) {
	t.Parallel()

	agc, err := NewEnvelopeAGC(DefaultEnvelopeAGCConfig(), nil)
	require.NoError(t, err)

	_, err = agc.Process(constF32(4, 4, 0))
	require.NoError(t, err)
	assert.Equal(t, EnvelopeState{Gain: 0.1}, agc.State())
}

func TestEnvelopeAGCReseedsEveryFrame(t *testing.T) {
	t.Parallel()

	agc, err := NewEnvelopeAGC(DefaultEnvelopeAGCConfig(), nil)
	require.NoError(t, err)

	in := constF32(4, 4, 0.5)
	first, err := agc.Process(in)
	require.NoError(t, err)
	second, err := agc.Process(in)
	require.NoError(t, err)

	// identical frames produce identical output; nothing carries over
	if diff := cmp.Diff(first.F32, second.F32); diff != "" {
		t.Errorf("second frame differs (-first +second):\n%s", diff)
	}
	// and the gain trace restarts at the frame boundary
	assert.NotEqual(t, first.F32[len(first.F32)-1], second.F32[0])
}

func TestEnvelopeAGCSeedFromPrevious(t *testing.T) {
	t.Parallel()

	a := noiseF32(4, 2, 1, 11)
	b := noiseF32(4, 2, 1, 12)
	joined := frame.NewF32(4, 4, 1)
	copy(joined.F32, a.F32)
	copy(joined.F32[len(a.F32):], b.F32)

	run := func(seed bool) (split, whole []float32) {
		cfg := DefaultEnvelopeAGCConfig()
		cfg.SeedFromPrevious = seed

		agc, err := NewEnvelopeAGC(cfg, nil)
		require.NoError(t, err)
		outA, err := agc.Process(a)
		require.NoError(t, err)
		outB, err := agc.Process(b)
		require.NoError(t, err)

		ref, err := NewEnvelopeAGC(cfg, nil)
		require.NoError(t, err)
		outJoined, err := ref.Process(joined)
		require.NoError(t, err)

		return append(append([]float32(nil), outA.F32...), outB.F32...), outJoined.F32
	}

	split, whole := run(true)
	if diff := cmp.Diff(whole, split); diff != "" {
		t.Errorf("seeded split run differs from a single pass (-whole +split):\n%s", diff)
	}

	split, whole = run(false)
	assert.NotEqual(t, whole, split)
}

func TestEnvelopeAGCDiagnostics(t *testing.T) {
	t.Parallel()

	var got []Diagnostic
	agc, err := NewEnvelopeAGC(DefaultEnvelopeAGCConfig(), func(d Diagnostic) { got = append(got, d) })
	require.NoError(t, err)

	in := constF32(2, 2, -0.25)
	in.Seq = 9
	_, err = agc.Process(in)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, uint64(9), got[0].Seq)
	assert.Equal(t, "envelope_agc", got[0].Stage)
	assert.Equal(t, 0.25, got[0].Envelope)
	assert.Equal(t, agc.State().Gain, got[0].Gain)
}
