package filter

import (
	"math"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

// EnvelopeAGCConfig configures the attack/release envelope follower
type EnvelopeAGCConfig struct {
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate" mapstructure:"sample_rate"`
	AttackTime  float64 `json:"attack_time" yaml:"attack_time" mapstructure:"attack_time"`
	ReleaseTime float64 `json:"release_time" yaml:"release_time" mapstructure:"release_time"`
	Reference   float64 `json:"reference" yaml:"reference" mapstructure:"reference"`
	GainFloor   float64 `json:"gain_floor" yaml:"gain_floor" mapstructure:"gain_floor"`
	GainCeiling float64 `json:"gain_ceiling" yaml:"gain_ceiling" mapstructure:"gain_ceiling"`

	// SeedFromPrevious starts each frame's recursion from the previous
	// frame's last filter output instead of zero.
	SeedFromPrevious bool `json:"seed_from_previous" yaml:"seed_from_previous" mapstructure:"seed_from_previous"`
}

// DefaultEnvelopeAGCConfig mirrors the parameters the camera ships with
func DefaultEnvelopeAGCConfig() EnvelopeAGCConfig {
	return EnvelopeAGCConfig{
		SampleRate:  9.0,
		AttackTime:  0.1,
		ReleaseTime: 0.1,
		Reference:   0.1,
		GainFloor:   0.1,
		GainCeiling: 10.0,
	}
}

// Validate checks the configuration without building a filter
func (c EnvelopeAGCConfig) Validate() error {
	switch {
	case !(c.SampleRate > 0):
		return configErr(KindEnvelopeAGC, "sample_rate", "must be > 0, got %v", c.SampleRate)
	case !(c.AttackTime > 0):
		return configErr(KindEnvelopeAGC, "attack_time", "must be > 0, got %v", c.AttackTime)
	case !(c.ReleaseTime > 0):
		return configErr(KindEnvelopeAGC, "release_time", "must be > 0, got %v", c.ReleaseTime)
	case !(c.GainFloor <= c.GainCeiling):
		return configErr(KindEnvelopeAGC, "gain_floor", "%v exceeds gain_ceiling %v", c.GainFloor, c.GainCeiling)
	}
	return nil
}

// EnvelopeState is replaced as a whole after every frame.
type EnvelopeState struct {
	Gain     float64 `json:"gain"`
	Envelope float64 `json:"envelope"`
	// Feedback is the last unclamped filter output. It is only read back
	// when SeedFromPrevious is set.
	Feedback float64 `json:"feedback"`
}

// InitialEnvelopeState is unity gain over a silent envelope
func InitialEnvelopeState() EnvelopeState {
	return EnvelopeState{Gain: 1.0}
}

// EnvelopeAGC smooths a per-sample gain trace with a first order recursive
// filter whose feedback switches between the attack and release
// coefficients, then applies the clamped trace to the signal.
type EnvelopeAGC struct {
	cfg     EnvelopeAGCConfig
	attack  float64
	release float64
	state   EnvelopeState
	sink    DiagnosticSink
}

// NewEnvelopeAGC validates cfg and converts the time constants into per
// sample decay coefficients. sink may be nil.
func NewEnvelopeAGC(cfg EnvelopeAGCConfig, sink DiagnosticSink) (*EnvelopeAGC, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EnvelopeAGC{
		cfg:     cfg,
		attack:  math.Exp(-1.0 / (cfg.AttackTime * cfg.SampleRate)),
		release: math.Exp(-1.0 / (cfg.ReleaseTime * cfg.SampleRate)),
		state:   InitialEnvelopeState(),
		sink:    sink,
	}, nil
}

func (a *EnvelopeAGC) Kind() Kind { return KindEnvelopeAGC }
func (a *EnvelopeAGC) sealed()    {}

// Coefficients returns the attack and release feedback coefficients
func (a *EnvelopeAGC) Coefficients() (attack, release float64) {
	return a.attack, a.release
}

// State returns the state after the most recent frame
func (a *EnvelopeAGC) State() EnvelopeState { return a.state }

// Step runs one frame through the follower. Samples are visited as a
// single row-major sequence. in must be a float32 frame.
func (a *EnvelopeAGC) Step(s EnvelopeState, in *frame.Frame) (EnvelopeState, *frame.Frame) {
	out := in.LikeF32()
	if len(in.F32) == 0 {
		return s, out
	}

	var y float64
	if a.cfg.SeedFromPrevious {
		y = s.Feedback
	}
	var env, gain float64
	for i, v := range in.F32 {
		x := float64(v)
		env = math.Abs(x)
		c := a.release
		if env > a.cfg.Reference {
			c = a.attack
		}
		y = c*env + c*y
		gain = math.Min(math.Max(y, a.cfg.GainFloor), a.cfg.GainCeiling)
		out.F32[i] = float32(x * gain)
	}
	return EnvelopeState{Gain: gain, Envelope: env, Feedback: y}, out
}

// Process applies the smoothed gain to a float32 frame
func (a *EnvelopeAGC) Process(in *frame.Frame) (*frame.Frame, error) {
	if err := in.Expect(KindEnvelopeAGC.String(), frame.F32); err != nil {
		return nil, err
	}
	next, out := a.Step(a.state, in)
	a.state = next
	a.sink.emit(Diagnostic{
		Seq:      in.Seq,
		Stage:    KindEnvelopeAGC.String(),
		Gain:     next.Gain,
		Envelope: next.Envelope,
	})
	return out, nil
}
