package filter

import (
	"math"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

// SimpleAGCConfig configures the running min/max auto exposure
type SimpleAGCConfig struct {
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate" mapstructure:"sample_rate"`
	EWMACoeff  float64 `json:"ewma_coeff" yaml:"ewma_coeff" mapstructure:"ewma_coeff"`
	Eps        float64 `json:"eps" yaml:"eps" mapstructure:"eps"`

	// SubtractMin rescales with (x - running_min) instead of the historical
	// (x + running_min).
	SubtractMin bool `json:"subtract_min" yaml:"subtract_min" mapstructure:"subtract_min"`
}

// DefaultSimpleAGCConfig returns the configuration used by the default pipeline
func DefaultSimpleAGCConfig() SimpleAGCConfig {
	return SimpleAGCConfig{
		SampleRate: 9.0,
		EWMACoeff:  0.9,
		Eps:        1e-5,
	}
}

// Validate checks the configuration without building a filter
func (c SimpleAGCConfig) Validate() error {
	switch {
	case !(c.SampleRate > 0):
		return configErr(KindSimpleAGC, "sample_rate", "must be > 0, got %v", c.SampleRate)
	case !(c.Eps > 0):
		return configErr(KindSimpleAGC, "eps", "must be > 0, got %v", c.Eps)
	case c.EWMACoeff < 0 || c.EWMACoeff/c.SampleRate > 1:
		return configErr(KindSimpleAGC, "ewma_coeff", "ewma_coeff/sample_rate must be in [0,1], got %v", c.EWMACoeff/c.SampleRate)
	}
	return nil
}

// Alpha is the per-frame EWMA weight given to a new observation
func (c SimpleAGCConfig) Alpha() float64 {
	return c.EWMACoeff / c.SampleRate
}

func (c SimpleAGCConfig) ewma(old, observed float64) float64 {
	a := c.Alpha()
	return old*(1.0-a) + observed*a
}

// SimpleAGCState is the running brightness range
type SimpleAGCState struct {
	RunningMin float64 `json:"running_min"`
	RunningMax float64 `json:"running_max"`
}

// InitialSimpleAGCState is the state every SimpleAGC starts from
func InitialSimpleAGCState() SimpleAGCState {
	return SimpleAGCState{RunningMin: 0.0, RunningMax: 1.0}
}

// Interval is the divisor used for rescaling, floored at eps
func (s SimpleAGCState) Interval(eps float64) float64 {
	return math.Max(s.RunningMax-s.RunningMin, eps)
}

// SimpleAGC tracks the scene's minimum and maximum with an exponential
// moving average and rescales each frame by the tracked range.
type SimpleAGC struct {
	cfg   SimpleAGCConfig
	state SimpleAGCState
	sink  DiagnosticSink
}

// NewSimpleAGC validates cfg and returns a SimpleAGC in its initial state.
// sink may be nil.
func NewSimpleAGC(cfg SimpleAGCConfig, sink DiagnosticSink) (*SimpleAGC, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SimpleAGC{cfg: cfg, state: InitialSimpleAGCState(), sink: sink}, nil
}

func (a *SimpleAGC) Kind() Kind { return KindSimpleAGC }
func (a *SimpleAGC) sealed()    {}

// Config returns the immutable configuration
func (a *SimpleAGC) Config() SimpleAGCConfig { return a.cfg }

// State returns the state after the most recent frame
func (a *SimpleAGC) State() SimpleAGCState { return a.state }

// Step computes the next state and output for in without touching a's
// stored state. in must be a float32 frame.
func (a *SimpleAGC) Step(s SimpleAGCState, in *frame.Frame) (SimpleAGCState, *frame.Frame) {
	out := in.LikeF32()
	if len(in.F32) == 0 {
		return s, out
	}

	// NaN samples do not contribute to the range; a frame with no usable
	// samples leaves it unchanged.
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range in.F32 {
		f := float64(v)
		if math.IsNaN(f) {
			continue
		}
		lo = min(lo, f)
		hi = max(hi, f)
	}

	next := s
	if lo <= hi {
		next = SimpleAGCState{
			RunningMin: a.cfg.ewma(s.RunningMin, lo),
			RunningMax: a.cfg.ewma(s.RunningMax, hi),
		}
	}
	interval := next.Interval(a.cfg.Eps)

	offset := next.RunningMin
	if a.cfg.SubtractMin {
		offset = -offset
	}
	for i, v := range in.F32 {
		out.F32[i] = float32((float64(v) + offset) / interval)
	}
	return next, out
}

// Process rescales a float32 frame and advances the running range
func (a *SimpleAGC) Process(in *frame.Frame) (*frame.Frame, error) {
	if err := in.Expect(KindSimpleAGC.String(), frame.F32); err != nil {
		return nil, err
	}
	next, out := a.Step(a.state, in)
	a.state = next
	a.sink.emit(Diagnostic{
		Seq:        in.Seq,
		Stage:      KindSimpleAGC.String(),
		RunningMin: next.RunningMin,
		RunningMax: next.RunningMax,
	})
	return out, nil
}
