// Package filter implements the per-frame signal-processing stages that turn
// raw thermal frames into display-ready ones.
//
// The set of stages is closed: normalization in both directions, two gain
// controllers and a contrast enhancer. Stages are composed by a Pipeline and
// each stage owns its own state; nothing here is safe for concurrent use.
package filter

import (
	"fmt"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

// Kind tags the concrete variant behind a Filter
type Kind int

const (
	KindToFloat32 Kind = iota + 1
	KindToU16
	KindEnvelopeAGC
	KindSimpleAGC
	KindCLAHE
)

func (k Kind) String() string {
	switch k {
	case KindToFloat32:
		return "to_float32"
	case KindToU16:
		return "to_u16"
	case KindEnvelopeAGC:
		return "envelope_agc"
	case KindSimpleAGC:
		return "simple_agc"
	case KindCLAHE:
		return "clahe"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Filter is a single pipeline stage. Process may replace the filter's
// internal state; it is called at most once per frame.
type Filter interface {
	Kind() Kind
	Process(in *frame.Frame) (*frame.Frame, error)

	sealed()
}

// Diagnostic is the structured state report a stateful stage emits after
// each frame.
type Diagnostic struct {
	Seq        uint64  `json:"seq"`
	Stage      string  `json:"stage"`
	RunningMin float64 `json:"running_min,omitempty"`
	RunningMax float64 `json:"running_max,omitempty"`
	Gain       float64 `json:"gain,omitempty"`
	Envelope   float64 `json:"envelope,omitempty"`
}

// DiagnosticSink receives Diagnostics. It is called synchronously from
// Process and must not block.
type DiagnosticSink func(Diagnostic)

func (s DiagnosticSink) emit(d Diagnostic) {
	if s != nil {
		s(d)
	}
}
