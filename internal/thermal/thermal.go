// Package thermal assembles a running camera from configuration: the frame
// source, the filter pipeline and the diagnostic sinks behind it.
package thermal

import (
	"fmt"

	"github.com/bryanchriswhite/SauronThermal/internal/camera"
	"github.com/bryanchriswhite/SauronThermal/internal/capture"
	"github.com/bryanchriswhite/SauronThermal/internal/config"
	"github.com/bryanchriswhite/SauronThermal/internal/diag"
	"github.com/bryanchriswhite/SauronThermal/internal/filter"
	"github.com/bryanchriswhite/SauronThermal/internal/logger"
	"github.com/bryanchriswhite/SauronThermal/internal/metrics"
)

// BuildPipeline returns ToFloat32 followed by the configured gain control and,
// when contrast is enabled, CLAHE.
func BuildPipeline(cfg config.PipelineConfig, sink filter.DiagnosticSink) (*filter.Pipeline, error) {
	stages := []filter.Filter{filter.ToFloat32{}}

	switch cfg.AGC {
	case config.AGCSimple:
		agc, err := filter.NewSimpleAGC(cfg.SimpleAGC, sink)
		if err != nil {
			return nil, err
		}
		stages = append(stages, agc)
	case config.AGCEnvelope:
		agc, err := filter.NewEnvelopeAGC(cfg.EnvelopeAGC, sink)
		if err != nil {
			return nil, err
		}
		stages = append(stages, agc)
	case config.AGCNone:
	default:
		return nil, &filter.ConfigError{Stage: "pipeline", Field: "agc", Reason: fmt.Sprintf("unknown mode %q", cfg.AGC)}
	}

	if cfg.Contrast {
		clahe, err := filter.NewCLAHE(cfg.CLAHE)
		if err != nil {
			return nil, err
		}
		stages = append(stages, clahe)
	}
	return filter.NewPipeline(stages...), nil
}

// Rig is a camera together with the parts it was built from
type Rig struct {
	Camera   *camera.Camera
	Source   capture.Source
	Pipeline *filter.Pipeline
	Hub      *diag.Hub
}

// Open opens the configured source and wires it to a fresh pipeline whose
// diagnostics go to the log, prometheus and the returned hub. The camera is
// not started.
func Open(cfg *config.Config) (*Rig, error) {
	hub := diag.NewHub()
	sink := diag.Multi(
		diag.LogSink(logger.WithComponent("pipeline")),
		metrics.Sink(),
		hub.Sink(),
	)

	pipeline, err := BuildPipeline(cfg.Pipeline, sink)
	if err != nil {
		return nil, err
	}

	src, err := capture.Open(cfg.Camera)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s source: %w", cfg.Camera.Source, err)
	}

	var stages []string
	for _, k := range pipeline.Stages() {
		stages = append(stages, k.String())
	}
	logger.WithComponent("pipeline").Info().
		Str("source", src.Name()).
		Stringer("bounds", src.Bounds()).
		Strs("stages", stages).
		Msg("Pipeline ready")

	return &Rig{
		Camera:   camera.New(src, pipeline),
		Source:   src,
		Pipeline: pipeline,
		Hub:      hub,
	}, nil
}
