package filter

import (
	"errors"
	"io"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

// Pipeline applies a fixed sequence of filters to every frame. It holds no
// state of its own beyond the sequence.
type Pipeline struct {
	filters []Filter
}

// NewPipeline composes filters in the given order. The slice is copied so
// the sequence cannot change after construction.
func NewPipeline(filters ...Filter) *Pipeline {
	return &Pipeline{filters: append([]Filter(nil), filters...)}
}

// Len returns the number of stages
func (p *Pipeline) Len() int {
	return len(p.filters)
}

// Stages returns the kind of every stage, in order
func (p *Pipeline) Stages() []Kind {
	kinds := make([]Kind, len(p.filters))
	for i, f := range p.filters {
		kinds[i] = f.Kind()
	}
	return kinds
}

// Process runs f through every stage. The first failing stage aborts the
// frame; later stages are not invoked and no partial output is returned.
func (p *Pipeline) Process(f *frame.Frame) (*frame.Frame, error) {
	for i, stage := range p.filters {
		out, err := stage.Process(f)
		if err != nil {
			return nil, &StageError{Index: i, Kind: stage.Kind(), Err: err}
		}
		f = out
	}
	return f, nil
}

// Close releases every stage that holds native resources. The pipeline must
// not be used afterwards.
func (p *Pipeline) Close() error {
	var errs []error
	for _, stage := range p.filters {
		if c, ok := stage.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
