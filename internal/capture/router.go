package capture

import (
	"errors"
	"fmt"

	"github.com/bryanchriswhite/SauronThermal/internal/logger"
)

// Open builds the source named by opts.Source. KindAuto probes the V4L2
// device first, then the Lepton, and fails if neither can be opened.
func Open(opts Options) (Source, error) {
	switch opts.Source {
	case KindFake, "":
		if opts.Width <= 0 || opts.Height <= 0 {
			return nil, fmt.Errorf("fake source needs a positive size, got %dx%d", opts.Width, opts.Height)
		}
		return NewFake(opts), nil
	case KindV4L2:
		return OpenV4L2(opts)
	case KindLepton:
		return OpenLepton(opts)
	case KindAuto:
		return probe(opts)
	default:
		return nil, fmt.Errorf("unknown capture source %q (want fake, v4l2, lepton or auto)", opts.Source)
	}
}

func probe(opts Options) (Source, error) {
	log := logger.WithComponent("capture-router")

	v, verr := OpenV4L2(opts)
	if verr == nil {
		log.Info().Str("source", v.Name()).Msg("Using V4L2 source")
		return v, nil
	}
	log.Warn().Err(verr).Msg("V4L2 source not available")

	l, lerr := OpenLepton(opts)
	if lerr == nil {
		log.Info().Str("source", l.Name()).Msg("Using Lepton source")
		return l, nil
	}
	log.Warn().Err(lerr).Msg("Lepton source not available")

	return nil, fmt.Errorf("no capture backends available: %w", errors.Join(verr, lerr))
}
