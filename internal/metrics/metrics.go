// Package metrics exposes prometheus instruments for the capture, processing
// and streaming paths.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bryanchriswhite/SauronThermal/internal/filter"
)

var (
	framesAcquired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sauron_frames_acquired_total",
			Help: "Frames read from the capture source",
		},
		[]string{"source"},
	)

	frameErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sauron_frame_errors_total",
			Help: "Frames aborted by an error, by the step that failed",
		},
		[]string{"step"},
	)

	acquireTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "sauron_acquire_seconds",
			Help: "Time spent waiting for the capture source (seconds)",
			Buckets: []float64{
				0.005, 0.010, 0.030, 0.060, 0.120, 0.250, 0.500, 1.000,
			},
		},
		[]string{"source"},
	)

	processTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "sauron_process_seconds",
			Help: "Time spent running the filter pipeline (seconds)",
			Buckets: []float64{
				0.001, 0.005, 0.010, 0.030, 0.060, 0.120, 0.250, 0.500,
			},
		},
	)

	agcLevel = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sauron_agc_level",
			Help: "Most recent gain control state, by stage and field",
		},
		[]string{"stage", "field"},
	)

	compressionTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "sauron_jpeg_compression_seconds",
			Help: "JPEG compression time (seconds)",
			Buckets: []float64{
				0.002, 0.005, 0.010, 0.030, 0.060, 0.120, 0.250,
			},
		},
	)

	compressedSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "sauron_jpeg_size_bytes",
			Help: "Size of compressed frames (bytes)",
			Buckets: []float64{
				8192, 16384, 32768, 65536, 131072, 262144, 524288,
			},
		},
	)

	streamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sauron_stream_clients",
			Help: "Connected MJPEG clients",
		},
	)
)

// ObserveAcquire records one successful read from source
func ObserveAcquire(source string, d time.Duration) {
	framesAcquired.WithLabelValues(source).Inc()
	acquireTime.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveProcess records one pipeline run
func ObserveProcess(d time.Duration) {
	processTime.Observe(d.Seconds())
}

// FrameError counts a frame lost in step ("acquire" or "process")
func FrameError(step string) {
	frameErrors.WithLabelValues(step).Inc()
}

// ObserveJPEG records one encoded frame
func ObserveJPEG(d time.Duration, size int) {
	compressionTime.Observe(d.Seconds())
	compressedSize.Observe(float64(size))
}

// SetStreamClients sets the connected client gauge
func SetStreamClients(n int) {
	streamClients.Set(float64(n))
}

// Sink publishes gain control diagnostics as gauges
func Sink() filter.DiagnosticSink {
	return func(d filter.Diagnostic) {
		switch d.Stage {
		case filter.KindSimpleAGC.String():
			agcLevel.WithLabelValues(d.Stage, "running_min").Set(d.RunningMin)
			agcLevel.WithLabelValues(d.Stage, "running_max").Set(d.RunningMax)
		case filter.KindEnvelopeAGC.String():
			agcLevel.WithLabelValues(d.Stage, "gain").Set(d.Gain)
			agcLevel.WithLabelValues(d.Stage, "envelope").Set(d.Envelope)
		}
	}
}
