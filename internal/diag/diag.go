// Package diag routes per-frame filter diagnostics to their consumers: the
// log, prometheus and live websocket subscribers.
package diag

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SauronThermal/internal/filter"
)

// Multi fans a diagnostic out to every non-nil sink, in order
func Multi(sinks ...filter.DiagnosticSink) filter.DiagnosticSink {
	var live []filter.DiagnosticSink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return func(d filter.Diagnostic) {
		for _, s := range live {
			s(d)
		}
	}
}

// LogSink writes every diagnostic at debug level
func LogSink(log *zerolog.Logger) filter.DiagnosticSink {
	return func(d filter.Diagnostic) {
		e := log.Debug().Uint64("seq", d.Seq).Str("stage", d.Stage)
		switch d.Stage {
		case filter.KindSimpleAGC.String():
			e = e.Float64("running_min", d.RunningMin).Float64("running_max", d.RunningMax)
		case filter.KindEnvelopeAGC.String():
			e = e.Float64("gain", d.Gain).Float64("envelope", d.Envelope)
		}
		e.Msg("agc")
	}
}

// Hub keeps the latest diagnostic of every stage and pushes each new one to
// subscribers. Publishing never blocks; a subscriber that falls behind
// loses diagnostics.
type Hub struct {
	mu      sync.RWMutex
	latest  map[string]filter.Diagnostic
	subs    map[string]chan filter.Diagnostic
	dropped atomic.Uint64
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		latest: make(map[string]filter.Diagnostic),
		subs:   make(map[string]chan filter.Diagnostic),
	}
}

// Sink returns the hub's publishing side
func (h *Hub) Sink() filter.DiagnosticSink {
	return h.Publish
}

// Publish records d and offers it to every subscriber
func (h *Hub) Publish(d filter.Diagnostic) {
	h.mu.Lock()
	h.latest[d.Stage] = d
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- d:
		default:
			h.dropped.Add(1)
		}
	}
}

// Latest returns the most recent diagnostic of every stage, sorted by stage
func (h *Hub) Latest() []filter.Diagnostic {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]filter.Diagnostic, 0, len(h.latest))
	for _, d := range h.latest {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// Subscribe registers a buffered receiver. The returned id is passed to
// Unsubscribe, which closes the channel.
func (h *Hub) Subscribe(buffer int) (string, <-chan filter.Diagnostic) {
	id := uuid.NewString()
	ch := make(chan filter.Diagnostic, buffer)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

// Unsubscribe removes and closes a subscriber. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}

// Subscribers returns the number of live subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
