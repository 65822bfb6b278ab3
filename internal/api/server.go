// Package api serves the live stream, stream statistics, AGC diagnostics and
// prometheus metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/bryanchriswhite/SauronThermal/internal/config"
	"github.com/bryanchriswhite/SauronThermal/internal/diag"
	"github.com/bryanchriswhite/SauronThermal/internal/filter"
	"github.com/bryanchriswhite/SauronThermal/internal/frame"
	"github.com/bryanchriswhite/SauronThermal/internal/logger"
	"github.com/bryanchriswhite/SauronThermal/internal/output"
)

// Version is reported by /api/health
var Version = "dev"

const writeWait = 5 * time.Second

// Server represents the HTTP server
type Server struct {
	router   *mux.Router
	cfg      *config.Config
	stream   *output.MJPEGOutput
	hub      *diag.Hub
	upgrader websocket.Upgrader
	http     *http.Server
	log      *zerolog.Logger
}

// NewServer creates a new server around an already started stream. hub may
// be nil, in which case the AGC endpoints report no diagnostics.
func NewServer(cfg *config.Config, stream *output.MJPEGOutput, hub *diag.Hub) *Server {
	s := &Server{
		router: mux.NewRouter(),
		cfg:    cfg,
		stream: stream,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logger.WithComponent("api"),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.stream.GetViewerHandler()).Methods("GET")
	s.router.HandleFunc("/stream", s.stream.GetHTTPHandler()).Methods("GET")
	s.router.HandleFunc("/feed/{device}/", s.handleFeed).Methods("GET")
	s.router.HandleFunc("/stats", s.stream.GetStatsHandler()).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/agc", s.handleGetAGC).Methods("GET")
	api.HandleFunc("/agc/stream", s.handleAGCStream)
	api.HandleFunc("/frame/stats", s.handleFrameStats).Methods("GET")
}

// Handler returns the routed handler with CORS headers applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start listens on port and serves until Shutdown. It returns nil after a
// clean shutdown.
func (s *Server) Start(port int) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", port).Msgf("Serving on http://localhost:%d", port)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for handlers up to ctx.
// Stop the stream first so MJPEG clients are released.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleFeed serves the stream under the device's name, e.g. /feed/video0/
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	device := mux.Vars(r)["device"]
	if device != filepath.Base(s.cfg.Camera.Device) {
		http.NotFound(w, r)
		return
	}
	s.stream.GetHTTPHandler()(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"running": s.stream.IsRunning(),
		"frames":  s.stream.Frames(),
		"clients": s.stream.Clients(),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg)
}

func (s *Server) handleGetAGC(w http.ResponseWriter, r *http.Request) {
	latest := []interface{}{}
	if s.hub != nil {
		for _, d := range s.hub.Latest() {
			latest = append(latest, d)
		}
	}
	writeJSON(w, http.StatusOK, latest)
}

// sentSeqs remembers the newest frame sent per stage so a diagnostic that
// arrives both through the replay and the subscription goes out once.
type sentSeqs map[string]uint64

func (s sentSeqs) admit(d filter.Diagnostic) bool {
	if last, ok := s[d.Stage]; ok && d.Seq <= last {
		return false
	}
	s[d.Stage] = d.Seq
	return true
}

// handleAGCStream pushes every diagnostic as a JSON message until the client
// goes away. It subscribes before replaying the latest state so nothing
// published in between is lost.
func (s *Server) handleAGCStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "diagnostics disabled", http.StatusNotFound)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	id, updates := s.hub.Subscribe(16)
	defer s.hub.Unsubscribe(id)

	// Incoming messages are ignored; reading detects the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sent := sentSeqs{}
	for _, d := range s.hub.Latest() {
		sent.admit(d)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(d); err != nil {
			return
		}
	}

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case d, ok := <-updates:
			if !ok {
				return
			}
			if !sent.admit(d) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(d); err != nil {
				s.log.Debug().Err(err).Str("subscriber", id).Msg("WebSocket write failed")
				return
			}
		}
	}
}

// FrameStats summarises the samples of one frame
type FrameStats struct {
	Seq      uint64  `json:"seq"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Channels int     `json:"channels"`
	DType    string  `json:"dtype"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"stddev"`
}

// ComputeFrameStats returns summary statistics over every sample of f
func ComputeFrameStats(f *frame.Frame) (FrameStats, error) {
	x := make([]float64, 0, f.Len())
	switch f.DType {
	case frame.F32:
		for _, v := range f.F32 {
			x = append(x, float64(v))
		}
	case frame.U16:
		for _, v := range f.U16 {
			x = append(x, float64(v))
		}
	default:
		return FrameStats{}, &frame.FormatError{Stage: "frame stats", Got: f.DType, Want: []frame.DType{frame.F32, frame.U16}}
	}

	st := FrameStats{
		Seq:      f.Seq,
		Width:    f.Width,
		Height:   f.Height,
		Channels: f.Channels,
		DType:    f.DType.String(),
	}
	if len(x) == 0 {
		return st, nil
	}
	st.Min = floats.Min(x)
	st.Max = floats.Max(x)
	if len(x) == 1 {
		st.Mean = x[0]
		return st, nil
	}
	st.Mean, st.StdDev = stat.MeanStdDev(x, nil)
	return st, nil
}

func (s *Server) handleFrameStats(w http.ResponseWriter, r *http.Request) {
	f := s.stream.Latest()
	if f == nil {
		http.Error(w, "no frame streamed yet", http.StatusNotFound)
		return
	}
	st, err := ComputeFrameStats(f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
