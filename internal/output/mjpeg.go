package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
	"github.com/bryanchriswhite/SauronThermal/internal/logger"
	"github.com/bryanchriswhite/SauronThermal/internal/metrics"
)

// Annotator draws on the presentation image of f before it is encoded
type Annotator func(img image.Image, f *frame.Frame) image.Image

// MJPEGOutput streams frames as Motion JPEG over HTTP
type MJPEGOutput struct {
	config   Config
	annotate Annotator
	running  bool
	mu       sync.RWMutex

	// Latest frame and its encoding
	frameMu    sync.RWMutex
	latest     *frame.Frame
	latestJPEG []byte
	lastUpdate time.Time
	frameCount uint64
	startTime  time.Time

	// Connected clients by id
	clientsMu sync.RWMutex
	clients   map[string]chan []byte
}

// NewMJPEGOutput creates a new MJPEG stream output. A zero quality selects
// the encoder default.
func NewMJPEGOutput(config Config) *MJPEGOutput {
	if config.Quality <= 0 {
		config.Quality = jpeg.DefaultQuality
	}
	return &MJPEGOutput{
		config:  config,
		clients: make(map[string]chan []byte),
	}
}

// SetAnnotator installs a hook applied to every frame before encoding
func (m *MJPEGOutput) SetAnnotator(a Annotator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.annotate = a
}

// Start marks the output ready. The HTTP handlers are mounted separately.
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}
	m.running = true

	m.frameMu.Lock()
	m.startTime = time.Now()
	m.frameCount = 0
	m.frameMu.Unlock()

	logger.WithComponent("mjpeg").Info().
		Int("width", m.config.Width).
		Int("height", m.config.Height).
		Int("fps", m.config.FPS).
		Int("quality", m.config.Quality).
		Msg("MJPEG output started")
	return nil
}

// Stop disconnects every client
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	m.clientsMu.Lock()
	for id, ch := range m.clients {
		close(ch)
		delete(m.clients, id)
	}
	m.clientsMu.Unlock()
	metrics.SetStreamClients(0)

	logger.WithComponent("mjpeg").Info().
		Uint64("frames", m.Frames()).
		Msg("MJPEG output stopped")
	return nil
}

// WriteFrame encodes f once and offers it to every client. Slow clients
// skip frames rather than holding up the pipeline.
func (m *MJPEGOutput) WriteFrame(f *frame.Frame) error {
	m.mu.RLock()
	running, annotate := m.running, m.annotate
	m.mu.RUnlock()
	if !running {
		return fmt.Errorf("MJPEG output not running")
	}

	img, err := frame.ToImage(f)
	if err != nil {
		return err
	}
	if annotate != nil {
		img = annotate(img, f)
	}

	start := time.Now()
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()
	metrics.ObserveJPEG(time.Since(start), len(jpegData))

	m.frameMu.Lock()
	m.latest = f
	m.latestJPEG = jpegData
	m.lastUpdate = time.Now()
	m.frameCount++
	m.frameMu.Unlock()

	m.clientsMu.RLock()
	for _, ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
		}
	}
	m.clientsMu.RUnlock()
	return nil
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Latest returns the most recently written frame, or nil
func (m *MJPEGOutput) Latest() *frame.Frame {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.latest
}

// Frames returns the number of frames written since Start
func (m *MJPEGOutput) Frames() uint64 {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.frameCount
}

// Clients returns the number of connected stream clients
func (m *MJPEGOutput) Clients() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

func (m *MJPEGOutput) addClient() (string, chan []byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.running {
		return "", nil, false
	}

	id := uuid.NewString()
	ch := make(chan []byte, 2)

	// new clients start from the latest frame instead of waiting for one
	m.frameMu.RLock()
	if m.latestJPEG != nil {
		ch <- m.latestJPEG
	}
	m.frameMu.RUnlock()

	m.clientsMu.Lock()
	m.clients[id] = ch
	n := len(m.clients)
	m.clientsMu.Unlock()
	metrics.SetStreamClients(n)

	logger.WithComponent("mjpeg").Info().
		Str("client", id).
		Int("clients", n).
		Msg("Client connected")
	return id, ch, true
}

func (m *MJPEGOutput) removeClient(id string) {
	m.clientsMu.Lock()
	delete(m.clients, id)
	n := len(m.clients)
	m.clientsMu.Unlock()
	metrics.SetStreamClients(n)

	logger.WithComponent("mjpeg").Info().
		Str("client", id).
		Int("clients", n).
		Msg("Client disconnected")
}

// GetHTTPHandler returns the multipart/x-mixed-replace stream handler
func (m *MJPEGOutput) GetHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, frameChan, ok := m.addClient()
		if !ok {
			http.Error(w, "stream not running", http.StatusServiceUnavailable)
			return
		}
		defer m.removeClient(id)

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		for {
			var jpegData []byte
			select {
			case <-r.Context().Done():
				return
			case data, open := <-frameChan:
				if !open {
					return
				}
				jpegData = data
			}

			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
				return
			}
			if _, err := w.Write(jpegData); err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

// GetViewerHandler returns a page showing the stream full-window
func (m *MJPEGOutput) GetViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(viewerHTML))
	}
}

const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Sauron Thermal</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #000;
            overflow: hidden;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
        }
        img {
            width: 100vw;
            height: 100vh;
            object-fit: contain;
            display: block;
            background: #000;
            image-rendering: pixelated;
        }
        .nav {
            position: fixed;
            bottom: 16px;
            left: 16px;
            display: flex;
            gap: 8px;
            opacity: 0.2;
            transition: opacity 0.2s ease;
        }
        .nav:hover { opacity: 1; }
        .nav a {
            padding: 8px 14px;
            background: rgba(40, 40, 40, 0.9);
            color: #ccc;
            text-decoration: none;
            border-radius: 20px;
            font-family: system-ui, -apple-system, sans-serif;
            font-size: 13px;
        }
    </style>
</head>
<body>
    <img src="/stream" alt="Sauron Thermal live stream">
    <div class="nav">
        <a href="/stats">Stats</a>
        <a href="/api/agc">AGC</a>
        <a href="/metrics">Metrics</a>
    </div>
</body>
</html>`

// GetStatsHandler returns an HTTP handler that shows stream statistics
func (m *MJPEGOutput) GetStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		running := m.IsRunning()

		m.frameMu.RLock()
		frameCount := m.frameCount
		startTime := m.startTime
		lastUpdate := m.lastUpdate
		m.frameMu.RUnlock()

		clientCount := m.Clients()

		var fps float64
		if running && !startTime.IsZero() {
			if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
				fps = float64(frameCount) / elapsed
			}
		}

		status, statusClass := "Stopped", "status-stopped"
		if running {
			status, statusClass = "Running", "status-running"
		}
		last := "Never"
		if !lastUpdate.IsZero() {
			last = time.Since(lastUpdate).Round(time.Millisecond).String() + " ago"
		}
		uptime := "N/A"
		if !startTime.IsZero() {
			uptime = time.Since(startTime).Round(time.Second).String()
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Sauron Thermal - Stream Stats</title>
    <style>
        body { font-family: monospace; padding: 20px; background: #1e1e1e; color: #d4d4d4; }
        .stat { margin: 10px 0; }
        .label { color: #569cd6; }
        .value { color: #4ec9b0; }
        .status-running { color: #4ec9b0; }
        .status-stopped { color: #ce9178; }
    </style>
</head>
<body>
    <h1>Sauron Thermal Stream Stats</h1>
    <div class="stat"><span class="label">Status:</span> <span class="value %s">%s</span></div>
    <div class="stat"><span class="label">Resolution:</span> <span class="value">%dx%d @ %d FPS (target)</span></div>
    <div class="stat"><span class="label">JPEG Quality:</span> <span class="value">%d</span></div>
    <div class="stat"><span class="label">Actual FPS:</span> <span class="value">%.2f</span></div>
    <div class="stat"><span class="label">Total Frames:</span> <span class="value">%d</span></div>
    <div class="stat"><span class="label">Connected Clients:</span> <span class="value">%d</span></div>
    <div class="stat"><span class="label">Last Update:</span> <span class="value">%s</span></div>
    <div class="stat"><span class="label">Uptime:</span> <span class="value">%s</span></div>
    <p><a href="/stream" style="color: #569cd6;">View Stream</a></p>
</body>
</html>`,
			statusClass, status,
			m.config.Width, m.config.Height, m.config.FPS,
			m.config.Quality,
			fps,
			frameCount,
			clientCount,
			last,
			uptime,
		)
	}
}
