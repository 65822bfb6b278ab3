// Package display shows processed frames in a desktop window. Every window
// system call happens on one goroutine pinned to its OS thread; callers hand
// frames over through Render.
package display

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
	"github.com/bryanchriswhite/SauronThermal/internal/logger"
)

var (
	// ErrQuit is returned by Render once the user asked to close the window
	ErrQuit = errors.New("display: quit requested")
	// ErrClosed is returned by Render after Close
	ErrClosed = errors.New("display: closed")
)

// Config describes the viewer window
type Config struct {
	Title       string `json:"title" yaml:"title" mapstructure:"title"`
	Width       int    `json:"width" yaml:"width" mapstructure:"width"`
	Height      int    `json:"height" yaml:"height" mapstructure:"height"`
	KeySampleMs int    `json:"key_sample_ms" yaml:"key_sample_ms" mapstructure:"key_sample_ms"`
}

// DefaultConfig matches a Boson 640 frame at 1:1
func DefaultConfig() Config {
	return Config{
		Title:       "Sauron Thermal",
		Width:       640,
		Height:      512,
		KeySampleMs: 5,
	}
}

// surface is the window system behind a Display
type surface interface {
	// Draw presents an image exactly the size of the window
	Draw(img *image.RGBA) error
	// Poll drains pending input and reports whether the user asked to quit
	Poll() (quit bool, err error)
	Close() error
}

type job struct {
	img  image.Image
	done chan error
}

// Display renders frames into a window from a single worker goroutine
type Display struct {
	cfg Config
	log *zerolog.Logger

	jobs    chan job
	closing chan struct{}
	stopped chan struct{}
	once    sync.Once
	quit    atomic.Bool
}

// Open creates the X11 window on the render worker and returns once it is
// mapped.
func Open(cfg Config) (*Display, error) {
	return open(cfg, func() (surface, error) { return newX11Surface(cfg) })
}

func open(cfg Config, newSurface func() (surface, error)) (*Display, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid window size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.KeySampleMs <= 0 {
		cfg.KeySampleMs = DefaultConfig().KeySampleMs
	}

	d := &Display{
		cfg:     cfg,
		log:     logger.WithComponent("display"),
		jobs:    make(chan job),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}

	ready := make(chan error, 1)
	go d.loop(newSurface, ready)
	if err := <-ready; err != nil {
		return nil, err
	}

	d.log.Info().
		Str("title", cfg.Title).
		Int("width", cfg.Width).
		Int("height", cfg.Height).
		Msg("Display window created")
	return d, nil
}

// Render converts f for presentation and draws it, blocking until the
// window has been updated. It returns ErrQuit once the user pressed q or
// Escape, or closed the window.
func (d *Display) Render(f *frame.Frame) error {
	if d.quit.Load() {
		return ErrQuit
	}
	img, err := frame.ToImage(f)
	if err != nil {
		return err
	}

	j := job{img: img, done: make(chan error, 1)}
	select {
	case d.jobs <- j:
	case <-d.stopped:
		return ErrClosed
	}
	if err := <-j.done; err != nil {
		return err
	}
	if d.quit.Load() {
		return ErrQuit
	}
	return nil
}

// Close destroys the window and stops the worker. It is safe to call more
// than once.
func (d *Display) Close() error {
	d.once.Do(func() { close(d.closing) })
	<-d.stopped
	return nil
}

func (d *Display) loop(newSurface func() (surface, error), ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(d.stopped)

	s, err := newSurface()
	if err != nil {
		ready <- err
		return
	}
	ready <- nil
	defer func() {
		if err := s.Close(); err != nil {
			d.log.Warn().Err(err).Msg("Failed to close display window")
		}
		d.log.Info().Msg("Display window closed")
	}()

	tick := time.NewTicker(time.Duration(d.cfg.KeySampleMs) * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-d.closing:
			return
		case j := <-d.jobs:
			err := s.Draw(letterbox(d.cfg.Width, d.cfg.Height, j.img))
			d.poll(s)
			j.done <- err
		case <-tick.C:
			d.poll(s)
		}
	}
}

func (d *Display) poll(s surface) {
	quit, err := s.Poll()
	if err != nil {
		d.log.Warn().Err(err).Msg("Failed to poll window events")
	}
	if quit && !d.quit.Swap(true) {
		d.log.Info().Msg("Quit requested from display")
	}
}

// letterbox scales src to fit a w x h canvas, preserving aspect ratio and
// centering it on black.
func letterbox(w, h int, src image.Image) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}

	b := src.Bounds()
	if b.Empty() {
		return out
	}
	scale := float64(w) / float64(b.Dx())
	if s := float64(h) / float64(b.Dy()); s < scale {
		scale = s
	}
	dw, dh := int(float64(b.Dx())*scale), int(float64(b.Dy())*scale)
	x0, y0 := (w-dw)/2, (h-dh)/2

	xdraw.ApproxBiLinear.Scale(out, image.Rect(x0, y0, x0+dw, y0+dh), src, b, xdraw.Src, nil)
	return out
}
