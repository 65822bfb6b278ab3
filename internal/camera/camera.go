// Package camera drives a capture source and a filter pipeline on two
// dedicated goroutines, one per stage, handing out processed frames in
// acquisition order.
package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SauronThermal/internal/capture"
	"github.com/bryanchriswhite/SauronThermal/internal/frame"
	"github.com/bryanchriswhite/SauronThermal/internal/logger"
	"github.com/bryanchriswhite/SauronThermal/internal/metrics"
)

// ErrDeviceExhausted marks the clean end of a stream
var ErrDeviceExhausted = capture.ErrDeviceExhausted

var (
	ErrNotStarted     = errors.New("camera: not started")
	ErrAlreadyStarted = errors.New("camera: already started")
	ErrStopped        = errors.New("camera: stopped")
)

// Processor turns a raw frame into a display-ready one. *filter.Pipeline
// implements it.
type Processor interface {
	Process(f *frame.Frame) (*frame.Frame, error)
}

type result struct {
	f   *frame.Frame
	err error
}

type state int

const (
	idle state = iota
	running
	stopped
)

// Camera owns an acquisition worker and a processing worker. Each worker
// holds at most one frame, and only the processing worker ever touches the
// Processor, so filter state needs no locking.
type Camera struct {
	src  capture.Source
	proc Processor
	log  *zerolog.Logger

	acquireReq chan struct{}
	acquireRes chan result
	processReq chan *frame.Frame
	processRes chan result

	// next serializes callers of Next and Stop. Holding it guarantees the
	// workers are alive for a running camera.
	next sync.Mutex

	mu      sync.Mutex
	state   state
	session string
	ctx     context.Context
	wg      sync.WaitGroup
}

// New wires src to proc. Nothing runs until Start.
func New(src capture.Source, proc Processor) *Camera {
	return &Camera{
		src:        src,
		proc:       proc,
		log:        logger.WithComponent("camera"),
		acquireReq: make(chan struct{}),
		acquireRes: make(chan result, 1),
		processReq: make(chan *frame.Frame),
		processRes: make(chan result, 1),
	}
}

// Start launches both workers under a fresh session id. Once ctx is done no
// new acquisition starts, but a frame already in flight still completes.
// The workers themselves run until Stop.
func (c *Camera) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case running:
		return ErrAlreadyStarted
	case stopped:
		return ErrStopped
	}

	c.state = running
	c.ctx = ctx
	c.session = uuid.NewString()
	l := logger.WithComponent("camera").With().Str("session", c.session).Logger()
	c.log = &l

	// Acquisition must not be cut short by ctx once it has begun.
	acquireCtx := context.WithoutCancel(ctx)
	c.wg.Add(2)
	go c.acquireLoop(acquireCtx)
	go c.processLoop()

	c.log.Info().
		Str("source", c.src.Name()).
		Str("bounds", c.src.Bounds().String()).
		Msg("Camera started")
	return nil
}

// Session returns the id assigned by the last Start
func (c *Camera) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Stop waits for any in-flight frame, terminates the workers and closes the
// source. A Processor that implements io.Closer is closed too.
func (c *Camera) Stop() error {
	c.next.Lock()
	defer c.next.Unlock()

	c.mu.Lock()
	switch c.state {
	case idle:
		c.mu.Unlock()
		return ErrNotStarted
	case stopped:
		c.mu.Unlock()
		return ErrStopped
	}
	c.state = stopped
	c.mu.Unlock()

	close(c.acquireReq)
	close(c.processReq)
	c.wg.Wait()

	if p, ok := c.proc.(io.Closer); ok {
		if err := p.Close(); err != nil {
			c.log.Warn().Err(err).Msg("Failed to release pipeline")
		}
	}
	if err := c.src.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", c.src.Name(), err)
	}
	c.log.Info().Msg("Camera stopped")
	return nil
}

// Next acquires and processes one frame. ctx and the context given to
// Start are consulted only before the acquisition is requested; once a frame
// is in flight Next waits for it to finish both stages.
func (c *Camera) Next(ctx context.Context) (*frame.Frame, error) {
	c.next.Lock()
	defer c.next.Unlock()

	c.mu.Lock()
	st, base := c.state, c.ctx
	c.mu.Unlock()
	switch st {
	case idle:
		return nil, ErrNotStarted
	case stopped:
		return nil, ErrStopped
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := base.Err(); err != nil {
		return nil, err
	}

	c.acquireReq <- struct{}{}
	raw := <-c.acquireRes
	if raw.err != nil {
		if !errors.Is(raw.err, ErrDeviceExhausted) {
			metrics.FrameError("acquire")
		}
		return nil, raw.err
	}

	c.processReq <- raw.f
	out := <-c.processRes
	if out.err != nil {
		metrics.FrameError("process")
		return nil, fmt.Errorf("frame %d: %w", raw.f.Seq, out.err)
	}
	return out.f, nil
}

// Run hands every processed frame to fn until the source is exhausted, ctx
// is cancelled, or fn or the pipeline fails. The terminating error is
// returned unchanged, ErrDeviceExhausted included.
func (c *Camera) Run(ctx context.Context, fn func(*frame.Frame) error) error {
	for {
		f, err := c.Next(ctx)
		if err != nil {
			return err
		}
		c.log.Debug().
			Uint64("seq", f.Seq).
			Time("captured", f.Time).
			Msg("Frame")
		if err := fn(f); err != nil {
			return err
		}
	}
}

func (c *Camera) acquireLoop(ctx context.Context) {
	defer c.wg.Done()
	name := c.src.Name()
	for range c.acquireReq {
		start := time.Now()
		f, err := c.src.Acquire(ctx)
		if err == nil {
			metrics.ObserveAcquire(name, time.Since(start))
		}
		c.acquireRes <- result{f: f, err: err}
	}
}

func (c *Camera) processLoop() {
	defer c.wg.Done()
	for f := range c.processReq {
		start := time.Now()
		out, err := c.proc.Process(f)
		metrics.ObserveProcess(time.Since(start))
		c.processRes <- result{f: out, err: err}
	}
}
