package camera

import (
	"context"
	"errors"
	"image"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/SauronThermal/internal/capture"
	"github.com/bryanchriswhite/SauronThermal/internal/filter"
	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

// stubSource serves frames of a fixed value until limit. When gate is set
// each Acquire announces itself on entered and then waits on gate.
type stubSource struct {
	limit    int
	entered  chan struct{}
	gate     chan struct{}
	acquired atomic.Int32
	closed   atomic.Bool
}

func (s *stubSource) Name() string            { return "stub" }
func (s *stubSource) Bounds() image.Rectangle { return image.Rect(0, 0, 4, 4) }
func (s *stubSource) Close() error            { s.closed.Store(true); return nil }

func (s *stubSource) Acquire(ctx context.Context) (*frame.Frame, error) {
	if s.gate != nil {
		s.entered <- struct{}{}
		<-s.gate
	}
	n := s.acquired.Add(1)
	if int(n) > s.limit {
		return nil, capture.ErrDeviceExhausted
	}
	f := frame.NewU16(4, 4, 1)
	for i := range f.U16 {
		f.U16[i] = uint16(n)
	}
	f.Seq = uint64(n)
	f.Time = time.Now()
	return f, nil
}

// serialProcessor records the highest number of concurrent Process calls
type serialProcessor struct {
	inflight atomic.Int32
	peak     atomic.Int32
	err      error
}

func (p *serialProcessor) Process(f *frame.Frame) (*frame.Frame, error) {
	n := p.inflight.Add(1)
	defer p.inflight.Add(-1)
	if n > p.peak.Load() {
		p.peak.Store(n)
	}
	time.Sleep(time.Millisecond)
	if p.err != nil {
		return nil, p.err
	}
	return f, nil
}

// gatedProcessor announces each Process call on entered and waits on gate
// before passing the frame through.
type gatedProcessor struct {
	entered chan struct{}
	gate    chan struct{}
}

func (p *gatedProcessor) Process(f *frame.Frame) (*frame.Frame, error) {
	p.entered <- struct{}{}
	<-p.gate
	out := f.LikeF32()
	return out, nil
}

// goroutineID reads the current goroutine number from the stack header
func goroutineID() string {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	return strings.Fields(string(buf))[1]
}

// tracingSource and tracingProcessor record the goroutine of every call
type tracingSource struct {
	stubSource
	mu  sync.Mutex
	ids []string
}

func (s *tracingSource) Acquire(ctx context.Context) (*frame.Frame, error) {
	s.mu.Lock()
	s.ids = append(s.ids, goroutineID())
	s.mu.Unlock()
	return s.stubSource.Acquire(ctx)
}

type tracingProcessor struct {
	mu  sync.Mutex
	ids []string
}

func (p *tracingProcessor) Process(f *frame.Frame) (*frame.Frame, error) {
	p.mu.Lock()
	p.ids = append(p.ids, goroutineID())
	p.mu.Unlock()
	return f, nil
}

func distinct(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// closingProcessor reports whether Close was called
type closingProcessor struct {
	serialProcessor
	closed atomic.Bool
}

func (p *closingProcessor) Close() error { p.closed.Store(true); return nil }

func startCamera(t *testing.T, src capture.Source, proc Processor) *Camera {
	t.Helper()
	c := New(src, proc)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Stop() })
	return c
}

func TestRunDeliversInOrderUntilExhausted(t *testing.T) {
	t.Parallel()

	agc, err := filter.NewSimpleAGC(filter.DefaultSimpleAGCConfig(), nil)
	require.NoError(t, err)
	src := &stubSource{limit: 5}
	c := startCamera(t, src, filter.NewPipeline(filter.ToFloat32{}, agc))

	var seqs []uint64
	err = c.Run(context.Background(), func(f *frame.Frame) error {
		assert.Equal(t, frame.F32, f.DType)
		seqs = append(seqs, f.Seq)
		return nil
	})
	assert.ErrorIs(t, err, ErrDeviceExhausted)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seqs)
	assert.NotEqual(t, filter.InitialSimpleAGCState(), agc.State())
}

func TestProcessingIsSerial(t *testing.T) {
	t.Parallel()

	proc := &serialProcessor{}
	c := startCamera(t, &stubSource{limit: 20}, proc)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, err := c.Next(context.Background()); err != nil {
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), proc.peak.Load())
}

func TestNextChecksContextBeforeAcquiring(t *testing.T) {
	t.Parallel()

	src := &stubSource{limit: 5}
	c := startCamera(t, src, &serialProcessor{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.acquired.Load())
}

func TestInFlightFrameCompletesDuringAcquire(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		src := &stubSource{limit: 5, entered: make(chan struct{}, 1), gate: make(chan struct{})}
		c := New(src, &serialProcessor{})

		// The same context drives the workers and the caller, as in the CLI.
		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, c.Start(ctx))

		type res struct {
			f   *frame.Frame
			err error
		}
		got := make(chan res, 1)
		go func() {
			f, err := c.Next(ctx)
			got <- res{f, err}
		}()

		<-src.entered
		cancel()
		src.gate <- struct{}{}

		select {
		case r := <-got:
			require.NoError(t, r.err, "iteration %d", i)
			assert.Equal(t, uint64(1), r.f.Seq)
		case <-time.After(2 * time.Second):
			t.Fatal("Timeout waiting for in-flight frame")
		}

		_, err := c.Next(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(1), src.acquired.Load(), "no acquisition after cancel")
		require.NoError(t, c.Stop())
	}
}

func TestInFlightFrameCompletesDuringProcess(t *testing.T) {
	t.Parallel()

	proc := &gatedProcessor{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	c := New(&stubSource{limit: 5}, proc)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))

	got := make(chan error, 1)
	var out *frame.Frame
	go func() {
		var err error
		out, err = c.Next(ctx)
		got <- err
	}()

	<-proc.entered
	cancel()

	// Stop waits for the frame rather than abandoning it.
	stopped := make(chan error, 1)
	go func() { stopped <- c.Stop() }()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a frame was being processed")
	case <-time.After(20 * time.Millisecond):
	}

	proc.gate <- struct{}{}
	select {
	case err := <-got:
		require.NoError(t, err)
		assert.Equal(t, frame.F32, out.DType)
		assert.Equal(t, uint64(1), out.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for in-flight frame")
	}
	require.NoError(t, <-stopped)
}

func TestStagesRunOnDedicatedWorkers(t *testing.T) {
	t.Parallel()

	src := &tracingSource{stubSource: stubSource{limit: 12}}
	proc := &tracingProcessor{}
	c := startCamera(t, src, proc)

	callers := make([]string, 3)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			callers[i] = goroutineID()
			for {
				if _, err := c.Next(context.Background()); err != nil {
					return
				}
			}
		}(i)
	}
	wg.Wait()

	acq, prc := distinct(src.ids), distinct(proc.ids)
	require.Len(t, acq, 1, "every acquisition runs on one goroutine")
	require.Len(t, prc, 1, "every Process call runs on one goroutine")
	assert.NotEqual(t, acq[0], prc[0])
	assert.NotContains(t, callers, acq[0])
	assert.NotContains(t, callers, prc[0])
	assert.Len(t, proc.ids, 12)
}

func TestNoAcquisitionWhileProcessing(t *testing.T) {
	t.Parallel()

	src := &stubSource{limit: 5}
	proc := &gatedProcessor{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	c := startCamera(t, src, proc)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2; i++ {
			c.Next(context.Background())
		}
	}()

	<-proc.entered
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), src.acquired.Load(), "source called again while frame 1 is processed")

	proc.gate <- struct{}{}
	<-proc.entered
	assert.Equal(t, int32(2), src.acquired.Load())
	proc.gate <- struct{}{}
	<-done
}

func TestProcessErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	c := startCamera(t, &stubSource{limit: 5}, &serialProcessor{err: boom})

	_, err := c.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "frame 1")

	calls := 0
	err = c.Run(context.Background(), func(*frame.Frame) error { calls++; return nil })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, calls)
}

func TestRunStopsOnCallbackError(t *testing.T) {
	t.Parallel()

	c := startCamera(t, &stubSource{limit: 10}, &serialProcessor{})
	stop := errors.New("stop")
	calls := 0
	err := c.Run(context.Background(), func(*frame.Frame) error {
		calls++
		if calls == 3 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 3, calls)
}

func TestLifecycle(t *testing.T) {
	t.Parallel()

	src := &stubSource{limit: 1}
	proc := &closingProcessor{}
	c := New(src, proc)

	_, err := c.Next(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, c.Stop(), ErrNotStarted)

	require.NoError(t, c.Start(context.Background()))
	assert.NotEmpty(t, c.Session())
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, c.Stop())
	assert.True(t, src.closed.Load())
	assert.True(t, proc.closed.Load(), "Stop releases the processor")
	assert.ErrorIs(t, c.Stop(), ErrStopped)
	assert.ErrorIs(t, c.Start(context.Background()), ErrStopped)

	_, err = c.Next(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}
