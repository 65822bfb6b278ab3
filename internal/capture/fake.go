package capture

import (
	"context"
	"image"
	"math/rand"
	"sync"
	"time"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

const (
	fakeBase  = 30000
	fakeRange = 2000
	fakeSpots = 10
)

type hotSpot struct {
	intensity float64
	x         float64
	y         float64
}

// Fake renders a deterministic scene of slowly drifting hot and cold spots
// over a flat background. It is the default source when no camera is
// attached.
type Fake struct {
	bounds image.Rectangle
	limit  int
	period time.Duration

	mu     sync.Mutex
	rand   *rand.Rand
	spots  []hotSpot
	seq    uint64
	ticker *time.Ticker
}

// NewFake returns a synthetic source of opts.Width x opts.Height. A positive
// FPS paces Acquire; zero delivers frames as fast as they are asked for.
func NewFake(opts Options) *Fake {
	w, h := opts.Width, opts.Height
	f := &Fake{
		bounds: image.Rect(0, 0, w, h),
		limit:  opts.Frames,
		rand:   rand.New(rand.NewSource(0)),
		spots:  make([]hotSpot, fakeSpots),
	}
	if opts.FPS > 0 {
		f.period = time.Second / time.Duration(opts.FPS)
	}

	// spot strength scales with area so the scene looks alike at any size
	scale := float64(w*h) / (80 * 60)
	for i := range f.spots {
		f.spots[i] = hotSpot{
			intensity: f.rand.NormFloat64() * 10 * scale,
			x:         f.rand.NormFloat64()*float64(w)/6 + float64(w)/2,
			y:         f.rand.NormFloat64()*float64(h)/6 + float64(h)/2,
		}
	}
	return f
}

func (f *Fake) Name() string            { return string(KindFake) }
func (f *Fake) Bounds() image.Rectangle { return f.bounds }

// Acquire renders the next frame, or returns ErrDeviceExhausted once the
// configured frame count has been delivered.
func (f *Fake) Acquire(ctx context.Context) (*frame.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.limit > 0 && f.seq >= uint64(f.limit) {
		return nil, ErrDeviceExhausted
	}
	if f.period > 0 {
		if f.ticker == nil {
			f.ticker = time.NewTicker(f.period)
		} else {
			select {
			case <-f.ticker.C:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	f.drift()
	out := frame.NewU16(f.bounds.Dx(), f.bounds.Dy(), 1)
	f.render(out)
	f.seq++
	out.Seq = f.seq
	out.Time = time.Now()
	return out, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ticker != nil {
		f.ticker.Stop()
		f.ticker = nil
	}
	return nil
}

func (f *Fake) drift() {
	for i := range f.spots {
		f.spots[i].intensity += f.rand.NormFloat64() * 0.1
		f.spots[i].x += f.rand.NormFloat64() * 0.1
		f.spots[i].y += f.rand.NormFloat64() * 0.1
	}
}

func (f *Fake) render(out *frame.Frame) {
	w := out.Width
	for y := 0; y < out.Height; y++ {
		fy := float64(y)
		for x := 0; x < w; x++ {
			fx := float64(x)
			v := float64(fakeBase)
			for _, s := range f.spots {
				d := (s.x-fx)*(s.x-fx) + (s.y-fy)*(s.y-fy)
				v += s.intensity / (d + 1)
			}
			if v > fakeBase+fakeRange {
				v = fakeBase + fakeRange
			}
			if v < fakeBase-fakeRange {
				v = fakeBase - fakeRange
			}
			out.U16[y*w+x] = uint16(v)
		}
	}
}
