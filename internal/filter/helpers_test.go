package filter

import (
	"math/rand"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

func constF32(w, h int, v float32) *frame.Frame {
	f := frame.NewF32(w, h, 1)
	for i := range f.F32 {
		f.F32[i] = v
	}
	return f
}

func constU16(w, h int, v uint16) *frame.Frame {
	f := frame.NewU16(w, h, 1)
	for i := range f.U16 {
		f.U16[i] = v
	}
	return f
}

func noiseF32(w, h, c int, seed int64) *frame.Frame {
	r := rand.New(rand.NewSource(seed))
	f := frame.NewF32(w, h, c)
	for i := range f.F32 {
		f.F32[i] = r.Float32()
	}
	return f
}

func noiseU16(w, h int, seed int64) *frame.Frame {
	r := rand.New(rand.NewSource(seed))
	f := frame.NewU16(w, h, 1)
	for i := range f.U16 {
		f.U16[i] = uint16(r.Intn(frame.U16Max + 1))
	}
	return f
}
