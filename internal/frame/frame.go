package frame

import (
	"fmt"
	"time"
)

// DType identifies the sample type stored in a Frame
type DType int

const (
	// Invalid is the zero DType; no stage accepts it
	Invalid DType = iota
	// U16 frames hold raw or integer-precision samples in U16
	U16
	// F32 frames hold samples in F32, normalized to [0,1] between stages
	F32
)

// U16Max is the largest representable raw sample
const U16Max = 65535

func (d DType) String() string {
	switch d {
	case U16:
		return "uint16"
	case F32:
		return "float32"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// Frame is a dense Height x Width x Channels array of samples, stored
// row-major with channels interleaved. Exactly one of U16 or F32 is
// populated, matching DType.
type Frame struct {
	Width    int
	Height   int
	Channels int
	DType    DType

	U16 []uint16
	F32 []float32

	// Seq and Time are set by the source at acquisition and carried
	// through every stage unchanged.
	Seq  uint64
	Time time.Time
}

// NewU16 allocates a zeroed uint16 frame
func NewU16(width, height, channels int) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		DType:    U16,
		U16:      make([]uint16, width*height*channels),
	}
}

// NewF32 allocates a zeroed float32 frame
func NewF32(width, height, channels int) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		DType:    F32,
		F32:      make([]float32, width*height*channels),
	}
}

// Len returns the number of samples in the frame
func (f *Frame) Len() int {
	return f.Width * f.Height * f.Channels
}

// SameShape reports whether two frames have identical dimensions
func (f *Frame) SameShape(o *Frame) bool {
	return f.Width == o.Width && f.Height == o.Height && f.Channels == o.Channels
}

// LikeF32 allocates a float32 frame with the shape and metadata of f
func (f *Frame) LikeF32() *Frame {
	out := NewF32(f.Width, f.Height, f.Channels)
	out.Seq = f.Seq
	out.Time = f.Time
	return out
}

// LikeU16 allocates a uint16 frame with the shape and metadata of f
func (f *Frame) LikeU16() *Frame {
	out := NewU16(f.Width, f.Height, f.Channels)
	out.Seq = f.Seq
	out.Time = f.Time
	return out
}

// Clone returns a deep copy of f
func (f *Frame) Clone() *Frame {
	out := *f
	if f.U16 != nil {
		out.U16 = append([]uint16(nil), f.U16...)
	}
	if f.F32 != nil {
		out.F32 = append([]float32(nil), f.F32...)
	}
	return &out
}

// Expect returns a FormatError when f does not carry the wanted dtype
func (f *Frame) Expect(stage string, want DType) error {
	if f.DType != want {
		return &FormatError{Stage: stage, Got: f.DType, Want: []DType{want}}
	}
	return nil
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame#%d %dx%dx%d %s", f.Seq, f.Width, f.Height, f.Channels, f.DType)
}
