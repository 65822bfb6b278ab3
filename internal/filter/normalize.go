package filter

import (
	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

const u16Max = float32(frame.U16Max)

// U16ToFloat32 writes src scaled to [0,1] into dst. The full-scale sample
// maps to exactly 1.
func U16ToFloat32(dst []float32, src []uint16) {
	for i, v := range src {
		dst[i] = float32(float64(v) / frame.U16Max)
	}
}

// Float32ToU16 writes src scaled by 65535, clamped and truncated, into dst.
// NaN maps to 0.
func Float32ToU16(dst []uint16, src []float32) {
	for i, v := range src {
		v *= u16Max
		switch {
		case !(v > 0):
			dst[i] = 0
		case v >= u16Max:
			dst[i] = frame.U16Max
		default:
			dst[i] = uint16(v)
		}
	}
}

// ToFloat32 converts uint16 frames to float32 frames in [0,1]
type ToFloat32 struct{}

func (ToFloat32) Kind() Kind { return KindToFloat32 }
func (ToFloat32) sealed()    {}

func (ToFloat32) Process(in *frame.Frame) (*frame.Frame, error) {
	if err := in.Expect(KindToFloat32.String(), frame.U16); err != nil {
		return nil, err
	}
	out := in.LikeF32()
	U16ToFloat32(out.F32, in.U16)
	return out, nil
}

// ToU16 converts float32 frames back to integer precision
type ToU16 struct{}

func (ToU16) Kind() Kind { return KindToU16 }
func (ToU16) sealed()    {}

func (ToU16) Process(in *frame.Frame) (*frame.Frame, error) {
	if err := in.Expect(KindToU16.String(), frame.F32); err != nil {
		return nil, err
	}
	out := in.LikeU16()
	Float32ToU16(out.U16, in.F32)
	return out, nil
}
