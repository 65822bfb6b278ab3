package frame

import (
	"image"
)

// ToImage converts a processed frame into an 8-bit image for presentation.
//
// F32 samples are scaled by 255 and U16 samples by 255/65535; both are
// clipped to [0,255] and truncated. Three-channel frames become RGBA,
// everything else is rendered from its first channel as Gray.
func ToImage(f *Frame) (image.Image, error) {
	var sample func(i int) uint8
	switch f.DType {
	case F32:
		sample = func(i int) uint8 { return clip8(float64(f.F32[i]) * 255.0) }
	case U16:
		sample = func(i int) uint8 { return clip8(float64(f.U16[i]) / U16Max * 255.0) }
	default:
		return nil, &FormatError{Stage: "present", Got: f.DType, Want: []DType{F32, U16}}
	}

	rect := image.Rect(0, 0, f.Width, f.Height)
	if f.Channels == 3 {
		img := image.NewRGBA(rect)
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				src := (y*f.Width + x) * 3
				dst := y*img.Stride + x*4
				img.Pix[dst] = sample(src)
				img.Pix[dst+1] = sample(src + 1)
				img.Pix[dst+2] = sample(src + 2)
				img.Pix[dst+3] = 0xff
			}
		}
		return img, nil
	}

	img := image.NewGray(rect)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			img.Pix[y*img.Stride+x] = sample((y*f.Width + x) * f.Channels)
		}
	}
	return img, nil
}

func clip8(v float64) uint8 {
	switch {
	case v != v, v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
