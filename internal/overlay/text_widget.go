package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/bryanchriswhite/SauronThermal/internal/frame"
)

// TextFunc produces the text shown for a frame
type TextFunc func(f *frame.Frame) string

// TextWidget draws a line of text, optionally on a filled background
type TextWidget struct {
	*BaseWidget
	text      TextFunc
	textColor color.RGBA
	bgColor   *color.RGBA
	padding   int
}

const lineHeight = 13 // basicfont.Face7x13

// NewTextWidget creates a text widget at (x, y)
func NewTextWidget(id string, x, y int, text TextFunc) *TextWidget {
	return &TextWidget{
		BaseWidget: NewBaseWidget(id, x, y, 1.0),
		text:       text,
		textColor:  color.RGBA{255, 255, 255, 255},
		padding:    3,
	}
}

// NewLabelWidget creates a widget showing fixed text
func NewLabelWidget(id string, x, y int, label string) *TextWidget {
	return NewTextWidget(id, x, y, func(*frame.Frame) string { return label })
}

// NewFrameInfoWidget creates a widget showing the frame sequence number and
// acquisition time.
func NewFrameInfoWidget(id string, x, y int) *TextWidget {
	w := NewTextWidget(id, x, y, FrameInfo)
	w.SetBackground(&color.RGBA{0, 0, 0, 160})
	return w
}

// FrameInfo formats f as "#<seq> <hh:mm:ss.mmm>"
func FrameInfo(f *frame.Frame) string {
	if f.Time.IsZero() {
		return fmt.Sprintf("#%d", f.Seq)
	}
	return fmt.Sprintf("#%d %s", f.Seq, f.Time.Format("15:04:05.000"))
}

// Type returns the widget type
func (w *TextWidget) Type() string {
	return "text"
}

// Render draws the text widget
func (w *TextWidget) Render(img *image.RGBA, f *frame.Frame) error {
	if !w.IsEnabled() || w.text == nil {
		return nil
	}
	text := w.text(f)
	if text == "" {
		return nil
	}

	face := basicfont.Face7x13
	textWidthPx := font.MeasureString(face, text).Ceil()

	if w.bgColor != nil {
		bg := image.NewRGBA(image.Rect(0, 0, textWidthPx+w.padding*2, lineHeight+w.padding*2))
		draw.Draw(bg, bg.Bounds(), &image.Uniform{*w.bgColor}, image.Point{}, draw.Src)
		BlendImage(img, bg, w.x, w.y, w.opacity)
	}

	textImg := image.NewRGBA(image.Rect(0, 0, textWidthPx, lineHeight))
	d := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(w.textColor),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: fixed.I(face.Ascent)},
	}
	d.DrawString(text)
	BlendImage(img, textImg, w.x+w.padding, w.y+w.padding, w.opacity)
	return nil
}

// SetColor sets the text color
func (w *TextWidget) SetColor(c color.RGBA) {
	w.textColor = c
}

// SetBackground sets the background color (nil for transparent)
func (w *TextWidget) SetBackground(c *color.RGBA) {
	w.bgColor = c
}
