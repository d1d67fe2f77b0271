// Package rimage holds the in-memory image layouts produced by depth cameras and the helpers to
// move them between raw driver buffers, Go images and files.
package rimage

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// BGR is an in-memory image whose pixels are stored as 8-bit blue, green, red triples, the
// native layout of BGR8 camera streams. At returns colors in the usual RGB order.
type BGR struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// NewBGR returns a new BGR image with the given bounds.
func NewBGR(r image.Rectangle) *BGR {
	return &BGR{
		Pix:    make([]uint8, 3*r.Dx()*r.Dy()),
		Stride: 3 * r.Dx(),
		Rect:   r,
	}
}

// WrapBGR returns a BGR image of width x height that shares buf. buf must hold exactly
// width*height*3 bytes.
func WrapBGR(buf []byte, width, height int) (*BGR, error) {
	if want := width * height * 3; len(buf) != want {
		return nil, errors.Errorf("bgr buffer has %d bytes, expected %d for %dx%d", len(buf), want, width, height)
	}
	return &BGR{Pix: buf, Stride: 3 * width, Rect: image.Rect(0, 0, width, height)}, nil
}

func (p *BGR) ColorModel() color.Model {
	return color.RGBAModel
}

func (p *BGR) Bounds() image.Rectangle {
	return p.Rect
}

func (p *BGR) At(x, y int) color.Color {
	return p.RGBAAt(x, y)
}

// RGBAAt returns the opaque color at (x, y).
func (p *BGR) RGBAAt(x, y int) color.RGBA {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+3 : i+3]
	return color.RGBA{R: s[2], G: s[1], B: s[0], A: 0xff}
}

// PixOffset returns the index of the first element of Pix that corresponds to the pixel at (x, y).
func (p *BGR) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
}

func (p *BGR) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	c1 := color.RGBAModel.Convert(c).(color.RGBA)
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+3 : i+3]
	s[0] = c1.B
	s[1] = c1.G
	s[2] = c1.R
}

// ConvertToBGR copies any image into a new BGR image with the same bounds.
func ConvertToBGR(img image.Image) *BGR {
	if bgr, ok := img.(*BGR); ok {
		return bgr
	}
	b := img.Bounds()
	out := NewBGR(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}
