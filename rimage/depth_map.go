package rimage

import (
	"encoding/binary"
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// Depth is a single depth reading in device units. Zero means no data.
type Depth uint16

// MaxDepth is the largest representable depth.
const MaxDepth = Depth(0xffff)

// Z16ToGray16 converts a Z16 buffer (row-major, 16-bit little-endian) of width x height into an
// image.Gray16, whose pixels are big-endian.
func Z16ToGray16(buf []byte, width, height int) (*image.Gray16, error) {
	expectedSize := 2 * width * height
	if len(buf) != expectedSize {
		return nil, errors.Errorf("z16 buffer length (%d) not expected size (%d)", len(buf), expectedSize)
	}
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := 2 * (x + y*width)
			img.SetGray16(x, y, color.Gray16{Y: binary.LittleEndian.Uint16(buf[idx : idx+2])})
		}
	}
	return img, nil
}

// Gray16ToZ16 is the inverse of Z16ToGray16.
func Gray16ToZ16(img *image.Gray16) []byte {
	b := img.Bounds()
	out := make([]byte, 2*b.Dx()*b.Dy())
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			binary.LittleEndian.PutUint16(out[i:i+2], img.Gray16At(x, y).Y)
			i += 2
		}
	}
	return out
}

// ConvertImageToGray16 returns img as an image.Gray16, converting when necessary.
func ConvertImageToGray16(img image.Image) (*image.Gray16, error) {
	switch t := img.(type) {
	case *image.Gray16:
		return t, nil
	case nil:
		return nil, errors.New("cannot convert a nil image to gray16")
	default:
		b := t.Bounds()
		out := image.NewGray16(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out.Set(x, y, t.At(x, y))
			}
		}
		return out, nil
	}
}
