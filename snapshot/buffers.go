package snapshot

import (
	"image"

	"github.com/pkg/errors"

	"go.viam.com/depthsnap/components/camera"
	"go.viam.com/depthsnap/rimage"
)

// Buffers own the pixels of one snapshot. They are allocated once and overwritten by every
// capture, so frames borrowed from the pipeline never need to outlive a single iteration.
type Buffers struct {
	ColorWidth, ColorHeight int
	DepthWidth, DepthHeight int

	// Color is BGR8, ColorWidth*ColorHeight*3 bytes.
	Color []byte
	// Depth is Z16 little-endian, DepthWidth*DepthHeight*2 bytes.
	Depth []byte
}

// NewBuffers allocates buffers for the geometry of cfg.
func NewBuffers(cfg *Config) *Buffers {
	return &Buffers{
		ColorWidth:  cfg.ColorWidth,
		ColorHeight: cfg.ColorHeight,
		DepthWidth:  cfg.DepthWidth,
		DepthHeight: cfg.DepthHeight,
		Color:       make([]byte, cfg.ColorWidth*cfg.ColorHeight*3),
		Depth:       make([]byte, cfg.DepthWidth*cfg.DepthHeight*2),
	}
}

// CopyFrom validates both frames against the configured geometry and copies their payloads. On
// error neither buffer is modified.
func (b *Buffers) CopyFrom(color, depth camera.VideoFrame) error {
	if err := checkFrame("color", color, b.ColorWidth, b.ColorHeight, 3); err != nil {
		return err
	}
	if err := checkFrame("depth", depth, b.DepthWidth, b.DepthHeight, 2); err != nil {
		return err
	}
	copy(b.Color, color.Data()[:len(b.Color)])
	copy(b.Depth, depth.Data()[:len(b.Depth)])
	return nil
}

func checkFrame(name string, frame camera.VideoFrame, width, height, bpp int) error {
	if frame == nil {
		return errors.Errorf("%s frame is missing", name)
	}
	if frame.Width() != width || frame.Height() != height {
		return errors.Wrapf(ErrUnexpectedResolution, "%s: expected %dx%d, got %dx%d",
			name, width, height, frame.Width(), frame.Height())
	}
	if frame.BytesPerPixel() != bpp {
		return errors.Wrapf(ErrUnexpectedResolution, "%s: expected %d bytes per pixel, got %d",
			name, bpp, frame.BytesPerPixel())
	}
	if want := width * height * bpp; len(frame.Data()) < want {
		return errors.Wrapf(ErrUnexpectedResolution, "%s: expected %d bytes of data, got %d",
			name, want, len(frame.Data()))
	}
	return nil
}

// ColorImage wraps the color buffer without copying.
func (b *Buffers) ColorImage() (*rimage.BGR, error) {
	return rimage.WrapBGR(b.Color, b.ColorWidth, b.ColorHeight)
}

// DepthImage converts the depth buffer into a 16-bit grayscale image.
func (b *Buffers) DepthImage() (*image.Gray16, error) {
	return rimage.Z16ToGray16(b.Depth, b.DepthWidth, b.DepthHeight)
}
