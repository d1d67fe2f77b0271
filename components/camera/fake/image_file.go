package fake

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"go.viam.com/depthsnap/components/camera"
	"go.viam.com/depthsnap/logging"
	"go.viam.com/depthsnap/rimage"
)

// imageFileSource returns a frame source that renders one frameset at the negotiated resolution
// from the configured image files. Missing files are replaced by a yellow to blue gradient for
// color and a tilted plane for depth.
func imageFileSource(conf *Config, logger logging.Logger) func([]camera.StreamConfig) ([]*Frameset, error) {
	return func(streams []camera.StreamConfig) ([]*Frameset, error) {
		fs := &Frameset{}
		for _, s := range streams {
			switch s.Kind {
			case camera.StreamColor:
				if s.Format != camera.FormatBGR8 {
					return nil, errors.Errorf("fake camera cannot produce color as %s", s.Format)
				}
				img, err := colorImage(conf.ColorImage, s.Width, s.Height)
				if err != nil {
					return nil, err
				}
				bgr := rimage.ConvertToBGR(img)
				fs.Color = &Frame{W: s.Width, H: s.Height, BPP: 3, Pix: bgr.Pix}
			case camera.StreamDepth:
				if s.Format != camera.FormatZ16 {
					return nil, errors.Errorf("fake camera cannot produce depth as %s", s.Format)
				}
				img, err := depthImage(conf.DepthImage, s.Width, s.Height)
				if err != nil {
					return nil, err
				}
				fs.DepthFrame = &Frame{W: s.Width, H: s.Height, BPP: 2, Pix: rimage.Gray16ToZ16(img)}
			default:
				logger.Warnw("fake camera ignores stream", "stream", s.String())
			}
		}
		return []*Frameset{fs}, nil
	}
}

func colorImage(fn string, width, height int) (image.Image, error) {
	if fn == "" {
		return gradient(width, height), nil
	}
	src, err := rimage.ReadImageFromFile(fn)
	if err != nil {
		return nil, err
	}
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		return src, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

func depthImage(fn string, width, height int) (*image.Gray16, error) {
	if fn == "" {
		return tiltedPlane(width, height), nil
	}
	src, err := rimage.ReadImageFromFile(fn)
	if err != nil {
		return nil, err
	}
	gray, err := rimage.ConvertImageToGray16(src)
	if err != nil {
		return nil, err
	}
	if gray.Bounds().Dx() == width && gray.Bounds().Dy() == height {
		return gray, nil
	}
	// Depth is never interpolated.
	dst := image.NewGray16(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), gray, gray.Bounds(), draw.Src, nil)
	return dst, nil
}

func gradient(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	totalDist := math.Hypot(float64(width), float64(height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dist := math.Hypot(float64(x), float64(y)) / totalDist
			img.SetRGBA(x, y, color.RGBA{uint8(255 - (255 * dist)), uint8(255 - (255 * dist)), uint8(255 * dist), 255})
		}
	}
	return img
}

// tiltedPlane is a floor receding from 0.5m at the left edge to 1.5m at the right, in millimeters.
func tiltedPlane(width, height int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			d := 500 + 1000*x/max(width-1, 1)
			img.SetGray16(x, y, color.Gray16{Y: uint16(d)})
		}
	}
	return img
}
