package snapshot

import (
	"image/png"

	"github.com/pkg/errors"

	"go.viam.com/depthsnap/rimage"
)

// Output file name suffixes, appended verbatim to the trigger prefix.
const (
	ColorSuffix = "color.jpg"
	DepthSuffix = "depth.png"
)

// OutputPaths returns the color and depth file names for prefix.
func OutputPaths(prefix string) (string, string) {
	return prefix + ColorSuffix, prefix + DepthSuffix
}

// An Encoder persists one snapshot.
type Encoder interface {
	Encode(prefix string, buffers *Buffers) error
}

// FileEncoder writes the color buffer as a JPEG and the depth buffer as a 16-bit PNG.
type FileEncoder struct {
	JPEGQuality    int
	PNGCompression png.CompressionLevel
}

// NewFileEncoder returns an encoder using the quality settings of cfg.
func NewFileEncoder(cfg *Config) *FileEncoder {
	return &FileEncoder{JPEGQuality: cfg.JPEGQuality, PNGCompression: cfg.PNGCompression}
}

// Encode writes <prefix>color.jpg then <prefix>depth.png.
func (e *FileEncoder) Encode(prefix string, buffers *Buffers) error {
	colorFn, depthFn := OutputPaths(prefix)

	color, err := buffers.ColorImage()
	if err != nil {
		return err
	}
	if err := rimage.WriteJPEGToFile(colorFn, color, e.JPEGQuality); err != nil {
		return errors.Wrap(err, "failed to save color frame")
	}

	depth, err := buffers.DepthImage()
	if err != nil {
		return err
	}
	if err := rimage.WritePNGToFile(depthFn, depth, e.PNGCompression); err != nil {
		return errors.Wrap(err, "failed to save depth frame")
	}
	return nil
}
