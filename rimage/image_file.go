package rimage

import (
	"bufio"
	"image"
	"image/jpeg"
	"image/png"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// WriteJPEGToFile encodes img as a JPEG of the given quality (1-100) and writes it to fn.
func WriteJPEGToFile(fn string, img image.Image, quality int) error {
	return writeImageToFile(fn, func(w *bufio.Writer) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	})
}

// WritePNGToFile encodes img as a PNG with the given compression level and writes it to fn.
// Gray16 images keep their full 16-bit depth.
func WritePNGToFile(fn string, img image.Image, level png.CompressionLevel) error {
	enc := &png.Encoder{CompressionLevel: level}
	return writeImageToFile(fn, func(w *bufio.Writer) error {
		return enc.Encode(w, img)
	})
}

// ReadImageFromFile decodes the JPEG or PNG image stored at fn.
func ReadImageFromFile(fn string) (image.Image, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode image %q", fn)
	}
	return img, nil
}

func writeImageToFile(fn string, encode func(w *bufio.Writer) error) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	if err := encode(w); err != nil {
		return errors.Wrapf(err, "cannot encode %q", fn)
	}
	return w.Flush()
}
