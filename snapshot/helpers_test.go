package snapshot

import (
	"image"
	"image/color"
	"io"
	"os"
	"testing"

	"go.viam.com/test"

	"go.viam.com/depthsnap/components/camera/fake"
	"go.viam.com/depthsnap/rimage"
)

func validFrameset(r, g, b uint8, d uint16) *fake.Frameset {
	return &fake.Frameset{
		Color:      fake.SolidColorFrame(DefaultWidth, DefaultHeight, r, g, b),
		DepthFrame: fake.ConstantDepthFrame(DefaultWidth, DefaultHeight, d),
	}
}

func withWarmup(n int, rest ...*fake.Frameset) []*fake.Frameset {
	warm := validFrameset(0, 0, 0, 1)
	script := make([]*fake.Frameset, 0, n+len(rest))
	for i := 0; i < n; i++ {
		script = append(script, warm)
	}
	return append(script, rest...)
}

// countingReader records how many times the trigger channel was read.
type countingReader struct {
	r     io.Reader
	reads int
}

func (cr *countingReader) Read(p []byte) (int, error) {
	cr.reads++
	return cr.r.Read(p)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, io.ErrClosedPipe
}

func fileExists(fn string) bool {
	_, err := os.Stat(fn)
	return err == nil
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

// checkSnapshotFiles decodes both files under prefix and checks their layout and contents.
func checkSnapshotFiles(t *testing.T, prefix string, want color.RGBA, wantDepth uint16) {
	t.Helper()
	colorFn, depthFn := OutputPaths(prefix)

	colorImg, err := rimage.ReadImageFromFile(colorFn)
	test.That(t, err, test.ShouldBeNil)
	_, isYCbCr := colorImg.(*image.YCbCr)
	test.That(t, isYCbCr, test.ShouldBeTrue)
	test.That(t, colorImg.Bounds(), test.ShouldResemble, image.Rect(0, 0, DefaultWidth, DefaultHeight))
	for _, pt := range []image.Point{{0, 0}, {320, 240}, {639, 479}} {
		got := color.RGBAModel.Convert(colorImg.At(pt.X, pt.Y)).(color.RGBA)
		test.That(t, int(absDiff(got.R, want.R)), test.ShouldBeLessThanOrEqualTo, 8)
		test.That(t, int(absDiff(got.G, want.G)), test.ShouldBeLessThanOrEqualTo, 8)
		test.That(t, int(absDiff(got.B, want.B)), test.ShouldBeLessThanOrEqualTo, 8)
	}

	depthImg, err := rimage.ReadImageFromFile(depthFn)
	test.That(t, err, test.ShouldBeNil)
	gray, ok := depthImg.(*image.Gray16)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, gray.Bounds(), test.ShouldResemble, image.Rect(0, 0, DefaultWidth, DefaultHeight))
	for _, pt := range []image.Point{{0, 0}, {320, 240}, {639, 479}} {
		test.That(t, gray.Gray16At(pt.X, pt.Y).Y, test.ShouldEqual, wantDepth)
	}
}
