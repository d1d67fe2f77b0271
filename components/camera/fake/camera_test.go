package fake

import (
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/depthsnap/components/camera"
	"go.viam.com/depthsnap/logging"
	"go.viam.com/depthsnap/registry"
	"go.viam.com/depthsnap/rimage"
	"go.viam.com/depthsnap/rimage/transform"
)

var testStreams = []camera.StreamConfig{
	{Kind: camera.StreamColor, Width: 8, Height: 4, Format: camera.FormatBGR8, FPS: 30},
	{Kind: camera.StreamDepth, Width: 8, Height: 4, Format: camera.FormatZ16, FPS: 30},
}

func TestPipelineReplaysScript(t *testing.T) {
	ctx := context.Background()
	pipe := &Pipeline{Script: []*Frameset{
		{Color: SolidColorFrame(8, 4, 255, 0, 0), DepthFrame: ConstantDepthFrame(8, 4, 100)},
		{Color: SolidColorFrame(8, 4, 0, 0, 255)},
	}}

	_, err := pipe.WaitForFrames(ctx)
	test.That(t, err, test.ShouldNotBeNil)

	profile, err := pipe.Start(ctx, testStreams)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(profile.Streams), test.ShouldEqual, 2)
	test.That(t, profile.Streams[0].Kind, test.ShouldEqual, camera.StreamColor)
	test.That(t, profile.Streams[1].Format, test.ShouldEqual, camera.FormatZ16)
	test.That(t, profile.Device, test.ShouldNotBeNil)

	first, err := pipe.WaitForFrames(ctx)
	test.That(t, err, test.ShouldBeNil)
	colorFrame := first.First(camera.StreamColor)
	test.That(t, colorFrame, test.ShouldNotBeNil)
	test.That(t, colorFrame.Data()[:3], test.ShouldResemble, []byte{0, 0, 255})
	test.That(t, first.Depth(), test.ShouldNotBeNil)
	test.That(t, first.First(camera.StreamInfrared), test.ShouldBeNil)

	second, err := pipe.WaitForFrames(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second.Depth(), test.ShouldBeNil)
	// The earlier frame was recycled.
	test.That(t, colorFrame.Data()[:3], test.ShouldResemble, []byte{255, 0, 0})

	_, err = pipe.WaitForFrames(ctx)
	test.That(t, err, test.ShouldBeError, ErrScriptExhausted)
	test.That(t, pipe.Waits(), test.ShouldEqual, 2)
	test.That(t, pipe.Stop(), test.ShouldBeNil)
}

func TestPipelineRepeatAndDrop(t *testing.T) {
	ctx := context.Background()
	pipe := &Pipeline{
		Script:    []*Frameset{{Color: SolidColorFrame(8, 4, 1, 2, 3), DepthFrame: ConstantDepthFrame(8, 4, 7)}},
		Repeat:    true,
		DropEvery: 3,
	}
	_, err := pipe.Start(ctx, testStreams)
	test.That(t, err, test.ShouldBeNil)
	_, err = pipe.Start(ctx, testStreams)
	test.That(t, err, test.ShouldNotBeNil)

	for i := 1; i <= 6; i++ {
		fs, err := pipe.WaitForFrames(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, fs.First(camera.StreamColor), test.ShouldNotBeNil)
		if i%3 == 0 {
			test.That(t, fs.Depth(), test.ShouldBeNil)
		} else {
			test.That(t, fs.Depth(), test.ShouldNotBeNil)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = pipe.WaitForFrames(cancelled)
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestPipelineProfileOverride(t *testing.T) {
	pipe := &Pipeline{
		Device:   NewDeviceWithoutDepth(),
		Profiles: []camera.StreamProfile{{Kind: camera.StreamDepth, Width: 8, Height: 4, Format: camera.FormatZ16}},
	}
	profile, err := pipe.Start(context.Background(), testStreams)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(profile.Streams), test.ShouldEqual, 1)

	sensors, err := profile.Device.Sensors()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(sensors), test.ShouldEqual, 1)
	_, ok := sensors[0].DepthScale()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestDevice(t *testing.T) {
	sensors, err := NewDevice(0.00025).Sensors()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(sensors), test.ShouldEqual, 2)
	test.That(t, sensors[1].Name(), test.ShouldEqual, "Stereo Module")
	scale, ok := sensors[1].DepthScale()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, scale, test.ShouldEqual, float32(0.00025))
}

func TestAligner(t *testing.T) {
	ctx := context.Background()
	drv := NewDriver(&Pipeline{}, nil)
	_, err := drv.NewAligner(ctx, camera.StreamInfrared)
	test.That(t, err, test.ShouldNotBeNil)

	identity, err := drv.NewAligner(ctx, camera.StreamColor)
	test.That(t, err, test.ShouldBeNil)
	in := &Frameset{Color: SolidColorFrame(8, 4, 1, 1, 1), DepthFrame: ConstantDepthFrame(8, 4, 9)}
	out, err := identity.Process(ctx, in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldEqual, in)

	intrinsics := transform.PinholeCameraIntrinsics{Width: 8, Height: 4, Fx: 100, Fy: 100, Ppx: 4, Ppy: 2}
	system := &transform.DepthColorIntrinsicsExtrinsics{
		ColorCamera:  intrinsics,
		DepthCamera:  intrinsics,
		ExtrinsicD2C: transform.IdentityExtrinsics(),
	}
	system.ExtrinsicD2C.TranslationVector[0] = 0.02
	aligner, err := NewDriver(&Pipeline{}, system).NewAligner(ctx, camera.StreamColor)
	test.That(t, err, test.ShouldBeNil)
	out, err = aligner.Process(ctx, &Frameset{Color: in.Color, DepthFrame: ConstantDepthFrame(8, 4, 1000)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.First(camera.StreamColor), test.ShouldNotBeNil)
	depth := out.Depth().Data()
	test.That(t, binary.LittleEndian.Uint16(depth[0:2]), test.ShouldEqual, uint16(0))
	test.That(t, binary.LittleEndian.Uint16(depth[4:6]), test.ShouldEqual, uint16(1000))

	out, err = aligner.Process(ctx, &Frameset{Color: in.Color})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Depth(), test.ShouldBeNil)

	_, err = aligner.Process(ctx, &Frameset{Color: in.Color, DepthFrame: ConstantDepthFrame(4, 4, 1000)})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConfigValidate(t *testing.T) {
	test.That(t, (&Config{}).Validate(), test.ShouldBeNil)
	test.That(t, (&Config{DropEvery: 1}).Validate(), test.ShouldNotBeNil)
	test.That(t, (&Config{DropEvery: -2}).Validate(), test.ShouldNotBeNil)
	test.That(t, (&Config{DepthScale: -1}).Validate(), test.ShouldNotBeNil)
}

func TestSyntheticImages(t *testing.T) {
	ctx := context.Background()
	drv, err := NewDriverFromConfig(&Config{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	pipe, err := drv.NewPipeline(ctx)
	test.That(t, err, test.ShouldBeNil)
	_, err = pipe.Start(ctx, testStreams)
	test.That(t, err, test.ShouldBeNil)

	for i := 0; i < 3; i++ {
		fs, err := pipe.WaitForFrames(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, len(fs.First(camera.StreamColor).Data()), test.ShouldEqual, 8*4*3)
		depth := fs.Depth().Data()
		test.That(t, len(depth), test.ShouldEqual, 8*4*2)
		test.That(t, binary.LittleEndian.Uint16(depth[0:2]), test.ShouldEqual, uint16(500))
		test.That(t, binary.LittleEndian.Uint16(depth[14:16]), test.ShouldEqual, uint16(1500))
	}
}

func TestImageFiles(t *testing.T) {
	dir := t.TempDir()
	colorFn := filepath.Join(dir, "color.png")
	src := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = 10, 20, 30, 255
	}
	test.That(t, rimage.WritePNGToFile(colorFn, src, png.BestSpeed), test.ShouldBeNil)

	depthFn := filepath.Join(dir, "depth.png")
	depthSrc := image.NewGray16(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			depthSrc.SetGray16(x, y, color.Gray16{Y: 1234})
		}
	}
	test.That(t, rimage.WritePNGToFile(depthFn, depthSrc, png.BestSpeed), test.ShouldBeNil)

	logger := logging.NewTestLogger(t)
	drv, err := registry.NewDriver(context.Background(), Model, registry.AttributeMap{
		"color_image_file_path": colorFn,
		"depth_image_file_path": depthFn,
		"drop_every":            2,
	}, logger)
	test.That(t, err, test.ShouldBeNil)

	pipe, err := drv.NewPipeline(context.Background())
	test.That(t, err, test.ShouldBeNil)
	_, err = pipe.Start(context.Background(), testStreams)
	test.That(t, err, test.ShouldBeNil)

	fs, err := pipe.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)
	colorPix := fs.First(camera.StreamColor).Data()
	test.That(t, colorPix[:3], test.ShouldResemble, []byte{30, 20, 10})
	depth := fs.Depth().Data()
	for i := 0; i < len(depth); i += 2 {
		test.That(t, binary.LittleEndian.Uint16(depth[i:i+2]), test.ShouldEqual, uint16(1234))
	}

	fs, err = pipe.WaitForFrames(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fs.Depth(), test.ShouldBeNil)

	_, err = registry.NewDriver(context.Background(), Model, registry.AttributeMap{
		"color_image_file_path": filepath.Join(dir, "missing.png"),
	}, logger)
	test.That(t, err, test.ShouldBeNil)

	_, err = registry.NewDriver(context.Background(), Model, registry.AttributeMap{"bogus": true}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestUnsupportedFormat(t *testing.T) {
	drv, err := NewDriverFromConfig(&Config{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	pipe, err := drv.NewPipeline(context.Background())
	test.That(t, err, test.ShouldBeNil)
	_, err = pipe.Start(context.Background(), []camera.StreamConfig{
		{Kind: camera.StreamColor, Width: 8, Height: 4, Format: camera.FormatRGB8, FPS: 30},
	})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCameraSystemMustMatchStreams(t *testing.T) {
	ctx := context.Background()
	drv, err := registry.NewDriver(ctx, Model, registry.AttributeMap{
		"camera_system_file_path": "../../../rimage/transform/data/d435_640x480.json",
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	pipe, err := drv.NewPipeline(ctx)
	test.That(t, err, test.ShouldBeNil)
	_, err = pipe.Start(ctx, testStreams)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, ErrCameraSystemMismatch.Error())
	test.That(t, err.Error(), test.ShouldContainSubstring, "requested 8x4, camera system has 640x480")

	_, err = pipe.Start(ctx, []camera.StreamConfig{
		{Kind: camera.StreamColor, Width: 640, Height: 480, Format: camera.FormatBGR8, FPS: 30},
		{Kind: camera.StreamDepth, Width: 640, Height: 480, Format: camera.FormatZ16, FPS: 30},
	})
	test.That(t, err, test.ShouldBeNil)
	fs, err := pipe.WaitForFrames(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fs.Depth(), test.ShouldNotBeNil)
}
