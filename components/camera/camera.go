// Package camera defines the depth camera driver surface the snapshot worker depends on: stream
// profiles, pipelines that deliver time-correlated framesets, and the alignment primitive that
// reprojects depth into another stream's pixel grid.
//
// Frames handed out by a Pipeline are borrowed. A Frameset and every VideoFrame obtained from it
// are only valid until the next call to WaitForFrames on the same pipeline; callers must copy
// what they need before waiting again.
package camera

import (
	"context"
	"fmt"
)

// StreamKind identifies the semantic kind of a sensor stream.
type StreamKind int

// The stream kinds known to depthsnap. The numbering follows librealsense2.
const (
	StreamAny StreamKind = iota
	StreamDepth
	StreamColor
	StreamInfrared
	StreamFisheye
	StreamGyro
	StreamAccel
	StreamGPIO
	StreamPose
	StreamConfidence
)

func (k StreamKind) String() string {
	switch k {
	case StreamAny:
		return "any"
	case StreamDepth:
		return "depth"
	case StreamColor:
		return "color"
	case StreamInfrared:
		return "infrared"
	case StreamFisheye:
		return "fisheye"
	case StreamGyro:
		return "gyro"
	case StreamAccel:
		return "accel"
	case StreamGPIO:
		return "gpio"
	case StreamPose:
		return "pose"
	case StreamConfidence:
		return "confidence"
	default:
		return fmt.Sprintf("stream(%d)", int(k))
	}
}

// Format is the pixel format of a video stream.
type Format int

// Supported pixel formats.
const (
	FormatAny Format = iota
	// FormatZ16 is 16-bit little-endian depth in device units.
	FormatZ16
	// FormatBGR8 is 8-bit blue, green, red.
	FormatBGR8
	// FormatRGB8 is 8-bit red, green, blue.
	FormatRGB8
	// FormatY8 is 8-bit luminance.
	FormatY8
)

func (f Format) String() string {
	switch f {
	case FormatAny:
		return "any"
	case FormatZ16:
		return "z16"
	case FormatBGR8:
		return "bgr8"
	case FormatRGB8:
		return "rgb8"
	case FormatY8:
		return "y8"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// BytesPerPixel returns the size of a single pixel in the format, or 0 when unknown.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatZ16:
		return 2
	case FormatBGR8, FormatRGB8:
		return 3
	case FormatY8:
		return 1
	case FormatAny:
		return 0
	default:
		return 0
	}
}

// StreamConfig requests a stream when starting a pipeline.
type StreamConfig struct {
	Kind   StreamKind
	Index  int
	Width  int
	Height int
	Format Format
	FPS    int
}

func (sc StreamConfig) String() string {
	return fmt.Sprintf("%s %dx%d %s@%d", sc.Kind, sc.Width, sc.Height, sc.Format, sc.FPS)
}

// StreamProfile describes one negotiated stream. Profiles are produced once when a pipeline
// starts and never change afterwards.
type StreamProfile struct {
	Kind   StreamKind
	Index  int
	Width  int
	Height int
	Format Format
	FPS    int
}

// PipelineProfile is the outcome of starting a pipeline: the active device and the streams the
// device agreed to deliver.
type PipelineProfile struct {
	Device  Device
	Streams []StreamProfile
}

// VideoFrame is a single borrowed image from a stream.
type VideoFrame interface {
	Width() int
	Height() int
	BytesPerPixel() int
	// Data returns the pixel payload, row-major with no padding between rows. The slice aliases
	// driver memory and must not be retained.
	Data() []byte
}

// Frameset is one time-correlated bundle of frames delivered by a single wait.
type Frameset interface {
	// First returns the first frame of the given kind, or nil if the frameset has none.
	First(kind StreamKind) VideoFrame
	// Depth returns the depth frame, or nil if the frameset has none.
	Depth() VideoFrame
}

// Sensor is one sensor exposed by a device.
type Sensor interface {
	Name() string
	// DepthScale returns the meters-per-unit factor of the sensor. The boolean is false when the
	// sensor has no depth capability.
	DepthScale() (float32, bool)
}

// Device is an opened depth camera.
type Device interface {
	Sensors() ([]Sensor, error)
}

// Pipeline streams framesets from a device.
type Pipeline interface {
	Start(ctx context.Context, streams []StreamConfig) (PipelineProfile, error)
	// WaitForFrames blocks until the next frameset is available. The previously returned frameset
	// is invalid once this is called.
	WaitForFrames(ctx context.Context) (Frameset, error)
	Stop() error
}

// Aligner reprojects the depth frame of a frameset into the pixel grid of its target stream.
// The returned frameset follows the same lifetime rules as its input.
type Aligner interface {
	Process(ctx context.Context, frames Frameset) (Frameset, error)
}

// Driver creates the pipeline and aligner for one camera backend.
type Driver interface {
	NewPipeline(ctx context.Context) (Pipeline, error)
	NewAligner(ctx context.Context, target StreamKind) (Aligner, error)
}
