// Package fake implements a camera driver that replays scripted framesets or still image files.
// It backs the worker's tests and lets the binary run without hardware.
package fake

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/depthsnap/components/camera"
	"go.viam.com/depthsnap/logging"
	"go.viam.com/depthsnap/registry"
	"go.viam.com/depthsnap/rimage/transform"
)

// Model is the registered driver name.
const Model = "fake"

// DefaultDepthScale is the meters-per-unit of the fake depth sensor, matching common RealSense units.
const DefaultDepthScale = 0.001

// ErrScriptExhausted is returned by WaitForFrames once every scripted frameset was delivered.
var ErrScriptExhausted = errors.New("fake pipeline has no more framesets")

// ErrCameraSystemMismatch is returned by Start when a requested stream does not have the resolution
// of the configured camera system.
var ErrCameraSystemMismatch = errors.New("stream resolution does not match camera system")

func init() {
	registry.RegisterDriver(Model, registry.Driver{
		Constructor: func(ctx context.Context, attrs registry.AttributeMap, logger logging.Logger) (camera.Driver, error) {
			var conf Config
			if err := registry.DecodeAttributes(attrs, &conf); err != nil {
				return nil, err
			}
			return NewDriverFromConfig(&conf, logger)
		},
	})
}

// Config are the attributes of the fake driver.
type Config struct {
	ColorImage    string  `json:"color_image_file_path,omitempty"`
	DepthImage    string  `json:"depth_image_file_path,omitempty"`
	CameraSystem  string  `json:"camera_system_file_path,omitempty"`
	DepthScale    float64 `json:"depth_scale,omitempty"`
	DropEvery     int     `json:"drop_every,omitempty"`
	NoDepthSensor bool    `json:"no_depth_sensor,omitempty"`
}

// Validate checks that the config attributes are valid for a fake driver.
func (conf *Config) Validate() error {
	if conf.DepthScale < 0 {
		return errors.Errorf("depth_scale cannot be negative, got %f", conf.DepthScale)
	}
	if conf.DropEvery < 0 {
		return errors.Errorf("drop_every cannot be negative, got %d", conf.DropEvery)
	}
	if conf.DropEvery == 1 {
		return errors.New("drop_every of 1 would drop every depth frame")
	}
	return nil
}

// Sensor is a fake sensor. Scale is only reported when IsDepth is set.
type Sensor struct {
	SensorName string
	Scale      float32
	IsDepth    bool
}

// Name returns the sensor name.
func (s *Sensor) Name() string {
	return s.SensorName
}

// DepthScale returns the sensor's depth units.
func (s *Sensor) DepthScale() (float32, bool) {
	if !s.IsDepth {
		return 0, false
	}
	return s.Scale, true
}

// Device is a fake device exposing a fixed sensor list.
type Device struct {
	SensorList []camera.Sensor
	SensorsErr error
}

// NewDevice returns a device shaped like a D400: an RGB sensor followed by a stereo depth module.
func NewDevice(depthScale float32) *Device {
	return &Device{SensorList: []camera.Sensor{
		&Sensor{SensorName: "RGB Camera"},
		&Sensor{SensorName: "Stereo Module", Scale: depthScale, IsDepth: true},
	}}
}

// NewDeviceWithoutDepth returns a device whose only sensor is a color sensor.
func NewDeviceWithoutDepth() *Device {
	return &Device{SensorList: []camera.Sensor{&Sensor{SensorName: "RGB Camera"}}}
}

// Sensors returns the configured sensors.
func (d *Device) Sensors() ([]camera.Sensor, error) {
	if d.SensorsErr != nil {
		return nil, d.SensorsErr
	}
	return d.SensorList, nil
}

// Pipeline replays Script in order. Frames it returns are reused across waits, the same way a
// driver recycles its frame pool, so holding on to one past the next wait observes new data.
type Pipeline struct {
	Device camera.Device
	// Profiles overrides the negotiated streams. When nil the requested streams are granted as is.
	Profiles []camera.StreamProfile
	Script   []*Frameset
	// Repeat keeps delivering the last scripted frameset once the script is exhausted.
	Repeat bool
	// DropEvery removes the depth frame from every n-th delivered frameset.
	DropEvery int

	source func(streams []camera.StreamConfig) ([]*Frameset, error)
	system *transform.DepthColorIntrinsicsExtrinsics

	started bool
	waits   int
	color   *Frame
	depth   *Frame
	current Frameset
}

// Start negotiates the requested streams.
func (p *Pipeline) Start(ctx context.Context, streams []camera.StreamConfig) (camera.PipelineProfile, error) {
	if p.started {
		return camera.PipelineProfile{}, errors.New("fake pipeline already started")
	}
	if err := checkCameraSystem(p.system, streams); err != nil {
		return camera.PipelineProfile{}, err
	}
	if len(p.Script) == 0 && p.source != nil {
		script, err := p.source(streams)
		if err != nil {
			return camera.PipelineProfile{}, err
		}
		p.Script = script
	}
	profiles := p.Profiles
	if profiles == nil {
		for _, s := range streams {
			profiles = append(profiles, camera.StreamProfile{
				Kind:   s.Kind,
				Index:  s.Index,
				Width:  s.Width,
				Height: s.Height,
				Format: s.Format,
				FPS:    s.FPS,
			})
		}
	}
	dev := p.Device
	if dev == nil {
		dev = NewDevice(DefaultDepthScale)
	}
	p.started = true
	return camera.PipelineProfile{Device: dev, Streams: profiles}, nil
}

func checkCameraSystem(system *transform.DepthColorIntrinsicsExtrinsics, streams []camera.StreamConfig) error {
	if system == nil {
		return nil
	}
	for _, s := range streams {
		var want *transform.PinholeCameraIntrinsics
		switch s.Kind {
		case camera.StreamColor:
			want = &system.ColorCamera
		case camera.StreamDepth:
			want = &system.DepthCamera
		default:
			continue
		}
		if s.Width != want.Width || s.Height != want.Height {
			return errors.Wrapf(ErrCameraSystemMismatch, "%s: requested %dx%d, camera system has %dx%d",
				s.Kind, s.Width, s.Height, want.Width, want.Height)
		}
	}
	return nil
}

// WaitForFrames returns the next scripted frameset.
func (p *Pipeline) WaitForFrames(ctx context.Context) (camera.Frameset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.started {
		return nil, errors.New("fake pipeline not started")
	}
	idx := p.waits
	if idx >= len(p.Script) {
		if !p.Repeat || len(p.Script) == 0 {
			return nil, ErrScriptExhausted
		}
		idx = len(p.Script) - 1
	}
	p.waits++

	src := p.Script[idx]
	p.current.Color = borrow(&p.color, src.Color)
	p.current.DepthFrame = borrow(&p.depth, src.DepthFrame)
	if p.DropEvery > 0 && p.waits%p.DropEvery == 0 {
		p.current.DepthFrame = nil
	}
	return &p.current, nil
}

// Waits returns how many framesets were delivered so far.
func (p *Pipeline) Waits() int {
	return p.waits
}

// Stop stops streaming.
func (p *Pipeline) Stop() error {
	p.started = false
	return nil
}

// Driver hands out a single fake pipeline and aligners to color.
type Driver struct {
	pipeline   *Pipeline
	system     *transform.DepthColorIntrinsicsExtrinsics
	depthScale float64
}

// NewDriver returns a driver around pipe. A nil system makes alignment the identity, which holds
// when the scripted depth already shares the color viewpoint.
func NewDriver(pipe *Pipeline, system *transform.DepthColorIntrinsicsExtrinsics) *Driver {
	pipe.system = system
	return &Driver{pipeline: pipe, system: system, depthScale: DefaultDepthScale}
}

// NewDriverFromConfig builds a driver that replays the configured image files, or synthetic
// images when no file is given.
func NewDriverFromConfig(conf *Config, logger logging.Logger) (*Driver, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	depthScale := conf.DepthScale
	if depthScale == 0 {
		depthScale = DefaultDepthScale
	}

	var system *transform.DepthColorIntrinsicsExtrinsics
	if conf.CameraSystem != "" {
		var err error
		system, err = transform.NewDepthColorIntrinsicsExtrinsicsFromJSONFile(conf.CameraSystem)
		if err != nil {
			return nil, err
		}
		if err := system.CheckValid(); err != nil {
			return nil, err
		}
	}

	dev := NewDevice(float32(depthScale))
	if conf.NoDepthSensor {
		dev = NewDeviceWithoutDepth()
	}
	pipe := &Pipeline{
		Device:    dev,
		Repeat:    true,
		DropEvery: conf.DropEvery,
		source:    imageFileSource(conf, logger),
		system:    system,
	}
	logger.Debugw("fake driver configured", "color", conf.ColorImage, "depth", conf.DepthImage,
		"camera_system", conf.CameraSystem, "drop_every", conf.DropEvery)
	return &Driver{pipeline: pipe, system: system, depthScale: depthScale}, nil
}

// NewPipeline returns the driver's pipeline.
func (d *Driver) NewPipeline(ctx context.Context) (camera.Pipeline, error) {
	return d.pipeline, nil
}

// NewAligner returns an aligner to the color stream.
func (d *Driver) NewAligner(ctx context.Context, target camera.StreamKind) (camera.Aligner, error) {
	if target != camera.StreamColor {
		return nil, errors.Errorf("fake driver can only align to %s, not %s", camera.StreamColor, target)
	}
	return &Aligner{System: d.system, DepthScale: d.depthScale}, nil
}

// Aligner reprojects depth onto the color grid with a software camera system.
type Aligner struct {
	System     *transform.DepthColorIntrinsicsExtrinsics
	DepthScale float64

	depth   Frame
	aligned alignedFrameset
}

type alignedFrameset struct {
	color camera.VideoFrame
	depth camera.VideoFrame
}

func (fs *alignedFrameset) First(kind camera.StreamKind) camera.VideoFrame {
	if kind != camera.StreamColor {
		return nil
	}
	return fs.color
}

func (fs *alignedFrameset) Depth() camera.VideoFrame {
	return fs.depth
}

// Process aligns the depth frame of frames. Framesets without depth pass through untouched.
func (a *Aligner) Process(ctx context.Context, frames camera.Frameset) (camera.Frameset, error) {
	if a.System == nil {
		return frames, nil
	}
	depth := frames.Depth()
	if depth == nil {
		return frames, nil
	}
	pix, err := a.System.AlignZ16ToColor(depth.Data(), a.DepthScale)
	if err != nil {
		return nil, errors.Wrap(err, "cannot align depth to color")
	}
	a.depth = Frame{W: a.System.ColorCamera.Width, H: a.System.ColorCamera.Height, BPP: 2, Pix: pix}
	a.aligned = alignedFrameset{color: frames.First(camera.StreamColor), depth: &a.depth}
	return &a.aligned, nil
}
