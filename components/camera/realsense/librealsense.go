//go:build realsense

package realsense

/*
#cgo linux darwin LDFLAGS: -L/usr/local/lib/ -lrealsense2
#cgo CPPFLAGS: -I/usr/local/include
#include <stdlib.h>
#include <librealsense2/rs.h>
#include <librealsense2/h/rs_pipeline.h>
#include <librealsense2/h/rs_processing.h>
*/
import "C"

import (
	"context"
	"unsafe"

	"github.com/pkg/errors"

	"go.viam.com/depthsnap/components/camera"
	"go.viam.com/depthsnap/logging"
)

// ErrNoDevices is returned when no RealSense device is connected.
var ErrNoDevices = errors.New("no realsense devices found")

func errorFrom(err *C.rs2_error) error {
	if err == nil {
		return nil
	}
	defer C.rs2_free_error(err)
	return errors.Errorf("%s(%s): %s",
		C.GoString(C.rs2_get_failed_function(err)),
		C.GoString(C.rs2_get_failed_args(err)),
		C.GoString(C.rs2_get_error_message(err)))
}

type driver struct {
	ctx    *C.rs2_context
	serial string
	logger logging.Logger
}

func newDriver(ctx context.Context, conf *Config, logger logging.Logger) (camera.Driver, error) {
	var rsErr *C.rs2_error
	rsCtx := C.rs2_create_context(C.RS2_API_VERSION, &rsErr)
	if rsErr != nil {
		return nil, errorFrom(rsErr)
	}

	devices := C.rs2_query_devices(rsCtx, &rsErr)
	if rsErr != nil {
		C.rs2_delete_context(rsCtx)
		return nil, errorFrom(rsErr)
	}
	defer C.rs2_delete_device_list(devices)
	count := C.rs2_get_device_count(devices, &rsErr)
	if rsErr != nil {
		C.rs2_delete_context(rsCtx)
		return nil, errorFrom(rsErr)
	}
	if count == 0 {
		C.rs2_delete_context(rsCtx)
		return nil, ErrNoDevices
	}
	logger.Debugw("realsense devices found", "count", int(count))
	return &driver{ctx: rsCtx, serial: conf.Serial, logger: logger}, nil
}

func (d *driver) NewPipeline(ctx context.Context) (camera.Pipeline, error) {
	var rsErr *C.rs2_error
	conf := C.rs2_create_config(&rsErr)
	if rsErr != nil {
		return nil, errorFrom(rsErr)
	}
	if d.serial != "" {
		cSerial := C.CString(d.serial)
		defer C.free(unsafe.Pointer(cSerial))
		C.rs2_config_enable_device(conf, cSerial, &rsErr)
		if rsErr != nil {
			C.rs2_delete_config(conf)
			return nil, errorFrom(rsErr)
		}
	}
	p := C.rs2_create_pipeline(d.ctx, &rsErr)
	if rsErr != nil {
		C.rs2_delete_config(conf)
		return nil, errorFrom(rsErr)
	}
	return &pipeline{p: p, conf: conf, logger: d.logger}, nil
}

func (d *driver) NewAligner(ctx context.Context, target camera.StreamKind) (camera.Aligner, error) {
	var rsErr *C.rs2_error
	block := C.rs2_create_align(C.rs2_stream(target), &rsErr)
	if rsErr != nil {
		return nil, errorFrom(rsErr)
	}
	queue := C.rs2_create_frame_queue(1, &rsErr)
	if rsErr != nil {
		C.rs2_delete_processing_block(block)
		return nil, errorFrom(rsErr)
	}
	C.rs2_start_processing_queue(block, queue, &rsErr)
	if rsErr != nil {
		C.rs2_delete_frame_queue(queue)
		C.rs2_delete_processing_block(block)
		return nil, errorFrom(rsErr)
	}
	return &aligner{block: block, queue: queue}, nil
}

type pipeline struct {
	p       *C.rs2_pipeline
	conf    *C.rs2_config
	profile *C.rs2_pipeline_profile
	current *frameset
	logger  logging.Logger
}

func toFormat(f camera.Format) (C.rs2_format, error) {
	switch f {
	case camera.FormatZ16:
		return C.RS2_FORMAT_Z16, nil
	case camera.FormatBGR8:
		return C.RS2_FORMAT_BGR8, nil
	case camera.FormatRGB8:
		return C.RS2_FORMAT_RGB8, nil
	case camera.FormatY8:
		return C.RS2_FORMAT_Y8, nil
	case camera.FormatAny:
		return C.RS2_FORMAT_ANY, nil
	default:
		return 0, errors.Errorf("unsupported format %s", f)
	}
}

func fromFormat(f C.rs2_format) camera.Format {
	switch f {
	case C.RS2_FORMAT_Z16:
		return camera.FormatZ16
	case C.RS2_FORMAT_BGR8:
		return camera.FormatBGR8
	case C.RS2_FORMAT_RGB8:
		return camera.FormatRGB8
	case C.RS2_FORMAT_Y8:
		return camera.FormatY8
	default:
		return camera.FormatAny
	}
}

func (p *pipeline) Start(ctx context.Context, streams []camera.StreamConfig) (camera.PipelineProfile, error) {
	var rsErr *C.rs2_error
	for _, s := range streams {
		format, err := toFormat(s.Format)
		if err != nil {
			return camera.PipelineProfile{}, err
		}
		C.rs2_config_enable_stream(p.conf, C.rs2_stream(s.Kind), C.int(s.Index),
			C.int(s.Width), C.int(s.Height), format, C.int(s.FPS), &rsErr)
		if rsErr != nil {
			return camera.PipelineProfile{}, errors.Wrapf(errorFrom(rsErr), "cannot enable %s", s)
		}
	}

	p.profile = C.rs2_pipeline_start_with_config(p.p, p.conf, &rsErr)
	if rsErr != nil {
		return camera.PipelineProfile{}, errorFrom(rsErr)
	}

	dev := C.rs2_pipeline_profile_get_device(p.profile, &rsErr)
	if rsErr != nil {
		return camera.PipelineProfile{}, errorFrom(rsErr)
	}
	profiles, err := p.streamProfiles()
	if err != nil {
		return camera.PipelineProfile{}, err
	}
	return camera.PipelineProfile{Device: &device{dev: dev}, Streams: profiles}, nil
}

func (p *pipeline) streamProfiles() ([]camera.StreamProfile, error) {
	var rsErr *C.rs2_error
	list := C.rs2_pipeline_profile_get_streams(p.profile, &rsErr)
	if rsErr != nil {
		return nil, errorFrom(rsErr)
	}
	defer C.rs2_delete_stream_profiles_list(list)

	count := C.rs2_get_stream_profiles_count(list, &rsErr)
	if rsErr != nil {
		return nil, errorFrom(rsErr)
	}
	profiles := make([]camera.StreamProfile, 0, int(count))
	for i := 0; i < int(count); i++ {
		sp := C.rs2_get_stream_profile(list, C.int(i), &rsErr)
		if rsErr != nil {
			return nil, errorFrom(rsErr)
		}
		var (
			stream          C.rs2_stream
			format          C.rs2_format
			index, uid, fps C.int
			width, height   C.int
		)
		C.rs2_get_stream_profile_data(sp, &stream, &format, &index, &uid, &fps, &rsErr)
		if rsErr != nil {
			return nil, errorFrom(rsErr)
		}
		profile := camera.StreamProfile{
			Kind:   camera.StreamKind(stream),
			Index:  int(index),
			Format: fromFormat(format),
			FPS:    int(fps),
		}
		if C.rs2_stream_profile_is(sp, C.RS2_EXTENSION_VIDEO_PROFILE, &rsErr) != 0 {
			C.rs2_get_video_stream_resolution(sp, &width, &height, &rsErr)
			if rsErr != nil {
				return nil, errorFrom(rsErr)
			}
			profile.Width, profile.Height = int(width), int(height)
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

func (p *pipeline) WaitForFrames(ctx context.Context) (camera.Frameset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.current != nil {
		p.current.release()
		p.current = nil
	}
	var rsErr *C.rs2_error
	composite := C.rs2_pipeline_wait_for_frames(p.p, C.RS2_DEFAULT_TIMEOUT, &rsErr)
	if rsErr != nil {
		return nil, errorFrom(rsErr)
	}
	fs, err := newFrameset(composite)
	if err != nil {
		return nil, err
	}
	p.current = fs
	return fs, nil
}

func (p *pipeline) Stop() error {
	if p.current != nil {
		p.current.release()
		p.current = nil
	}
	var rsErr *C.rs2_error
	C.rs2_pipeline_stop(p.p, &rsErr)
	err := errorFrom(rsErr)
	if p.profile != nil {
		C.rs2_delete_pipeline_profile(p.profile)
	}
	C.rs2_delete_config(p.conf)
	C.rs2_delete_pipeline(p.p)
	return err
}

type device struct {
	dev *C.rs2_device
}

func (d *device) Sensors() ([]camera.Sensor, error) {
	var rsErr *C.rs2_error
	list := C.rs2_query_sensors(d.dev, &rsErr)
	if rsErr != nil {
		return nil, errorFrom(rsErr)
	}
	defer C.rs2_delete_sensor_list(list)

	count := C.rs2_get_sensors_count(list, &rsErr)
	if rsErr != nil {
		return nil, errorFrom(rsErr)
	}
	sensors := make([]camera.Sensor, 0, int(count))
	for i := 0; i < int(count); i++ {
		s, err := readSensor(list, i)
		if err != nil {
			return nil, err
		}
		sensors = append(sensors, s)
	}
	return sensors, nil
}

func readSensor(list *C.rs2_sensor_list, i int) (*sensor, error) {
	var rsErr *C.rs2_error
	s := C.rs2_create_sensor(list, C.int(i), &rsErr)
	if rsErr != nil {
		return nil, errorFrom(rsErr)
	}
	defer C.rs2_delete_sensor(s)

	out := &sensor{}
	if C.rs2_supports_sensor_info(s, C.RS2_CAMERA_INFO_NAME, &rsErr) != 0 {
		out.name = C.GoString(C.rs2_get_sensor_info(s, C.RS2_CAMERA_INFO_NAME, &rsErr))
	}
	if rsErr != nil {
		return nil, errorFrom(rsErr)
	}
	if C.rs2_is_sensor_extendable_to(s, C.RS2_EXTENSION_DEPTH_SENSOR, &rsErr) != 0 {
		out.scale = float32(C.rs2_get_depth_scale(s, &rsErr))
		out.isDepth = true
	}
	if rsErr != nil {
		return nil, errorFrom(rsErr)
	}
	return out, nil
}

type sensor struct {
	name    string
	scale   float32
	isDepth bool
}

func (s *sensor) Name() string {
	return s.name
}

func (s *sensor) DepthScale() (float32, bool) {
	return s.scale, s.isDepth
}

// videoFrame aliases the pixel memory of a librealsense frame.
type videoFrame struct {
	width, height, bpp int
	data               []byte
}

func (f *videoFrame) Width() int         { return f.width }
func (f *videoFrame) Height() int        { return f.height }
func (f *videoFrame) BytesPerPixel() int { return f.bpp }
func (f *videoFrame) Data() []byte       { return f.data }

// frameset owns one reference to a composite frame and one to each extracted frame. All of them
// are released together.
type frameset struct {
	composite *C.rs2_frame
	extracted []*C.rs2_frame
	byKind    map[camera.StreamKind]*videoFrame
}

func newFrameset(composite *C.rs2_frame) (*frameset, error) {
	fs := &frameset{composite: composite, byKind: map[camera.StreamKind]*videoFrame{}}
	var rsErr *C.rs2_error
	count := C.rs2_embedded_frames_count(composite, &rsErr)
	if rsErr != nil {
		fs.release()
		return nil, errorFrom(rsErr)
	}
	for i := 0; i < int(count); i++ {
		frame := C.rs2_extract_frame(composite, C.int(i), &rsErr)
		if rsErr != nil {
			fs.release()
			return nil, errorFrom(rsErr)
		}
		fs.extracted = append(fs.extracted, frame)
		kind, vf, err := wrapFrame(frame)
		if err != nil {
			fs.release()
			return nil, err
		}
		if vf == nil {
			continue
		}
		if _, ok := fs.byKind[kind]; !ok {
			fs.byKind[kind] = vf
		}
	}
	return fs, nil
}

func wrapFrame(frame *C.rs2_frame) (camera.StreamKind, *videoFrame, error) {
	var rsErr *C.rs2_error
	if C.rs2_is_frame_extendable_to(frame, C.RS2_EXTENSION_VIDEO_FRAME, &rsErr) == 0 {
		return camera.StreamAny, nil, errorFrom(rsErr)
	}
	sp := C.rs2_get_frame_stream_profile(frame, &rsErr)
	if rsErr != nil {
		return camera.StreamAny, nil, errorFrom(rsErr)
	}
	var (
		stream          C.rs2_stream
		format          C.rs2_format
		index, uid, fps C.int
	)
	C.rs2_get_stream_profile_data(sp, &stream, &format, &index, &uid, &fps, &rsErr)
	if rsErr != nil {
		return camera.StreamAny, nil, errorFrom(rsErr)
	}

	width := int(C.rs2_get_frame_width(frame, &rsErr))
	height := int(C.rs2_get_frame_height(frame, &rsErr))
	bpp := int(C.rs2_get_frame_bits_per_pixel(frame, &rsErr)) / 8
	stride := int(C.rs2_get_frame_stride_in_bytes(frame, &rsErr))
	size := int(C.rs2_get_frame_data_size(frame, &rsErr))
	data := C.rs2_get_frame_data(frame, &rsErr)
	if rsErr != nil {
		return camera.StreamAny, nil, errorFrom(rsErr)
	}
	if stride != width*bpp {
		return camera.StreamAny, nil, errors.Errorf("%s frame has a padded stride of %d bytes for width %d",
			camera.StreamKind(stream), stride, width)
	}
	return camera.StreamKind(stream), &videoFrame{
		width:  width,
		height: height,
		bpp:    bpp,
		data:   unsafe.Slice((*byte)(data), size),
	}, nil
}

func (fs *frameset) First(kind camera.StreamKind) camera.VideoFrame {
	if vf, ok := fs.byKind[kind]; ok {
		return vf
	}
	return nil
}

func (fs *frameset) Depth() camera.VideoFrame {
	return fs.First(camera.StreamDepth)
}

func (fs *frameset) release() {
	for _, f := range fs.extracted {
		C.rs2_release_frame(f)
	}
	fs.extracted = nil
	if fs.composite != nil {
		C.rs2_release_frame(fs.composite)
		fs.composite = nil
	}
	fs.byKind = nil
}

type aligner struct {
	block   *C.rs2_processing_block
	queue   *C.rs2_frame_queue
	current *frameset
}

func (a *aligner) Process(ctx context.Context, frames camera.Frameset) (camera.Frameset, error) {
	in, ok := frames.(*frameset)
	if !ok {
		return nil, errors.Errorf("realsense aligner cannot process %T", frames)
	}
	if a.current != nil {
		a.current.release()
		a.current = nil
	}

	var rsErr *C.rs2_error
	// rs2_process_frame takes ownership of one reference.
	C.rs2_frame_add_ref(in.composite, &rsErr)
	if rsErr != nil {
		return nil, errorFrom(rsErr)
	}
	C.rs2_process_frame(a.block, in.composite, &rsErr)
	if rsErr != nil {
		return nil, errorFrom(rsErr)
	}
	out := C.rs2_wait_for_frame(a.queue, C.RS2_DEFAULT_TIMEOUT, &rsErr)
	if rsErr != nil {
		return nil, errorFrom(rsErr)
	}
	fs, err := newFrameset(out)
	if err != nil {
		return nil, err
	}
	a.current = fs
	return fs, nil
}
