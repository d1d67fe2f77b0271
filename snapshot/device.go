package snapshot

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/depthsnap/components/camera"
	"go.viam.com/depthsnap/logging"
)

// ResolveDepthScale returns the meters-per-unit factor of the first depth-capable sensor of dev.
func ResolveDepthScale(dev camera.Device, logger logging.Logger) (float32, error) {
	if dev == nil {
		return 0, errors.Wrap(ErrNoDepthSensor, "no active device")
	}
	sensors, err := dev.Sensors()
	if err != nil {
		return 0, errors.Wrap(err, "cannot query device sensors")
	}
	for _, s := range sensors {
		if scale, ok := s.DepthScale(); ok {
			logger.Infow("depth scale", "sensor", s.Name(), "scale", scale)
			return scale, nil
		}
	}
	return 0, ErrNoDepthSensor
}

// SelectAlignTarget picks the stream that depth is aligned to. Color always wins; both a color
// and a depth stream must have been negotiated.
func SelectAlignTarget(profiles []camera.StreamProfile) (camera.StreamKind, error) {
	target := camera.StreamAny
	var foundColor, foundDepth bool
	for _, p := range profiles {
		switch p.Kind {
		case camera.StreamColor:
			foundColor = true
			target = p.Kind
		case camera.StreamDepth:
			foundDepth = true
		default:
		}
	}
	if !foundColor {
		return camera.StreamAny, ErrNoColorStream
	}
	if !foundDepth {
		return camera.StreamAny, ErrNoDepthStream
	}
	return target, nil
}

// Stabilize blocks for n framesets and discards them, letting exposure and white balance settle.
func Stabilize(ctx context.Context, pipe camera.Pipeline, n int) error {
	for i := 0; i < n; i++ {
		if _, err := pipe.WaitForFrames(ctx); err != nil {
			return errors.Wrapf(err, "warm-up frame %d of %d", i+1, n)
		}
	}
	return nil
}
