//go:build !realsense

package realsense

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/depthsnap/components/camera"
	"go.viam.com/depthsnap/logging"
)

// ErrNotSupported is returned when the binary was built without librealsense2.
var ErrNotSupported = errors.New("realsense support not compiled in, rebuild with -tags realsense")

func newDriver(ctx context.Context, conf *Config, logger logging.Logger) (camera.Driver, error) {
	return nil, ErrNotSupported
}
