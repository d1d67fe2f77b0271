// Package realsense implements the camera driver for Intel RealSense depth cameras on top of
// librealsense2. Build with the realsense tag to link against the library; without it the driver
// is registered but fails to construct.
package realsense

import (
	"context"

	"go.viam.com/depthsnap/components/camera"
	"go.viam.com/depthsnap/logging"
	"go.viam.com/depthsnap/registry"
)

// Model is the registered driver name.
const Model = "realsense"

// Config are the attributes of the realsense driver.
type Config struct {
	// Serial selects a device by serial number. The first device is used when empty.
	Serial string `json:"serial,omitempty"`
}

func init() {
	registry.RegisterDriver(Model, registry.Driver{
		Constructor: func(ctx context.Context, attrs registry.AttributeMap, logger logging.Logger) (camera.Driver, error) {
			var conf Config
			if err := registry.DecodeAttributes(attrs, &conf); err != nil {
				return nil, err
			}
			return newDriver(ctx, &conf, logger)
		},
	})
}
