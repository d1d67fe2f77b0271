// Package register registers all camera drivers.
package register

import (
	// register drivers.
	_ "go.viam.com/depthsnap/components/camera/fake"
	_ "go.viam.com/depthsnap/components/camera/realsense"
)
