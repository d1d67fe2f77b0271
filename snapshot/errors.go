package snapshot

import "github.com/pkg/errors"

var (
	// ErrNoDepthSensor is returned when none of the device's sensors reports a depth scale.
	ErrNoDepthSensor = errors.New("device does not have a depth sensor")
	// ErrNoColorStream is returned when the pipeline did not negotiate a color stream.
	ErrNoColorStream = errors.New("no color stream available")
	// ErrNoDepthStream is returned when the pipeline did not negotiate a depth stream.
	ErrNoDepthStream = errors.New("no depth stream available")
	// ErrTriggerClosed is returned when the trigger channel is exhausted or fails.
	ErrTriggerClosed = errors.New("failed to read from trigger channel")
	// ErrUnexpectedResolution is returned when an aligned frame does not match the configured
	// geometry.
	ErrUnexpectedResolution = errors.New("unexpected image resolution")
)
