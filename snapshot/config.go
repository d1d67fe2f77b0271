// Package snapshot implements the depth camera snapshot worker: it warms up the stream, aligns
// depth onto color and, for each prefix read from its trigger channel, writes a color JPEG and a
// 16-bit depth PNG before acknowledging with an OK line.
package snapshot

import (
	"image/png"

	"github.com/pkg/errors"

	"go.viam.com/depthsnap/components/camera"
)

// The reference stream configuration.
const (
	DefaultWidth          = 640
	DefaultHeight         = 480
	DefaultFPS            = 30
	DefaultWarmupFrames   = 60
	DefaultJPEGQuality    = 90
	DefaultPNGCompression = png.BestSpeed
)

// Config is the stream geometry and encoder tuning of a worker. Geometry is fixed for the
// lifetime of a worker and every accepted frame must match it exactly.
type Config struct {
	ColorWidth     int
	ColorHeight    int
	DepthWidth     int
	DepthHeight    int
	FPS            int
	WarmupFrames   int
	JPEGQuality    int
	PNGCompression png.CompressionLevel
}

// DefaultConfig returns the reference configuration: 640x480 BGR8 color and 640x480 Z16 depth at
// 30fps, 60 warm-up frames.
func DefaultConfig() *Config {
	return &Config{
		ColorWidth:     DefaultWidth,
		ColorHeight:    DefaultHeight,
		DepthWidth:     DefaultWidth,
		DepthHeight:    DefaultHeight,
		FPS:            DefaultFPS,
		WarmupFrames:   DefaultWarmupFrames,
		JPEGQuality:    DefaultJPEGQuality,
		PNGCompression: DefaultPNGCompression,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	if cfg.ColorWidth <= 0 || cfg.ColorHeight <= 0 {
		return errors.Errorf("invalid color resolution %dx%d", cfg.ColorWidth, cfg.ColorHeight)
	}
	if cfg.DepthWidth <= 0 || cfg.DepthHeight <= 0 {
		return errors.Errorf("invalid depth resolution %dx%d", cfg.DepthWidth, cfg.DepthHeight)
	}
	if cfg.FPS <= 0 {
		return errors.Errorf("invalid fps %d", cfg.FPS)
	}
	if cfg.WarmupFrames < 0 {
		return errors.Errorf("warm-up frames cannot be negative, got %d", cfg.WarmupFrames)
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		return errors.Errorf("jpeg quality must be between 1 and 100, got %d", cfg.JPEGQuality)
	}
	switch cfg.PNGCompression {
	case png.DefaultCompression, png.NoCompression, png.BestSpeed, png.BestCompression:
	default:
		return errors.Errorf("unknown png compression level %d", cfg.PNGCompression)
	}
	return nil
}

// Streams returns the streams to request when starting the pipeline.
func (cfg *Config) Streams() []camera.StreamConfig {
	return []camera.StreamConfig{
		{
			Kind:   camera.StreamColor,
			Width:  cfg.ColorWidth,
			Height: cfg.ColorHeight,
			Format: camera.FormatBGR8,
			FPS:    cfg.FPS,
		},
		{
			Kind:   camera.StreamDepth,
			Width:  cfg.DepthWidth,
			Height: cfg.DepthHeight,
			Format: camera.FormatZ16,
			FPS:    cfg.FPS,
		},
	}
}
