package snapshot

import (
	"context"
	"io"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/depthsnap/components/camera"
	"go.viam.com/depthsnap/logging"
)

// Worker wires a camera driver to the trigger and completion channels.
type Worker struct {
	Config     *Config
	Driver     camera.Driver
	Trigger    io.Reader
	Completion io.Writer
	// Encoder defaults to a FileEncoder.
	Encoder Encoder
	// Clock defaults to the wall clock.
	Clock  clock.Clock
	Logger logging.Logger
}

// Run starts the pipeline, checks the device, warms the stream up and serves triggers until a
// fatal error. The pipeline is not stopped on error.
// The trigger channel is never read before the device checks pass.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	clk := w.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := w.Logger

	pipe, err := w.Driver.NewPipeline(ctx)
	if err != nil {
		return errors.Wrap(err, "cannot create pipeline")
	}
	profile, err := pipe.Start(ctx, cfg.Streams())
	if err != nil {
		return errors.Wrap(err, "cannot start pipeline")
	}
	for _, s := range profile.Streams {
		logger.Debugw("negotiated stream", "kind", s.Kind.String(), "width", s.Width, "height", s.Height,
			"format", s.Format.String(), "fps", s.FPS)
	}

	if _, err := ResolveDepthScale(profile.Device, logger); err != nil {
		return err
	}
	target, err := SelectAlignTarget(profile.Streams)
	if err != nil {
		return err
	}
	aligner, err := w.Driver.NewAligner(ctx, target)
	if err != nil {
		return errors.Wrapf(err, "cannot align to %s", target)
	}

	start := clk.Now()
	if err := Stabilize(ctx, pipe, cfg.WarmupFrames); err != nil {
		return err
	}
	logger.Infow("stream stabilized", "frames", cfg.WarmupFrames, "duration", clk.Since(start))

	loop := NewLoop(cfg, LoopDeps{
		Pipeline:   pipe,
		Aligner:    aligner,
		Target:     target,
		Trigger:    w.Trigger,
		Completion: w.Completion,
		Encoder:    w.Encoder,
		Clock:      clk,
	}, logger.Sublogger("loop"))
	return loop.Run(ctx)
}
