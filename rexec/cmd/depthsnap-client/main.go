// Package main drives a depthsnap worker the way an agent does: it starts the worker once and
// requests packs of numbered snapshots from it.
package main

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/depthsnap/logging"
	"go.viam.com/depthsnap/rexec"
)

var logger = logging.NewLogger("depthsnap-client")

func main() {
	if err := realMain(context.Background(), os.Args, logger); err != nil {
		logger.Error(err)
		utils.UncheckedError(logger.Sync())
		os.Exit(1)
	}
}

func newApp(logger logging.Logger) *cli.App {
	return &cli.App{
		Name:            "depthsnap-client",
		Usage:           "take snapshot packs through a depthsnap worker",
		UsageText:       "depthsnap-client [options] [-- worker args]",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  "worker",
				Value: "depthsnap",
				Usage: "path to the depthsnap worker binary",
			},
			&cli.StringFlag{
				Name:  "dir",
				Value: os.TempDir(),
				Usage: "directory snapshots are written to",
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "prefix of the first pack, a random one inside --dir when empty",
			},
			&cli.IntFlag{
				Name:  "frames",
				Value: rexec.DefaultFramesPerSnapshot,
				Usage: "snapshots per pack",
			},
			&cli.IntFlag{
				Name:  "packs",
				Value: 1,
				Usage: "number of packs to take",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: time.Minute,
				Usage: "time allowed for each pack",
			},
		},
		Action: func(c *cli.Context) error {
			return takePacks(c, logger)
		},
	}
}

func realMain(ctx context.Context, args []string, logger logging.Logger) error {
	return newApp(logger).RunContext(ctx, args)
}

func takePacks(c *cli.Context, logger logging.Logger) (err error) {
	if c.Bool("debug") {
		logger.SetLevel(logging.DEBUG)
	}
	if c.Int("packs") <= 0 {
		return errors.Errorf("packs must be positive, got %d", c.Int("packs"))
	}

	ss, err := rexec.NewSnapshotter(rexec.ProcessConfig{
		Name: c.String("worker"),
		Args: c.Args().Slice(),
		Log:  true,
	}, logger.Sublogger("worker"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, ss.Close())
	}()

	for i := 0; i < c.Int("packs"); i++ {
		prefix := c.String("prefix")
		if prefix == "" || i > 0 {
			prefix = rexec.DefaultPrefix(c.String("dir"))
		}
		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		err := ss.TakeSnapshot(ctx, prefix, c.Int("frames"))
		cancel()
		if err != nil {
			return errors.Wrapf(err, "failed to take pack %d", i)
		}
		logger.Infow("pack written", "prefix", prefix, "frames", c.Int("frames"))
	}
	return nil
}
