// Package main is the depthsnap worker. It reads one output prefix per line from stdin, writes
// <prefix>color.jpg and <prefix>depth.png, and answers each snapshot with an OK line on stdout.
// Diagnostics go to stderr. Any failure exits with status 1.
package main

import (
	"context"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	// registers all drivers.
	_ "go.viam.com/depthsnap/components/register"
	"go.viam.com/depthsnap/logging"
	"go.viam.com/depthsnap/registry"
	"go.viam.com/depthsnap/snapshot"
)

var logger = logging.NewLogger("depthsnap")

func main() {
	if err := realMain(context.Background(), os.Args, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error(err)
		utils.UncheckedError(logger.Sync())
		os.Exit(1)
	}
}

const (
	debugFlag      = "debug"
	logFileFlag    = "log-file"
	deviceFlag     = "device"
	serialFlag     = "serial"
	colorImageFlag = "color-image"
	depthImageFlag = "depth-image"
	intrinsicsFlag = "intrinsics"
	dropEveryFlag  = "drop-every"
)

func newApp(stdin io.Reader, stdout io.Writer, logger logging.Logger) *cli.App {
	return &cli.App{
		Name:      "depthsnap",
		Usage:     "capture aligned color and depth snapshots on demand",
		UsageText: "depthsnap [options] < prefixes",
		// stdout carries the completion channel only.
		Writer:          os.Stderr,
		ErrWriter:       os.Stderr,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  debugFlag,
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  logFileFlag,
				Usage: "also write diagnostics to `FILE`, rotated by size",
			},
			&cli.StringFlag{
				Name:  deviceFlag,
				Value: "realsense",
				Usage: "camera driver to use (" + joinDrivers() + ")",
			},
			&cli.StringFlag{
				Name:  serialFlag,
				Usage: "serial number of the realsense device to open",
			},
			&cli.StringFlag{
				Name:  colorImageFlag,
				Usage: "color image replayed by the fake device",
			},
			&cli.StringFlag{
				Name:  depthImageFlag,
				Usage: "16-bit depth image replayed by the fake device",
			},
			&cli.StringFlag{
				Name:  intrinsicsFlag,
				Usage: "JSON camera system the fake device aligns depth with",
			},
			&cli.IntFlag{
				Name:  dropEveryFlag,
				Usage: "make the fake device drop every N-th depth frame",
			},
		},
		Action: func(c *cli.Context) error {
			return runWorker(c, stdin, stdout, logger)
		},
	}
}

func realMain(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, logger logging.Logger) error {
	return newApp(stdin, stdout, logger).RunContext(ctx, args)
}

func joinDrivers() string {
	var out string
	for i, model := range registry.RegisteredDrivers() {
		if i > 0 {
			out += ", "
		}
		out += model
	}
	return out
}

// driverAttributes turns the driver flags that were set into driver attributes.
func driverAttributes(c *cli.Context) registry.AttributeMap {
	attrs := registry.AttributeMap{}
	for flag, attr := range map[string]string{
		serialFlag:     "serial",
		colorImageFlag: "color_image_file_path",
		depthImageFlag: "depth_image_file_path",
		intrinsicsFlag: "camera_system_file_path",
	} {
		if c.IsSet(flag) {
			attrs[attr] = c.String(flag)
		}
	}
	if c.IsSet(dropEveryFlag) {
		attrs["drop_every"] = c.Int(dropEveryFlag)
	}
	return attrs
}

func runWorker(c *cli.Context, stdin io.Reader, stdout io.Writer, logger logging.Logger) error {
	if c.Bool(debugFlag) {
		logger.SetLevel(logging.DEBUG)
	}
	if fn := c.String(logFileFlag); fn != "" {
		logger.AddAppender(logging.NewFileAppender(fn))
	}

	driver, err := registry.NewDriver(c.Context, c.String(deviceFlag), driverAttributes(c), logger)
	if err != nil {
		return err
	}
	worker := &snapshot.Worker{
		Config:     snapshot.DefaultConfig(),
		Driver:     driver,
		Trigger:    stdin,
		Completion: stdout,
		Logger:     logger.Sublogger("worker"),
	}
	return worker.Run(c.Context)
}
