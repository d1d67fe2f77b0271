package snapshot

import (
	"bytes"
	"context"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest/observer"
	"go.viam.com/test"

	"go.viam.com/depthsnap/components/camera"
	"go.viam.com/depthsnap/components/camera/fake"
	"go.viam.com/depthsnap/logging"
)

type loopHarness struct {
	loop       *Loop
	pipe       *fake.Pipeline
	trigger    *countingReader
	completion *bytes.Buffer
	observed   *observer.ObservedLogs
}

func newLoopHarness(t *testing.T, script []*fake.Frameset, trigger string) *loopHarness {
	t.Helper()
	ctx := context.Background()
	pipe := &fake.Pipeline{Script: script}
	_, err := pipe.Start(ctx, DefaultConfig().Streams())
	test.That(t, err, test.ShouldBeNil)
	aligner, err := fake.NewDriver(pipe, nil).NewAligner(ctx, camera.StreamColor)
	test.That(t, err, test.ShouldBeNil)

	logger, observed := logging.NewObservedTestLogger(t)
	h := &loopHarness{
		pipe:       pipe,
		trigger:    &countingReader{r: strings.NewReader(trigger)},
		completion: &bytes.Buffer{},
		observed:   observed,
	}
	h.loop = NewLoop(DefaultConfig(), LoopDeps{
		Pipeline:   pipe,
		Aligner:    aligner,
		Target:     camera.StreamColor,
		Trigger:    h.trigger,
		Completion: h.completion,
	}, logger)
	return h
}

func TestLoopRetriesMissingDepthWithSamePrefix(t *testing.T) {
	ctx := context.Background()
	prefix := filepath.Join(t.TempDir(), "shot1_")
	colorFn, depthFn := OutputPaths(prefix)

	noDepth := &fake.Frameset{Color: fake.SolidColorFrame(DefaultWidth, DefaultHeight, 255, 0, 0)}
	h := newLoopHarness(t, []*fake.Frameset{noDepth, validFrameset(0, 255, 0, 777)}, prefix+"\n")
	test.That(t, h.loop.State(), test.ShouldEqual, WaitingForTrigger)

	test.That(t, h.loop.Step(ctx), test.ShouldBeNil)
	test.That(t, h.loop.State(), test.ShouldEqual, Capturing)
	test.That(t, h.loop.Prefix(), test.ShouldEqual, prefix)
	test.That(t, h.trigger.reads, test.ShouldEqual, 1)

	test.That(t, h.loop.Step(ctx), test.ShouldBeNil)
	test.That(t, h.loop.State(), test.ShouldEqual, Capturing)
	test.That(t, h.loop.Prefix(), test.ShouldEqual, prefix)
	test.That(t, h.trigger.reads, test.ShouldEqual, 1)
	test.That(t, h.completion.Len(), test.ShouldEqual, 0)
	test.That(t, fileExists(colorFn), test.ShouldBeFalse)
	test.That(t, fileExists(depthFn), test.ShouldBeFalse)
	retries := h.observed.FilterLevelExact(logging.WARN.AsZap()).All()
	test.That(t, len(retries), test.ShouldEqual, 1)
	test.That(t, retries[0].Message, test.ShouldContainSubstring, "will retry")
	test.That(t, retries[0].ContextMap()["prefix"], test.ShouldEqual, prefix)
	test.That(t, retries[0].ContextMap()["has_depth"], test.ShouldEqual, false)

	test.That(t, h.loop.Step(ctx), test.ShouldBeNil)
	test.That(t, h.loop.State(), test.ShouldEqual, WaitingForTrigger)
	test.That(t, h.loop.Prefix(), test.ShouldEqual, "")
	test.That(t, h.completion.String(), test.ShouldEqual, "OK\n")
	test.That(t, h.trigger.reads, test.ShouldEqual, 1)
	checkSnapshotFiles(t, prefix, color.RGBA{0, 255, 0, 255}, 777)
	test.That(t, h.pipe.Waits(), test.ShouldEqual, 2)

	err := h.loop.Step(ctx)
	test.That(t, errors.Is(err, ErrTriggerClosed), test.ShouldBeTrue)
}

func TestLoopRetriesMissingColor(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "c_")
	noColor := &fake.Frameset{DepthFrame: fake.ConstantDepthFrame(DefaultWidth, DefaultHeight, 5)}
	h := newLoopHarness(t, []*fake.Frameset{noColor, noColor, validFrameset(9, 9, 9, 9)}, prefix+"\n")

	err := h.loop.Run(context.Background())
	test.That(t, errors.Is(err, ErrTriggerClosed), test.ShouldBeTrue)
	test.That(t, h.completion.String(), test.ShouldEqual, "OK\n")
	test.That(t, h.observed.FilterMessageSnippet("will retry").Len(), test.ShouldEqual, 2)
	written := h.observed.FilterMessage("snapshot written").All()
	test.That(t, len(written), test.ShouldEqual, 1)
	test.That(t, written[0].ContextMap()["retries"], test.ShouldEqual, int64(2))
	checkSnapshotFiles(t, prefix, color.RGBA{9, 9, 9, 255}, 9)
}

func TestLoopTriggerLines(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a_")
	b := filepath.Join(dir, "b_")
	// Empty lines are skipped, CRLF is trimmed and a final line without newline still counts.
	h := newLoopHarness(t, []*fake.Frameset{validFrameset(1, 1, 1, 1), validFrameset(2, 2, 2, 2)},
		"\n\n"+a+"\r\n\n"+b)

	err := h.loop.Run(context.Background())
	test.That(t, errors.Is(err, ErrTriggerClosed), test.ShouldBeTrue)
	test.That(t, h.completion.String(), test.ShouldEqual, "OK\nOK\n")
	checkSnapshotFiles(t, a, color.RGBA{1, 1, 1, 255}, 1)
	checkSnapshotFiles(t, b, color.RGBA{2, 2, 2, 255}, 2)
}

func TestLoopTriggerKeepsPrefixBytes(t *testing.T) {
	ctx := context.Background()
	h := newLoopHarness(t, []*fake.Frameset{validFrameset(1, 1, 1, 1)}, "x_\r\r\n y \r")

	test.That(t, h.loop.Step(ctx), test.ShouldBeNil)
	test.That(t, h.loop.State(), test.ShouldEqual, Capturing)
	test.That(t, h.loop.Prefix(), test.ShouldEqual, "x_\r")

	h.loop.state = WaitingForTrigger
	test.That(t, h.loop.Step(ctx), test.ShouldBeNil)
	test.That(t, h.loop.Prefix(), test.ShouldEqual, " y \r")
}

func TestLoopTriggerClosed(t *testing.T) {
	h := newLoopHarness(t, []*fake.Frameset{validFrameset(1, 1, 1, 1)}, "")
	err := h.loop.Step(context.Background())
	test.That(t, errors.Is(err, ErrTriggerClosed), test.ShouldBeTrue)
	test.That(t, h.pipe.Waits(), test.ShouldEqual, 0)
}

func TestLoopFatalErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("completion write", func(t *testing.T) {
		prefix := filepath.Join(t.TempDir(), "w_")
		h := newLoopHarness(t, []*fake.Frameset{validFrameset(1, 1, 1, 1)}, prefix+"\n")
		h.loop.completion.Reset(failingWriter{})
		err := h.loop.Run(ctx)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "cannot flush completion")
	})

	t.Run("encoder", func(t *testing.T) {
		prefix := filepath.Join(t.TempDir(), "missing", "e_")
		h := newLoopHarness(t, []*fake.Frameset{validFrameset(1, 1, 1, 1)}, prefix+"\n")
		err := h.loop.Run(ctx)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, errors.Is(err, ErrTriggerClosed), test.ShouldBeFalse)
		test.That(t, h.completion.Len(), test.ShouldEqual, 0)
	})

	t.Run("pipeline", func(t *testing.T) {
		h := newLoopHarness(t, nil, "p_\n")
		err := h.loop.Run(ctx)
		test.That(t, errors.Is(err, fake.ErrScriptExhausted), test.ShouldBeTrue)
		test.That(t, h.completion.Len(), test.ShouldEqual, 0)
	})

	t.Run("depth resolution", func(t *testing.T) {
		prefix := filepath.Join(t.TempDir(), "r_")
		bad := &fake.Frameset{
			Color:      fake.SolidColorFrame(DefaultWidth, DefaultHeight, 1, 1, 1),
			DepthFrame: fake.ConstantDepthFrame(320, 240, 1),
		}
		h := newLoopHarness(t, []*fake.Frameset{bad}, prefix+"\n")
		err := h.loop.Run(ctx)
		test.That(t, errors.Is(err, ErrUnexpectedResolution), test.ShouldBeTrue)
		colorFn, depthFn := OutputPaths(prefix)
		test.That(t, fileExists(colorFn), test.ShouldBeFalse)
		test.That(t, fileExists(depthFn), test.ShouldBeFalse)
	})
}

func TestStateString(t *testing.T) {
	test.That(t, WaitingForTrigger.String(), test.ShouldEqual, "waiting_for_trigger")
	test.That(t, Capturing.String(), test.ShouldEqual, "capturing")
	test.That(t, State(7).String(), test.ShouldEqual, "unknown")
}
