package snapshot

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/depthsnap/components/camera"
	"go.viam.com/depthsnap/logging"
)

// State is the state of the trigger loop.
type State int

const (
	// WaitingForTrigger means no prefix is pending and the next step reads the trigger channel.
	WaitingForTrigger State = iota
	// Capturing means a prefix is pending and the next step pulls a frameset for it.
	Capturing
)

func (s State) String() string {
	switch s {
	case WaitingForTrigger:
		return "waiting_for_trigger"
	case Capturing:
		return "capturing"
	default:
		return "unknown"
	}
}

// completionLine acknowledges one written snapshot.
const completionLine = "OK\n"

// LoopDeps are the collaborators of a Loop.
type LoopDeps struct {
	Pipeline camera.Pipeline
	Aligner  camera.Aligner
	// Target is the stream depth is aligned to and the stream the color frame is taken from.
	Target camera.StreamKind
	// Trigger delivers one output prefix per line.
	Trigger io.Reader
	// Completion receives exactly one OK line per written snapshot.
	Completion io.Writer
	Encoder    Encoder
	Clock      clock.Clock
}

// Loop is the snapshot trigger loop. It is not safe for concurrent use.
type Loop struct {
	pipe       camera.Pipeline
	aligner    camera.Aligner
	target     camera.StreamKind
	trigger    *bufio.Reader
	completion *bufio.Writer
	encoder    Encoder
	clock      clock.Clock
	buffers    *Buffers
	logger     logging.Logger

	state    State
	prefix   string
	retries  int
	captured time.Time
}

// NewLoop returns a loop in the WaitingForTrigger state. A nil Encoder writes files per cfg and a
// nil Clock uses the wall clock.
func NewLoop(cfg *Config, deps LoopDeps, logger logging.Logger) *Loop {
	encoder := deps.Encoder
	if encoder == nil {
		encoder = NewFileEncoder(cfg)
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		pipe:       deps.Pipeline,
		aligner:    deps.Aligner,
		target:     deps.Target,
		trigger:    bufio.NewReader(deps.Trigger),
		completion: bufio.NewWriter(deps.Completion),
		encoder:    encoder,
		clock:      clk,
		buffers:    NewBuffers(cfg),
		logger:     logger,
	}
}

// State returns the current state.
func (l *Loop) State() State {
	return l.state
}

// Prefix returns the pending output prefix, empty while waiting for a trigger.
func (l *Loop) Prefix() string {
	return l.prefix
}

// Run steps the loop until a fatal error. It never returns nil.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := l.Step(ctx); err != nil {
			return err
		}
	}
}

// Step performs exactly one transition. Any returned error is fatal.
func (l *Loop) Step(ctx context.Context) error {
	switch l.state {
	case WaitingForTrigger:
		return l.waitForTrigger()
	case Capturing:
		return l.capture(ctx)
	default:
		return errors.Errorf("invalid loop state %d", l.state)
	}
}

// waitForTrigger reads one prefix line. Exactly one trailing "\n" is removed, along with a single
// "\r" directly before it so CRLF clients work. Anything else in the line is kept as is.
func (l *Loop) waitForTrigger() error {
	line, err := l.trigger.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return errors.Wrap(ErrTriggerClosed, err.Error())
	}
	prefix := strings.TrimSuffix(line, "\n")
	if len(prefix) < len(line) {
		prefix = strings.TrimSuffix(prefix, "\r")
	}
	if prefix == "" {
		l.logger.Debug("empty trigger line, waiting for another")
		return nil
	}
	l.prefix = prefix
	l.retries = 0
	l.captured = l.clock.Now()
	l.state = Capturing
	l.logger.Debugw("triggered", "prefix", prefix)
	return nil
}

func (l *Loop) capture(ctx context.Context) error {
	frames, err := l.pipe.WaitForFrames(ctx)
	if err != nil {
		return errors.Wrap(err, "cannot wait for frames")
	}
	aligned, err := l.aligner.Process(ctx, frames)
	if err != nil {
		return errors.Wrap(err, "cannot align frames")
	}
	color := aligned.First(l.target)
	depth := aligned.Depth()
	if color == nil || depth == nil {
		l.retries++
		l.logger.Warnw("either color or depth stream is not available; will retry",
			"prefix", l.prefix, "has_color", color != nil, "has_depth", depth != nil, "retries", l.retries)
		return nil
	}

	if err := l.buffers.CopyFrom(color, depth); err != nil {
		return err
	}
	if err := l.encoder.Encode(l.prefix, l.buffers); err != nil {
		return err
	}
	if _, err := l.completion.WriteString(completionLine); err != nil {
		return errors.Wrap(err, "cannot write completion")
	}
	if err := l.completion.Flush(); err != nil {
		return errors.Wrap(err, "cannot flush completion")
	}

	l.logger.Infow("snapshot written", "prefix", l.prefix, "retries", l.retries,
		"duration", l.clock.Since(l.captured))
	l.prefix = ""
	l.state = WaitingForTrigger
	return nil
}
