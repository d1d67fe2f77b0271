package rexec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/depthsnap/logging"
)

// DefaultFramesPerSnapshot is how many frames a snapshot pack holds unless told otherwise.
const DefaultFramesPerSnapshot = 5

// DefaultStopTimeout bounds how long Close waits for the worker to exit once its stdin is closed.
const DefaultStopTimeout = 5 * time.Second

// ErrWorkerDead is returned when the worker's stdout reached EOF while a reply was pending.
var ErrWorkerDead = errors.New("worker is probably dead, as reading from its stdout reached EOF")

// A Snapshotter captures packs of numbered snapshots under a common prefix.
type Snapshotter interface {
	TakeSnapshot(ctx context.Context, prefix string, numFrames int) error
	Close() error
}

// DefaultPrefix returns a fresh, collision free prefix inside dir.
func DefaultPrefix(dir string) string {
	return filepath.Join(dir, uuid.NewString()+"-")
}

// FramePrefix is the prefix the worker receives for frame i of a pack.
func FramePrefix(prefix string, i int) string {
	return fmt.Sprintf("%s%d-", prefix, i)
}

type workerSnapshotter struct {
	mu          sync.Mutex
	config      ProcessConfig
	clock       clock.Clock
	stopTimeout time.Duration
	logger      logging.Logger

	cmd         *exec.Cmd
	stdin       io.WriteCloser
	replies     chan string
	readErr     error
	readersDone chan struct{}
}

// NewSnapshotter returns a Snapshotter driving the worker described by config. The worker is
// started on the first snapshot and reused afterwards.
func NewSnapshotter(config ProcessConfig, logger logging.Logger) (Snapshotter, error) {
	return newSnapshotter(config, clock.New(), logger)
}

func newSnapshotter(config ProcessConfig, clk clock.Clock, logger logging.Logger) (*workerSnapshotter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &workerSnapshotter{
		config:      config,
		clock:       clk,
		stopTimeout: DefaultStopTimeout,
		logger:      logger,
	}, nil
}

func (ws *workerSnapshotter) startLocked() error {
	//nolint:gosec
	cmd := exec.Command(ws.config.Name, ws.config.Args...)
	cmd.Dir = ws.config.CWD
	if len(ws.config.Environment) > 0 {
		cmd.Env = os.Environ()
		for k, v := range ws.config.Environment {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "failed to create stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to create stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "failed to create stderr pipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start %s", ws.config.Name)
	}
	ws.logger.Debugw("worker started", "name", ws.config.Name, "pid", cmd.Process.Pid)

	ws.cmd = cmd
	ws.stdin = stdin
	ws.replies = make(chan string, 1)
	ws.readErr = nil
	ws.readersDone = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ws.forwardStderr(stderr)
	}()
	replies := ws.replies
	go func() {
		defer wg.Done()
		defer close(replies)
		s := bufio.NewScanner(stdout)
		for s.Scan() {
			replies <- strings.TrimSpace(s.Text())
		}
		ws.readErr = s.Err()
	}()
	readersDone := ws.readersDone
	go func() {
		wg.Wait()
		close(readersDone)
	}()
	return nil
}

func (ws *workerSnapshotter) forwardStderr(stderr io.Reader) {
	s := bufio.NewScanner(stderr)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if ws.config.Log {
			ws.logger.Infof("%s: %s", ws.config.Name, line)
		} else {
			ws.logger.Debugf("%s: %s", ws.config.Name, line)
		}
	}
	if err := s.Err(); err != nil {
		ws.logger.Warnw("failed to read worker stderr", "error", err)
	}
}

// TakeSnapshot asks the worker for numFrames snapshots named <prefix><i>- and waits for each
// acknowledgement. A failed or cancelled exchange stops the worker; the next call starts a new one.
func (ws *workerSnapshotter) TakeSnapshot(ctx context.Context, prefix string, numFrames int) (err error) {
	if numFrames <= 0 {
		return errors.Errorf("number of frames must be positive, got %d", numFrames)
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.cmd == nil {
		if err := ws.startLocked(); err != nil {
			return err
		}
	}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, ws.stopLocked())
		}
	}()

	for i := 0; i < numFrames; i++ {
		framePrefix := FramePrefix(prefix, i)
		if _, err := fmt.Fprintln(ws.stdin, framePrefix); err != nil {
			return errors.Wrap(err, "failed to write to worker stdin")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reply, ok := <-ws.replies:
			if !ok {
				<-ws.readersDone
				if ws.readErr != nil {
					return errors.Wrap(ws.readErr, "failed to read from worker stdout")
				}
				return ErrWorkerDead
			}
			if reply != "OK" {
				return errors.Errorf("unexpected reply from worker: %q", reply)
			}
		}
		ws.logger.Debugw("frame captured", "prefix", framePrefix)
	}
	return nil
}

// Close stops the worker, if running.
func (ws *workerSnapshotter) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.stopLocked()
}

// stopLocked closes the worker's stdin, which it treats as the end of work, and kills it if it is
// still around after the stop timeout. The worker always exits non-zero once its trigger channel
// closes, so exit statuses are not reported.
func (ws *workerSnapshotter) stopLocked() error {
	if ws.cmd == nil {
		return nil
	}
	err := ws.stdin.Close()
	go func(replies <-chan string) {
		//nolint:revive
		for range replies {
		}
	}(ws.replies)
	select {
	case <-ws.readersDone:
	case <-ws.clock.After(ws.stopTimeout):
		ws.logger.Warnw("worker did not exit, killing it", "pid", ws.cmd.Process.Pid)
		err = multierr.Combine(err, ws.cmd.Process.Kill())
		<-ws.readersDone
	}
	var exitErr *exec.ExitError
	if waitErr := ws.cmd.Wait(); waitErr != nil && !errors.As(waitErr, &exitErr) {
		err = multierr.Combine(err, waitErr)
	}
	ws.cmd = nil
	ws.stdin = nil
	ws.replies = nil
	return err
}
