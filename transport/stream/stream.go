// Package stream carries hub payloads over a pair of byte streams: the stdio
// of a child process the hub owns, or the stdio a child process was given by
// its parent.
//
// Frames are an unsigned varint length followed by the payload. Transfer
// hints cannot cross a process boundary and are ignored.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tailored-agentic-units/msghub/observability"
	"github.com/tailored-agentic-units/msghub/transport"
)

const (
	EventReadFailed observability.EventType = "stream.read.failed"
	EventChildExit  observability.EventType = "stream.child.exit"
)

const reapTimeout = 2 * time.Second

type Options struct {
	MaxFrameBytes uint64
	Observer      observability.Observer
}

func (o Options) withDefaults() Options {
	if o.MaxFrameBytes == 0 {
		o.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if o.Observer == nil {
		o.Observer = observability.NoOpObserver{}
	}
	return o
}

// Conn is a stream transport adapter.
type Conn struct {
	kind    transport.Kind
	options Options

	reader  *bufio.Reader
	writer  io.Writer
	closers []io.Closer
	cmd     *exec.Cmd

	listener  transport.Listener
	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	started   atomic.Bool
	done      chan struct{}
	readErr   atomic.Pointer[error]
}

// Spawn starts cmd as an owned child process and links to its stdin and
// stdout. The child's stderr is left as configured on cmd.
func Spawn(cmd *exec.Cmd, opts Options) (*Conn, error) {
	if cmd == nil {
		return nil, transport.ErrMissingPeer
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("child stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("child stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start child: %w", err)
	}

	c := newConn(transport.KindOwnedChild, stdout, stdin, opts)
	c.cmd = cmd
	c.closers = []io.Closer{stdin}
	return c, nil
}

// Parent links a child process to its parent through the handles the parent
// gave it, normally os.Stdin and os.Stdout.
func Parent(r io.ReadCloser, w io.WriteCloser, opts Options) (*Conn, error) {
	if r == nil || w == nil {
		return nil, transport.ErrMissingPeer
	}
	c := newConn(transport.KindSelf, r, w, opts)
	c.closers = []io.Closer{r, w}
	return c, nil
}

func newConn(kind transport.Kind, r io.Reader, w io.Writer, opts Options) *Conn {
	return &Conn{
		kind:    kind,
		options: opts.withDefaults(),
		reader:  bufio.NewReader(r),
		writer:  w,
		done:    make(chan struct{}),
	}
}

func (c *Conn) Kind() transport.Kind { return c.kind }

func (c *Conn) Send(ctx context.Context, payload []byte, transfers []any) error {
	if c.closed.Load() {
		return transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if uint64(len(payload)) > c.options.MaxFrameBytes {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), c.options.MaxFrameBytes)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.writer, payload)
}

func (c *Conn) OnReceive(handler transport.Handler) error {
	if c.closed.Load() {
		return transport.ErrClosed
	}
	if err := c.listener.Set(handler); err != nil {
		return err
	}
	c.started.Store(true)
	go c.readLoop()
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		payload, err := ReadFrame(c.reader, c.options.MaxFrameBytes)
		if err != nil {
			c.readErr.Store(&err)
			if !c.closed.Load() && !errors.Is(err, io.EOF) {
				c.options.Observer.OnEvent(context.Background(), observability.NewEvent(
					EventReadFailed,
					observability.LevelWarning,
					"stream",
					map[string]any{"kind": string(c.kind), "error": err.Error()},
				))
			}
			return
		}
		c.listener.Deliver(transport.Inbound{Payload: payload, ReceivedAt: time.Now()})
	}
}

// Done is closed when the read loop ends: the peer closed its side, a frame
// was rejected, or the adapter was closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the read loop ended, once Done is closed.
func (c *Conn) Err() error {
	if p := c.readErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Close detaches the handler and closes the link. An owned child is killed
// and reaped; a self-as-child conn closes its stdio handles.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.listener.Detach()

		for _, closer := range c.closers {
			if cerr := closer.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}

		if c.cmd != nil {
			err = c.terminate()
		}
	})
	return err
}

func (c *Conn) terminate() error {
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	if c.started.Load() {
		select {
		case <-c.done:
		case <-time.After(reapTimeout):
		}
	}

	waitErr := c.cmd.Wait()
	c.options.Observer.OnEvent(context.Background(), observability.NewEvent(
		EventChildExit,
		observability.LevelVerbose,
		"stream",
		map[string]any{"pid": c.cmd.Process.Pid, "state": c.cmd.ProcessState.String()},
	))

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return nil
	}
	return waitErr
}
