// Package websocket runs a window-like peer over a websocket connection.
//
// The peer's origin is fixed when the connection is established: the Origin
// header of an accepted request, or the origin of the URL that was dialed.
// Every inbound frame is stamped with it and checked against the adapter's
// target origin, so a connection that passed the handshake can still be
// filtered per frame. Only binary frames carry payloads; text frames are
// ignored.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tailored-agentic-units/msghub/transport"
)

const (
	DefaultWriteTimeout     = 10 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second

	readBufferSize  = 1024
	writeBufferSize = 1024
)

type options struct {
	writeTimeout     time.Duration
	handshakeTimeout time.Duration
	readLimit        int64
}

// Option configures an Adapter.
type Option func(*options)

func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.handshakeTimeout = d
		}
	}
}

// WithReadLimit caps the size of an inbound frame. A larger frame ends the
// connection.
func WithReadLimit(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.readLimit = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		writeTimeout:     DefaultWriteTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Adapter is a window-kind transport over one websocket connection.
type Adapter struct {
	conn         *websocket.Conn
	peerOrigin   string
	targetOrigin string
	ownsConn     bool
	options      options

	listener  transport.Listener
	writeMu   sync.Mutex
	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Accept upgrades an HTTP request. The handshake is refused unless the
// request's Origin header matches targetOrigin. The adapter owns the
// connection.
func Accept(w http.ResponseWriter, r *http.Request, targetOrigin string, opts ...Option) (*Adapter, error) {
	targetOrigin = normalizeTarget(targetOrigin)
	o := buildOptions(opts)

	upgrader := websocket.Upgrader{
		ReadBufferSize:   readBufferSize,
		WriteBufferSize:  writeBufferSize,
		HandshakeTimeout: o.handshakeTimeout,
		CheckOrigin: func(r *http.Request) bool {
			return transport.MatchOrigin(targetOrigin, r.Header.Get("Origin"))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}

	return newAdapter(conn, r.Header.Get("Origin"), targetOrigin, true, o), nil
}

// Dial connects to rawURL, reporting origin in the handshake. Frames are
// accepted only while the dialed URL's origin matches targetOrigin. The
// adapter owns the connection.
func Dial(ctx context.Context, rawURL, origin, targetOrigin string, opts ...Option) (*Adapter, error) {
	targetOrigin = normalizeTarget(targetOrigin)
	o := buildOptions(opts)

	peerOrigin, err := OriginOf(rawURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	dialer := websocket.Dialer{
		ReadBufferSize:   readBufferSize,
		WriteBufferSize:  writeBufferSize,
		HandshakeTimeout: o.handshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", rawURL, err)
	}

	return newAdapter(conn, peerOrigin, targetOrigin, true, o), nil
}

// Wrap runs an adapter over a connection the caller established. The
// adapter only references conn: Close detaches the handler but leaves the
// connection open, and the read loop ends when the caller closes it.
func Wrap(conn *websocket.Conn, peerOrigin, targetOrigin string, opts ...Option) (*Adapter, error) {
	if conn == nil {
		return nil, transport.ErrMissingPeer
	}
	return newAdapter(conn, peerOrigin, normalizeTarget(targetOrigin), false, buildOptions(opts)), nil
}

func newAdapter(conn *websocket.Conn, peerOrigin, targetOrigin string, owns bool, o options) *Adapter {
	if o.readLimit > 0 {
		conn.SetReadLimit(o.readLimit)
	}
	return &Adapter{
		conn:         conn,
		peerOrigin:   peerOrigin,
		targetOrigin: targetOrigin,
		ownsConn:     owns,
		options:      o,
		done:         make(chan struct{}),
	}
}

func (a *Adapter) Kind() transport.Kind { return transport.KindWindow }

// PeerOrigin is the origin inbound frames are stamped with.
func (a *Adapter) PeerOrigin() string { return a.peerOrigin }

func (a *Adapter) TargetOrigin() string { return a.targetOrigin }

// Send writes payload as one binary frame. Transfer hints are ignored.
func (a *Adapter) Send(ctx context.Context, payload []byte, _ []any) error {
	if a.closed.Load() {
		return transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	deadline := time.Now().Add(a.options.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := a.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("websocket write deadline: %w", err)
	}
	if err := a.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// OnReceive registers handler and starts the read loop.
func (a *Adapter) OnReceive(handler transport.Handler) error {
	if a.closed.Load() {
		return transport.ErrClosed
	}
	if err := a.listener.Set(handler); err != nil {
		return err
	}
	if a.started.CompareAndSwap(false, true) {
		go a.readLoop()
	}
	return nil
}

func (a *Adapter) readLoop() {
	defer close(a.done)

	for {
		messageType, data, err := a.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		if !transport.MatchOrigin(a.targetOrigin, a.peerOrigin) {
			continue
		}

		a.listener.Deliver(transport.Inbound{
			Payload:    data,
			Origin:     a.peerOrigin,
			Source:     a.conn,
			ReceivedAt: time.Now(),
		})
	}
}

// Done is closed when the read loop ends. It never closes if OnReceive was
// not called.
func (a *Adapter) Done() <-chan struct{} { return a.done }

// Close detaches the handler. An owned connection is closed with a normal
// close frame; a wrapped one is left to its owner.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		a.listener.Detach()

		if !a.ownsConn {
			return
		}

		a.writeMu.Lock()
		deadline := time.Now().Add(a.options.writeTimeout)
		_ = a.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		a.writeMu.Unlock()

		err = a.conn.Close()
	})
	return err
}

// OriginOf returns the web origin of a URL, mapping ws to http and wss to
// https.
func OriginOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	scheme := u.Scheme
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	}
	return scheme + "://" + u.Host, nil
}

func normalizeTarget(targetOrigin string) string {
	if targetOrigin == "" {
		return transport.AnyOrigin
	}
	return targetOrigin
}
