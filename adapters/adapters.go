// Package adapters builds a transport adapter from a PeerConfig.
//
// The mapping is:
//
//   - owned-child: a child process started from Command and Args, linked
//     over its stdio (transport/stream)
//   - self-as-child: the stdio this process was handed by its parent, which
//     must be supplied with WithStdio (transport/stream)
//   - window with a ws:// or wss:// URL: a websocket peer (transport/websocket)
//   - window with an http:// or https:// URL: an HTTP peer
//     (transport/httppeer); the caller mounts its Handler so the peer can
//     post back
package adapters

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os/exec"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/msghub/config"
	"github.com/tailored-agentic-units/msghub/observability"
	"github.com/tailored-agentic-units/msghub/transport"
	"github.com/tailored-agentic-units/msghub/transport/httppeer"
	"github.com/tailored-agentic-units/msghub/transport/stream"
	"github.com/tailored-agentic-units/msghub/transport/websocket"
)

type options struct {
	stdin      io.ReadCloser
	stdout     io.WriteCloser
	stderr     io.Writer
	observer   observability.Observer
	httpClient connect.HTTPClient
}

// Option supplies what a PeerConfig cannot carry.
type Option func(*options)

// WithStdio provides the parent link of a self-as-child peer.
func WithStdio(r io.ReadCloser, w io.WriteCloser) Option {
	return func(o *options) {
		o.stdin, o.stdout = r, w
	}
}

// WithStderr sets where an owned child's standard error goes. By default it
// is discarded.
func WithStderr(w io.Writer) Option {
	return func(o *options) {
		o.stderr = w
	}
}

// WithObserver receives transport diagnostics from stream peers.
func WithObserver(observer observability.Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithHTTPClient sets the client of an HTTP peer.
func WithHTTPClient(c connect.HTTPClient) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// Open validates cfg and builds the adapter it describes. ctx bounds the
// connection handshake of network peers only.
func Open(ctx context.Context, cfg config.PeerConfig, opts ...Option) (transport.Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	streamOpts := stream.Options{
		MaxFrameBytes: uint64(cfg.MaxFrameBytes),
		Observer:      o.observer,
	}

	switch transport.Kind(cfg.Kind) {
	case transport.KindOwnedChild:
		cmd := exec.Command(cfg.Command, cfg.Args...)
		cmd.Stderr = o.stderr
		conn, err := stream.Spawn(cmd, streamOpts)
		if err != nil {
			return nil, err
		}
		return conn, nil

	case transport.KindSelf:
		if o.stdin == nil || o.stdout == nil {
			return nil, fmt.Errorf("%w: self-as-child peer needs stdio", transport.ErrMissingPeer)
		}
		conn, err := stream.Parent(o.stdin, o.stdout, streamOpts)
		if err != nil {
			return nil, err
		}
		return conn, nil

	case transport.KindWindow:
		return openWindow(ctx, cfg, o)
	}

	return nil, fmt.Errorf("%w: %q", transport.ErrUnsupportedKind, cfg.Kind)
}

func openWindow(ctx context.Context, cfg config.PeerConfig, o options) (transport.Adapter, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse peer url: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		var wsOpts []websocket.Option
		if cfg.MaxFrameBytes > 0 {
			wsOpts = append(wsOpts, websocket.WithReadLimit(int64(cfg.MaxFrameBytes)))
		}
		adapter, err := websocket.Dial(ctx, cfg.URL, cfg.Origin, cfg.TargetOrigin, wsOpts...)
		if err != nil {
			return nil, err
		}
		return adapter, nil

	case "http", "https":
		var httpOpts []httppeer.Option
		if o.httpClient != nil {
			httpOpts = append(httpOpts, httppeer.WithHTTPClient(o.httpClient))
		}
		if cfg.MaxFrameBytes > 0 {
			httpOpts = append(httpOpts, httppeer.WithReadLimit(cfg.MaxFrameBytes))
		}
		adapter, err := httppeer.New(cfg.URL, cfg.Origin, cfg.TargetOrigin, httpOpts...)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	}

	return nil, fmt.Errorf("%w: window peer url scheme %q", transport.ErrUnsupportedKind, u.Scheme)
}
