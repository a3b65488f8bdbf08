// Package httppeer runs a window-like peer over HTTP using a single unary
// Connect procedure.
//
// Each side serves PostProcedure and posts its outbound payloads to the
// other side's. A payload travels as a BytesValue; the sender reports its
// own origin in the Origin header and the receiver drops anything whose
// origin does not match its target origin. Sends are serialized, and the
// receiving side delivers before it answers, so order is preserved per
// direction.
package httppeer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/tailored-agentic-units/msghub/transport"
)

const (
	ServiceName   = "msghub.v1.PeerService"
	PostProcedure = "/" + ServiceName + "/Post"
)

type options struct {
	httpClient connect.HTTPClient
	readLimit  int
}

// Option configures an Adapter.
type Option func(*options)

// WithHTTPClient sets the client used to reach the peer.
func WithHTTPClient(c connect.HTTPClient) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithReadLimit caps the size of an inbound message.
func WithReadLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readLimit = n
		}
	}
}

// Adapter is a window-kind transport to one HTTP peer.
type Adapter struct {
	client       *connect.Client[wrapperspb.BytesValue, emptypb.Empty]
	peerURL      string
	origin       string
	targetOrigin string
	readLimit    int

	listener transport.Listener
	sendMu   sync.Mutex
	closed   atomic.Bool
}

// New creates an adapter that posts to the peer served at peerURL, reporting
// origin as its own. Inbound posts are accepted only from targetOrigin.
func New(peerURL, origin, targetOrigin string, opts ...Option) (*Adapter, error) {
	if peerURL == "" {
		return nil, transport.ErrMissingPeer
	}
	if targetOrigin == "" {
		targetOrigin = transport.AnyOrigin
	}

	o := options{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(&o)
	}

	peerURL = strings.TrimSuffix(peerURL, "/")
	return &Adapter{
		client: connect.NewClient[wrapperspb.BytesValue, emptypb.Empty](
			o.httpClient,
			peerURL+PostProcedure,
		),
		peerURL:      peerURL,
		origin:       origin,
		targetOrigin: targetOrigin,
		readLimit:    o.readLimit,
	}, nil
}

func (a *Adapter) Kind() transport.Kind { return transport.KindWindow }

func (a *Adapter) PeerURL() string { return a.peerURL }

func (a *Adapter) TargetOrigin() string { return a.targetOrigin }

// Send posts payload to the peer and waits for it to be accepted. Transfer
// hints are ignored.
func (a *Adapter) Send(ctx context.Context, payload []byte, _ []any) error {
	if a.closed.Load() {
		return transport.ErrClosed
	}

	req := connect.NewRequest(wrapperspb.Bytes(payload))
	if a.origin != "" {
		req.Header().Set("Origin", a.origin)
	}

	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	if _, err := a.client.CallUnary(ctx, req); err != nil {
		return fmt.Errorf("post to %s: %w", a.peerURL, err)
	}
	return nil
}

func (a *Adapter) OnReceive(handler transport.Handler) error {
	if a.closed.Load() {
		return transport.ErrClosed
	}
	return a.listener.Set(handler)
}

// Handler returns the path and handler to mount on the server the peer
// posts to.
func (a *Adapter) Handler() (string, http.Handler) {
	var handlerOpts []connect.HandlerOption
	if a.readLimit > 0 {
		handlerOpts = append(handlerOpts, connect.WithReadMaxBytes(a.readLimit))
	}
	return PostProcedure, connect.NewUnaryHandler(PostProcedure, a.post, handlerOpts...)
}

func (a *Adapter) post(ctx context.Context, req *connect.Request[wrapperspb.BytesValue]) (*connect.Response[emptypb.Empty], error) {
	if a.closed.Load() {
		return nil, connect.NewError(connect.CodeUnavailable, transport.ErrClosed)
	}

	origin := req.Header().Get("Origin")
	if transport.MatchOrigin(a.targetOrigin, origin) {
		a.listener.Deliver(transport.Inbound{
			Payload:    req.Msg.GetValue(),
			Origin:     origin,
			Source:     req.Peer().Addr,
			ReceivedAt: time.Now(),
		})
	}

	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Close detaches the handler. The peer is not owned and is left running;
// later posts from it are refused.
func (a *Adapter) Close() error {
	a.closed.Store(true)
	a.listener.Detach()
	return nil
}
