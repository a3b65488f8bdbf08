// Package window adapts a window-like peer: an external endpoint addressed by
// origin, sharing a host message bus where other senders may also post.
//
// Every inbound event is checked twice before it reaches the hub. Events whose
// source is not the configured peer are ignored, and events whose origin does
// not pass the target origin filter are ignored. Both drops are silent so a
// probing sender learns nothing about the filter.
package window

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/tailored-agentic-units/msghub/transport"
)

// MessageEvent is what a window's listeners receive from the host.
type MessageEvent struct {
	Data      []byte
	Origin    string
	Source    Window
	Transfers []any
}

// ErrIncomparablePeer is returned by New for a peer whose dynamic type cannot
// be compared with ==, which the source check needs.
var ErrIncomparablePeer = errors.New("peer window is not comparable")

// Window is the host handle of a window-like context. Implementations must be
// comparable; a pointer type is the usual choice.
type Window interface {
	Origin() string
	// PostMessage queues data for delivery to this window's listeners, as sent
	// by source. The host drops it when this window's origin does not match
	// targetOrigin.
	PostMessage(source Window, data []byte, targetOrigin string, transfers []any) error
	// AddListener subscribes fn to events delivered to this window.
	AddListener(fn func(MessageEvent)) (remove func())
}

// Adapter is the window-like transport adapter.
type Adapter struct {
	self         Window
	peer         Window
	targetOrigin string

	listener transport.Listener
	mu       sync.Mutex
	remove   func()
	closed   bool
}

// New links self to peer. An empty targetOrigin accepts any origin.
func New(self, peer Window, targetOrigin string) (*Adapter, error) {
	if self == nil || peer == nil {
		return nil, transport.ErrMissingPeer
	}
	if !reflect.TypeOf(peer).Comparable() {
		return nil, fmt.Errorf("%w: %T", ErrIncomparablePeer, peer)
	}
	if targetOrigin == "" {
		targetOrigin = transport.AnyOrigin
	}
	return &Adapter{self: self, peer: peer, targetOrigin: targetOrigin}, nil
}

func (a *Adapter) Kind() transport.Kind { return transport.KindWindow }

func (a *Adapter) TargetOrigin() string { return a.targetOrigin }

func (a *Adapter) Send(ctx context.Context, payload []byte, transfers []any) error {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.peer.PostMessage(a.self, payload, a.targetOrigin, transfers)
}

func (a *Adapter) OnReceive(handler transport.Handler) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return transport.ErrClosed
	}
	if err := a.listener.Set(handler); err != nil {
		return err
	}
	a.remove = a.self.AddListener(a.onMessage)
	return nil
}

func (a *Adapter) onMessage(ev MessageEvent) {
	if ev.Source != nil && !a.fromPeer(ev.Source) {
		return
	}
	if !transport.MatchOrigin(a.targetOrigin, ev.Origin) {
		return
	}
	a.listener.Deliver(transport.Inbound{
		Payload:    ev.Data,
		Origin:     ev.Origin,
		Source:     ev.Source,
		Transfers:  ev.Transfers,
		ReceivedAt: time.Now(),
	})
}

// fromPeer compares without panicking: a source of an incomparable type
// cannot be the peer, which New checked.
func (a *Adapter) fromPeer(source Window) bool {
	if !reflect.TypeOf(source).Comparable() {
		return false
	}
	return source == a.peer
}

// Close removes the host listener. The peer window is left untouched.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	if a.remove != nil {
		a.remove()
		a.remove = nil
	}
	a.listener.Detach()
	return nil
}
