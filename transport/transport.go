// Package transport defines the adapter contract between a hub and the host
// message-passing primitive that links it to exactly one peer.
//
// An adapter delivers opaque payloads to its peer and reports payloads
// arriving from it. It hides the differences between peer kinds:
//
//   - KindOwnedChild: the adapter created the peer and terminates it on Close.
//   - KindSelf: the adapter runs inside the child and its parent is the peer.
//     Close shuts the current context's side of the link.
//   - KindWindow: the peer is an external, origin-addressed endpoint. Every
//     inbound payload is filtered by the configured target origin. Close only
//     detaches; the peer is referenced, not owned.
//
// Implementations live in the subpackages memory, window, stream, websocket
// and httppeer.
package transport

import (
	"context"
	"fmt"
	"time"
)

type Kind string

const (
	KindOwnedChild Kind = "owned-child"
	KindSelf       Kind = "self-as-child"
	KindWindow     Kind = "window"
)

// ParseKind validates a peer kind from configuration.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindOwnedChild, KindSelf, KindWindow:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
	}
}

// Inbound is one payload received from the peer together with the host
// metadata that accompanied it.
type Inbound struct {
	Payload []byte
	// Origin is the origin the host reported for the sender. Empty for
	// transports without origins.
	Origin string
	// Source identifies the sending endpoint when the host exposes it.
	Source     any
	Transfers  []any
	ReceivedAt time.Time
}

// Handler receives inbound payloads. Adapters call it sequentially, in
// arrival order.
type Handler func(Inbound)

// Adapter links a hub to one peer.
type Adapter interface {
	Kind() Kind
	// Send delivers payload to the peer without waiting for any reply.
	// Transfers are ownership-transfer hints; adapters that can only copy
	// ignore them.
	Send(ctx context.Context, payload []byte, transfers []any) error
	// OnReceive registers the single inbound handler.
	OnReceive(handler Handler) error
	// Close detaches the inbound handler and tears the link down according
	// to the adapter kind. It is idempotent.
	Close() error
}

// AnyOrigin is the target origin that accepts every sender.
const AnyOrigin = "*"

// MatchOrigin reports whether origin passes the target origin filter.
func MatchOrigin(target, origin string) bool {
	return target == AnyOrigin || origin == target
}
