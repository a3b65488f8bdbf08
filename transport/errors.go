package transport

import "errors"

var (
	// ErrMissingPeer is a configuration error: the adapter kind requires a
	// peer handle and none was supplied.
	ErrMissingPeer      = errors.New("peer handle is required")
	ErrUnsupportedKind  = errors.New("unsupported peer kind")
	ErrClosed           = errors.New("transport closed")
	ErrAlreadyListening = errors.New("inbound handler already registered")
	ErrNilHandler       = errors.New("inbound handler is nil")
)
