package hub

import "errors"

var (
	// ErrDestroyed rejects calls on a destroyed hub and the requests that
	// were still outstanding when it was destroyed.
	ErrDestroyed = errors.New("hub destroyed")
)
