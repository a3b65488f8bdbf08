package hub

import (
	"github.com/tailored-agentic-units/msghub/messaging"
	"github.com/tailored-agentic-units/msghub/observability"
	"github.com/tailored-agentic-units/msghub/router"
)

// Option configures a Hub beyond what HubConfig expresses.
type Option func(*Hub)

// WithObserver replaces the observer named by HubConfig.Observer.
func WithObserver(observer observability.Observer) Option {
	return func(h *Hub) {
		if observer != nil {
			h.observer = observer
		}
	}
}

// WithCodec replaces the codec named by HubConfig.Codec. Both sides of a link
// must use the same codec.
func WithCodec(codec messaging.Codec) Option {
	return func(h *Hub) {
		if codec != nil {
			h.codec = codec
		}
	}
}

// WithRunner replaces the middleware chain engine.
func WithRunner(run router.Runner) Option {
	return func(h *Hub) {
		if run != nil {
			h.runner = run
		}
	}
}
