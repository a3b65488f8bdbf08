package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/msghub/config"
	"github.com/tailored-agentic-units/msghub/correlation"
	"github.com/tailored-agentic-units/msghub/events"
	"github.com/tailored-agentic-units/msghub/messaging"
	"github.com/tailored-agentic-units/msghub/observability"
	"github.com/tailored-agentic-units/msghub/router"
	"github.com/tailored-agentic-units/msghub/transport"
)

// ReadyChannel is the reserved channel of the readiness handshake. Every hub
// answers it before any middleware runs, and routes registered on it are never
// reached.
const ReadyChannel = "msghub.ready"

const (
	EventResponseUnmatched observability.EventType = "hub.response.unmatched"
	EventUnroutable        observability.EventType = "hub.event.unroutable"
	EventHandlerFailed     observability.EventType = "hub.handler.failed"
	EventListenerPanic     observability.EventType = "hub.listener.panic"
	EventPayloadDropped    observability.EventType = "hub.payload.dropped"
	EventResponseFailed    observability.EventType = "hub.response.failed"
	EventReady             observability.EventType = "hub.ready"
	EventDestroyed         observability.EventType = "hub.destroyed"
)

// Hub joins one transport adapter to a router, an event bus and a
// pending-request table.
type Hub struct {
	id   string
	name string

	adapter transport.Adapter
	codec   messaging.Codec
	runner  router.Runner
	router  *router.Router
	bus     *events.Bus
	inbox   *eventQueue
	pending *correlation.Table

	requestTimeout     time.Duration
	readyRetryInterval time.Duration

	observer observability.Observer
	logger   *slog.Logger
	metrics  *Metrics

	ready       chan struct{}
	readyMu     sync.Mutex
	readyWaits  int
	handshaking bool

	destroyed   atomic.Bool
	destroyOnce sync.Once
	stopWatch   func() bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a hub over adapter and registers its inbound handler at once.
// cfg is merged over the defaults. The hub is destroyed when ctx ends.
func New(ctx context.Context, adapter transport.Adapter, cfg config.HubConfig, opts ...Option) (*Hub, error) {
	if adapter == nil {
		return nil, transport.ErrMissingPeer
	}

	hubConfig := config.DefaultHubConfig()
	hubConfig.Merge(&cfg)
	if err := hubConfig.Validate(); err != nil {
		return nil, err
	}

	hubCtx, cancel := context.WithCancel(ctx)

	h := &Hub{
		id:                 uuid.Must(uuid.NewV7()).String(),
		name:               hubConfig.Name,
		adapter:            adapter,
		bus:                events.NewBus(),
		inbox:              newEventQueue(),
		pending:            correlation.NewTable(),
		requestTimeout:     hubConfig.RequestTimeout,
		readyRetryInterval: hubConfig.ReadyRetryInterval,
		logger:             hubConfig.Logger,
		metrics:            NewMetrics(),
		ready:              make(chan struct{}),
		ctx:                hubCtx,
		cancel:             cancel,
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.codec == nil {
		codec, err := messaging.CodecByName(hubConfig.Codec)
		if err != nil {
			cancel()
			return nil, err
		}
		h.codec = codec
	}

	if h.observer == nil {
		observer, err := resolveObserver(hubConfig)
		if err != nil {
			cancel()
			return nil, err
		}
		h.observer = observer
	}

	h.router = router.New(router.WithRunner(h.runner))
	h.bus.OnPanic(h.listenerPanicked)
	go h.deliverEvents()

	if err := adapter.OnReceive(h.receive); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register inbound handler: %w", err)
	}

	h.stopWatch = context.AfterFunc(ctx, func() { h.Destroy() })

	h.logger.DebugContext(
		h.ctx,
		"hub created",
		slog.String("hub_name", h.name),
		slog.String("hub_id", h.id),
		slog.String("peer_kind", string(adapter.Kind())),
	)

	return h, nil
}

func resolveObserver(cfg config.HubConfig) (observability.Observer, error) {
	return observability.GetObserver(cfg.Observer, cfg.Logger)
}

// ID is a unique identifier for this hub instance.
func (h *Hub) ID() string { return h.id }

func (h *Hub) Name() string { return h.name }

// Kind reports the peer kind of the underlying adapter.
func (h *Hub) Kind() transport.Kind { return h.adapter.Kind() }

// Use appends global middleware, run before every routed chain.
func (h *Hub) Use(mw ...router.Middleware) *Hub {
	h.router.Use(mw...)
	return h
}

// Route appends mw to the chain of channel.
func (h *Hub) Route(channel string, mw ...router.Middleware) *Hub {
	h.router.Route(channel, mw...)
	h.logger.DebugContext(
		h.ctx,
		"route registered",
		slog.String("hub_name", h.name),
		slog.String("channel", channel),
		slog.Int("handlers", len(mw)),
	)
	return h
}

// RouteMap registers several channels at once.
func (h *Hub) RouteMap(routes map[string][]router.Middleware) *Hub {
	for channel, mw := range routes {
		h.Route(channel, mw...)
	}
	return h
}

// On subscribes l to events arriving on channel. Listeners run on a single
// hub goroutine in arrival order, apart from the receive path, so a listener
// may Request from the peer. A listener that blocks delays later events only.
func (h *Hub) On(channel string, l events.Listener) events.Handle {
	return h.bus.Subscribe(channel, l)
}

// Off removes the given subscriptions from channel, or all of them when no
// handle is given.
func (h *Hub) Off(channel string, handles ...events.Handle) int {
	return h.bus.Unsubscribe(channel, handles...)
}

// Emit sends a fire-and-forget event. No response is expected.
func (h *Hub) Emit(ctx context.Context, channel string, data any, transfers ...any) error {
	if h.destroyed.Load() {
		return ErrDestroyed
	}

	if err := h.send(ctx, messaging.NewEvent(channel, data).Build(), transfers); err != nil {
		return fmt.Errorf("failed to emit event: %w", err)
	}
	h.metrics.RecordEventEmitted(1)
	return nil
}

// Fetch sends a request and returns the future of its response without
// waiting. The future settles when the peer answers, or when the entry is
// cancelled or the hub destroyed.
func (h *Hub) Fetch(ctx context.Context, channel string, data any, transfers ...any) (*correlation.Future, error) {
	future, err := h.fetch(ctx, channel, data, transfers)
	if err != nil {
		return nil, err
	}
	h.metrics.RecordRequestSent(1)
	return future, nil
}

func (h *Hub) fetch(ctx context.Context, channel string, data any, transfers []any) (*correlation.Future, error) {
	if h.destroyed.Load() {
		return nil, ErrDestroyed
	}

	id := h.pending.Allocate()
	entry, future := correlation.NewPending(id, channel)
	if err := h.pending.Register(id, entry); err != nil {
		return nil, err
	}

	if h.destroyed.Load() {
		h.pending.Cancel(id, ErrDestroyed)
		return nil, ErrDestroyed
	}

	if err := h.send(ctx, messaging.NewRequest(id, channel, data).Build(), transfers); err != nil {
		h.pending.Cancel(id, err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return future, nil
}

// Request is Fetch followed by Await. When ctx ends, or the configured
// request timeout elapses, the pending entry is cancelled.
func (h *Hub) Request(ctx context.Context, channel string, data any, transfers ...any) (any, error) {
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	future, err := h.Fetch(ctx, channel, data, transfers...)
	if err != nil {
		return nil, err
	}

	value, err := future.Await(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		h.pending.Cancel(future.ID(), err)
		return nil, fmt.Errorf("request cancelled: %w", err)
	}
	return value, err
}

func (h *Hub) Metrics() MetricsSnapshot {
	return h.metrics.Snapshot(h.pending.Len())
}

// Destroy detaches and tears down the adapter, then drops every route,
// subscription and pending request. Outstanding futures reject with
// ErrDestroyed. Later inbound payloads are ignored. Destroy is idempotent.
func (h *Hub) Destroy() error {
	var err error
	h.destroyOnce.Do(func() {
		h.destroyed.Store(true)
		if h.stopWatch != nil {
			h.stopWatch()
		}
		h.cancel()

		err = h.adapter.Close()

		h.router.Clear()
		h.bus.Clear()
		rejected := h.pending.Clear(ErrDestroyed)

		h.observe(context.Background(), EventDestroyed, observability.LevelInfo, map[string]any{
			"rejected": rejected,
		})
		h.logger.Debug(
			"hub destroyed",
			slog.String("hub_name", h.name),
			slog.Int("rejected", rejected),
		)
	})
	return err
}

func (h *Hub) send(ctx context.Context, msg *messaging.Message, transfers []any) error {
	payload, err := h.codec.Encode(msg)
	if err != nil {
		return err
	}
	return h.adapter.Send(ctx, payload, transfers)
}

func (h *Hub) observe(ctx context.Context, eventType observability.EventType, level observability.Level, data map[string]any) {
	h.observer.OnEvent(ctx, observability.NewEvent(eventType, level, h.name, data))
}

func (h *Hub) listenerPanicked(channel string, err error) {
	h.observe(h.ctx, EventListenerPanic, observability.LevelError, map[string]any{
		"channel": channel,
		"error":   err.Error(),
	})
}
