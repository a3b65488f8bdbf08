// Package hub turns a bare, order-preserving message channel into a
// request/response and event protocol between two peers.
//
// A hub owns one transport adapter and composes three pieces around it: a
// pending-request table that matches responses to the calls that caused
// them, a router that runs middleware chains for inbound requests, and an
// event bus for fire-and-forget deliveries.
//
// # Core Capabilities
//
//   - Request-Response: Fetch returns a future matched to its call by id
//   - Routing: inbound requests run through global then per-channel middleware
//   - Events: Emit sends with id 0; inbound events reach On listeners
//   - Readiness: Ready performs a handshake before first use
//
// # Creating a Hub
//
// The caller supplies the adapter; the hub never looks up an ambient peer:
//
//	adapter, err := stream.Spawn(exec.Command("msghub", "worker"), stream.Options{})
//	if err != nil {
//	    return err
//	}
//
//	h, err := hub.New(ctx, adapter, config.DefaultHubConfig())
//	if err != nil {
//	    return err
//	}
//	defer h.Destroy()
//
//	if err := h.Ready(ctx); err != nil {
//	    return err
//	}
//
// # Routing
//
// Handlers write their result to the context's Response slot. Returning an
// error produces a failure response; router.Fail chooses its payload:
//
//	h.Route("sum", func(ctx context.Context, c *router.Context, next router.Next) error {
//	    args, ok := c.Request.(map[string]any)
//	    if !ok {
//	        return router.Fail("expected an object")
//	    }
//	    c.Response = args["a"].(float64) + args["b"].(float64)
//	    return nil
//	})
//
// A request for a channel with no route is answered at once with a failure
// naming the channel, so the caller's future never hangs on it.
//
// # Calling the Peer
//
//	result, err := h.Request(ctx, "sum", map[string]any{"a": 2, "b": 3})
//	// result == 5.0 under the JSON codec
//
//	var remote *correlation.RemoteError
//	if errors.As(err, &remote) {
//	    // the peer answered with a failure; remote.Data is its payload
//	}
//
// Responses may complete in any order; each future only ever sees the
// response carrying its own id. Request cancels its pending entry when ctx
// ends or HubConfig.RequestTimeout elapses. Fetch leaves that to the caller.
//
// # Events
//
//	handle := h.On("progress", func(ctx context.Context, data any) bool {
//	    fmt.Println(data)
//	    return true // false skips the remaining listeners for this delivery
//	})
//	h.Off("progress", handle)
//	h.Emit(ctx, "progress", 0.5)
//
// # Diagnostics
//
// Nothing in the receive path returns an error to anyone. Conditions that
// would otherwise be invisible are reported to the configured observer:
//
//   - EventResponseUnmatched: a response for an id with no pending entry
//   - EventUnroutable: an event for a channel with no listeners
//   - EventHandlerFailed: a chain ended in failure; the peer got resolved=false
//   - EventPayloadDropped: a payload that is not a hub message
//
// Origin rejections happen inside the window adapters and are silent.
//
// # Lifecycle
//
// Destroy closes the adapter (terminating an owned child, closing the
// current context's side, or detaching from a window), clears routes and
// subscriptions, and rejects outstanding futures with ErrDestroyed. The hub
// is also destroyed when the context passed to New ends.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Inbound requests are dispatched
// concurrently, so handlers that share state must synchronize it.
package hub
