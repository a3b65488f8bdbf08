package hub

import (
	"errors"

	"github.com/tailored-agentic-units/msghub/messaging"
	"github.com/tailored-agentic-units/msghub/observability"
	"github.com/tailored-agentic-units/msghub/router"
	"github.com/tailored-agentic-units/msghub/transport"
)

// receive is the single ingestion point for inbound payloads. Every branch
// ends in a resolution, a dispatch, a delivery or an observed no-op.
func (h *Hub) receive(in transport.Inbound) {
	if h.destroyed.Load() {
		return
	}

	msg, err := h.codec.Decode(in.Payload)
	if err != nil {
		h.metrics.RecordDropped(1)
		h.observe(h.ctx, EventPayloadDropped, observability.LevelVerbose, map[string]any{
			"origin": in.Origin,
			"error":  err.Error(),
		})
		return
	}

	switch msg.Kind {
	case messaging.KindResponse:
		h.handleResponse(msg)
	case messaging.KindRequest:
		if msg.IsEvent() {
			h.inbox.push(msg)
			return
		}
		go h.handleRequest(in, msg)
	}
}

func (h *Hub) handleResponse(msg *messaging.Message) {
	resolved := h.pending.Resolve(msg.ID, msg.Resolved, msg.Data)
	if msg.Channel == ReadyChannel {
		return
	}
	if !resolved {
		h.metrics.RecordUnmatched(1)
		h.observe(h.ctx, EventResponseUnmatched, observability.LevelWarning, map[string]any{
			"id":      msg.ID,
			"channel": msg.Channel,
		})
		return
	}
	h.metrics.RecordResponseReceived(1)
}

func (h *Hub) handleEvent(msg *messaging.Message) {
	delivered := h.bus.Publish(h.ctx, msg.Channel, msg.Data)
	if delivered == 0 {
		h.observe(h.ctx, EventUnroutable, observability.LevelWarning, map[string]any{
			"channel": msg.Channel,
		})
		return
	}
	h.metrics.RecordEventDelivered(delivered)
}

// handleRequest runs the chain for one request and sends exactly one
// response. Concurrent requests each get their own goroutine and Context.
func (h *Hub) handleRequest(in transport.Inbound, msg *messaging.Message) {
	if msg.Channel == ReadyChannel {
		h.acknowledgeReady(msg)
		return
	}

	c := router.NewContext(msg.ID, msg.Channel, msg.Data, in)
	outcome := h.router.Dispatch(h.ctx, c)

	if h.destroyed.Load() {
		return
	}

	h.metrics.RecordRequestServed(1)
	if !outcome.Resolved {
		h.metrics.RecordHandlerFailure(1)
		h.observe(h.ctx, EventHandlerFailed, observability.LevelError, map[string]any{
			"id":      msg.ID,
			"channel": msg.Channel,
			"error":   outcome.Err.Error(),
		})
	}

	response := messaging.NewResponse(msg.ID, msg.Channel, outcome.Resolved, outcome.Data).Build()
	err := h.send(h.ctx, response, nil)
	if errors.Is(err, messaging.ErrEncode) {
		response = messaging.NewResponse(msg.ID, msg.Channel, false, err.Error()).Build()
		err = h.send(h.ctx, response, nil)
	}

	if err != nil && !h.destroyed.Load() {
		h.observe(h.ctx, EventResponseFailed, observability.LevelError, map[string]any{
			"id":      msg.ID,
			"channel": msg.Channel,
			"error":   err.Error(),
		})
	}
}
