package hub

import (
	"context"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/msghub/messaging"
	"github.com/tailored-agentic-units/msghub/observability"
)

// Ready blocks until the peer has answered a handshake on ReadyChannel, ctx
// ends, or the hub is destroyed. Concurrent callers share one handshake, and
// once it succeeds Ready returns at once.
//
// A peer that has not started listening loses the handshake request, so it
// is repeated every ReadyRetryInterval, cancelling the previous attempt. The
// handshake stops when no caller is left waiting; the next Ready starts it
// again.
func (h *Hub) Ready(ctx context.Context) error {
	h.readyMu.Lock()
	h.readyWaits++
	if !h.handshaking && !h.IsReady() {
		h.handshaking = true
		go h.handshake()
	}
	h.readyMu.Unlock()

	defer func() {
		h.readyMu.Lock()
		h.readyWaits--
		h.readyMu.Unlock()
	}()

	select {
	case <-h.ready:
		return nil
	case <-h.ctx.Done():
		return ErrDestroyed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsReady reports whether the handshake has completed.
func (h *Hub) IsReady() bool {
	select {
	case <-h.ready:
		return true
	default:
		return false
	}
}

func (h *Hub) handshake() {
	nonce := uuid.NewString()

	for attempt := 1; ; attempt++ {
		if h.attemptHandshake(nonce) {
			h.observe(h.ctx, EventReady, observability.LevelInfo, map[string]any{
				"attempts": attempt,
			})
			close(h.ready)
			h.endHandshake()
			return
		}

		h.readyMu.Lock()
		if h.ctx.Err() != nil || h.readyWaits == 0 {
			h.handshaking = false
			h.readyMu.Unlock()
			return
		}
		h.readyMu.Unlock()
	}
}

func (h *Hub) endHandshake() {
	h.readyMu.Lock()
	h.handshaking = false
	h.readyMu.Unlock()
}

// attemptHandshake sends one handshake request and waits at most one retry
// interval for the matching answer.
func (h *Hub) attemptHandshake(nonce string) bool {
	ctx, cancel := context.WithTimeout(h.ctx, h.readyRetryInterval)
	defer cancel()

	future, err := h.fetch(ctx, ReadyChannel, nonce, nil)
	if err != nil {
		<-ctx.Done()
		return false
	}

	value, err := future.Await(ctx)
	if err == nil && value == nonce {
		return true
	}
	if err != nil {
		h.pending.Cancel(future.ID(), err)
	}

	<-ctx.Done()
	return false
}

// acknowledgeReady echoes a handshake nonce back to the peer.
func (h *Hub) acknowledgeReady(msg *messaging.Message) {
	if h.destroyed.Load() {
		return
	}
	response := messaging.NewResponse(msg.ID, ReadyChannel, true, msg.Data).Build()
	if err := h.send(h.ctx, response, nil); err != nil && !h.destroyed.Load() {
		h.observe(h.ctx, EventResponseFailed, observability.LevelError, map[string]any{
			"id":      msg.ID,
			"channel": msg.Channel,
			"error":   err.Error(),
		})
	}
}
