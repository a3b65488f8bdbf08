package hub

import (
	"sync"

	"github.com/tailored-agentic-units/msghub/messaging"
)

// eventQueue holds inbound events in arrival order until the delivery
// goroutine takes them. It never blocks the receive path, so a listener that
// waits on a response cannot starve the read loop that would carry it.
type eventQueue struct {
	mu     sync.Mutex
	items  []*messaging.Message
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(msg *messaging.Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) take() []*messaging.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// deliverEvents publishes queued events one at a time until the hub ends.
func (h *Hub) deliverEvents() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.inbox.signal:
		}

		for _, msg := range h.inbox.take() {
			if h.ctx.Err() != nil {
				return
			}
			h.handleEvent(msg)
		}
	}
}
