package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/msghub/transport"
	"github.com/tailored-agentic-units/msghub/transport/window"
)

// Window is an in-process window-like context with an origin. Events posted
// to it are dispatched asynchronously, in order, to its listeners.
type Window struct {
	origin string
	inbox  *Mailbox[window.MessageEvent]

	mu        sync.RWMutex
	listeners []windowListener
	nextID    uint64
}

type windowListener struct {
	id uint64
	fn func(window.MessageEvent)
}

func NewWindow(origin string) *Window {
	w := &Window{
		origin: origin,
		inbox:  NewMailbox[window.MessageEvent](DefaultBufferSize),
	}
	go w.dispatchLoop()
	return w
}

func (w *Window) Origin() string { return w.origin }

// PostMessage queues data for this window as sent by source. Delivery is
// skipped, without error, when this window's origin does not pass
// targetOrigin.
func (w *Window) PostMessage(source window.Window, data []byte, targetOrigin string, transfers []any) error {
	if !transport.MatchOrigin(targetOrigin, w.origin) {
		return nil
	}

	var origin string
	if source != nil {
		origin = source.Origin()
	}
	return w.Dispatch(window.MessageEvent{
		Data:      slices.Clone(data),
		Origin:    origin,
		Source:    source,
		Transfers: transfers,
	})
}

// Dispatch queues an event with caller-chosen metadata, the way a host
// delivers events from senders it does not expose (nil Source).
func (w *Window) Dispatch(ev window.MessageEvent) error {
	return w.inbox.Send(context.Background(), ev)
}

func (w *Window) AddListener(fn func(window.MessageEvent)) func() {
	w.mu.Lock()
	w.nextID++
	id := w.nextID
	w.listeners = append(w.listeners, windowListener{id: id, fn: fn})
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.listeners = slices.DeleteFunc(w.listeners, func(l windowListener) bool {
			return l.id == id
		})
	}
}

// ListenerCount reports the number of attached listeners.
func (w *Window) ListenerCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.listeners)
}

// Close stops dispatching. Later posts fail with ErrClosed.
func (w *Window) Close() {
	w.inbox.Close()
}

func (w *Window) dispatchLoop() {
	for {
		ev, err := w.inbox.Receive(context.Background())
		if err != nil {
			return
		}

		w.mu.RLock()
		listeners := slices.Clone(w.listeners)
		w.mu.RUnlock()

		for _, l := range listeners {
			l.fn(ev)
		}
	}
}
