// Package events delivers fire-and-forget payloads to local listeners.
package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Listener receives one delivery. Returning false stops the remaining
// listeners of that delivery; it does not unsubscribe anything. Publish runs
// listeners on the caller's goroutine, so a listener that blocks holds up the
// publisher.
type Listener func(ctx context.Context, data any) bool

// Handle identifies one subscription.
type Handle uint64

// PanicFunc is told about a listener that panicked during Publish.
type PanicFunc func(channel string, err error)

type subscription struct {
	handle   Handle
	listener Listener
}

// Bus is a channel-keyed list of listeners. It is safe for concurrent use.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]subscription
	next    atomic.Uint64
	onPanic PanicFunc
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// OnPanic installs the recovery callback. Without one, panics are swallowed.
func (b *Bus) OnPanic(fn PanicFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPanic = fn
}

// Subscribe appends l to channel. The same listener may be subscribed more
// than once; each subscription gets its own Handle.
func (b *Bus) Subscribe(channel string, l Listener) Handle {
	h := Handle(b.next.Add(1))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[channel] = append(b.subs[channel], subscription{handle: h, listener: l})
	return h
}

// Unsubscribe removes the given handles from channel, or every listener of
// channel when no handle is given. It returns how many were removed.
func (b *Bus) Unsubscribe(channel string, handles ...Handle) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.subs[channel]
	if len(handles) == 0 {
		delete(b.subs, channel)
		return len(current)
	}

	drop := make(map[Handle]bool, len(handles))
	for _, h := range handles {
		drop[h] = true
	}

	kept := make([]subscription, 0, len(current))
	for _, s := range current {
		if !drop[s.handle] {
			kept = append(kept, s)
		}
	}

	if len(kept) == 0 {
		delete(b.subs, channel)
	} else {
		b.subs[channel] = kept
	}
	return len(current) - len(kept)
}

// Publish runs the listeners of channel in registration order over a
// snapshot taken at call time. It returns the number of listeners that ran;
// zero means the channel has no subscribers.
func (b *Bus) Publish(ctx context.Context, channel string, data any) int {
	b.mu.RLock()
	snapshot := append([]subscription(nil), b.subs[channel]...)
	onPanic := b.onPanic
	b.mu.RUnlock()

	ran := 0
	for _, s := range snapshot {
		ran++
		if !b.deliver(ctx, channel, s.listener, data, onPanic) {
			break
		}
	}
	return ran
}

func (b *Bus) deliver(ctx context.Context, channel string, l Listener, data any, onPanic PanicFunc) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			cont = true
			if onPanic != nil {
				onPanic(channel, fmt.Errorf("listener panicked: %v", r))
			}
		}
	}()
	return l(ctx, data)
}

// Has reports whether channel has at least one listener.
func (b *Bus) Has(channel string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel]) > 0
}

// Len reports the number of listeners on channel.
func (b *Bus) Len(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Clear removes every subscription on every channel.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string][]subscription)
}
