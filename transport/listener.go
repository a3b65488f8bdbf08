package transport

import "sync"

// Listener holds the single inbound handler of an adapter. Adapters embed it
// to get the register-once and detach-on-close behaviour.
type Listener struct {
	mu      sync.RWMutex
	handler Handler
	set     bool
}

// Set registers handler. A second registration fails, even after Detach.
func (l *Listener) Set(handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.set {
		return ErrAlreadyListening
	}
	l.handler = handler
	l.set = true
	return nil
}

// Deliver hands in to the registered handler. It reports false when no
// handler is attached.
func (l *Listener) Deliver(in Inbound) bool {
	l.mu.RLock()
	handler := l.handler
	l.mu.RUnlock()

	if handler == nil {
		return false
	}
	handler(in)
	return true
}

// Detach removes the handler. Deliveries racing with Detach may still reach
// the old handler once.
func (l *Listener) Detach() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = nil
}
