package observability

import "context"

// MultiObserver forwards each event to several observers in order. Nested
// MultiObservers are flattened and NoOpObservers are skipped.
type MultiObserver struct {
	observers []Observer
}

func NewMultiObserver(observers ...Observer) *MultiObserver {
	m := &MultiObserver{}
	for _, obs := range observers {
		switch o := obs.(type) {
		case nil, NoOpObserver:
		case *MultiObserver:
			m.observers = append(m.observers, o.observers...)
		default:
			m.observers = append(m.observers, o)
		}
	}
	return m
}

// OnEvent delivers event to every observer. A panicking observer does not
// keep the event from the ones after it.
func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		deliver(ctx, obs, event)
	}
}

// Len reports the number of observers events are forwarded to.
func (m *MultiObserver) Len() int {
	return len(m.observers)
}

func deliver(ctx context.Context, obs Observer, event Event) {
	defer func() { _ = recover() }()
	obs.OnEvent(ctx, event)
}
