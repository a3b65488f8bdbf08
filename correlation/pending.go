package correlation

import (
	"context"
	"sync"
)

// Pending is the completion pair of one outstanding request. The first of
// fulfill or reject wins; later calls are ignored.
type Pending struct {
	id      int64
	channel string

	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// NewPending creates the entry for a request on channel and the Future its
// caller waits on.
func NewPending(id int64, channel string) (*Pending, *Future) {
	p := &Pending{id: id, channel: channel, done: make(chan struct{})}
	return p, &Future{pending: p}
}

func (p *Pending) fulfill(value any) {
	p.once.Do(func() {
		p.value = value
		close(p.done)
	})
}

func (p *Pending) reject(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Future is the caller's view of a pending request.
type Future struct {
	pending *Pending
}

func (f *Future) ID() int64 { return f.pending.id }

func (f *Future) Channel() string { return f.pending.channel }

// Done is closed once the request is settled.
func (f *Future) Done() <-chan struct{} { return f.pending.done }

// Await blocks until the request settles or ctx ends. A ctx ending does not
// settle the request; the entry stays pending until the caller cancels it in
// the owning table.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.pending.done:
		return f.pending.value, f.pending.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the settled outcome without blocking. ok is false while the
// request is still pending.
func (f *Future) Result() (value any, err error, ok bool) {
	select {
	case <-f.pending.done:
		return f.pending.value, f.pending.err, true
	default:
		return nil, nil, false
	}
}
