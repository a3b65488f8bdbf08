// Package correlation matches responses to the calls that caused them.
//
// A Table allocates request ids from a per-instance monotonic counter and
// holds one Pending entry per outstanding id. Responses on a shared channel
// arrive in whatever order the peer produces them, so the table is the only
// record of which caller a response belongs to.
package correlation

import (
	"fmt"
	"sync"
)

// Table is the pending-request table of one hub. It is safe for concurrent
// use.
type Table struct {
	mu      sync.Mutex
	counter int64
	pending map[int64]*Pending
}

func NewTable() *Table {
	return &Table{pending: make(map[int64]*Pending)}
}

// Allocate returns the next request id. Ids start at 1 and never repeat
// within a table; 0 is reserved for events.
func (t *Table) Allocate() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counter++
	return t.counter
}

// Register stores p under id. Reusing an outstanding id is an error.
func (t *Table) Register(id int64, p *Pending) error {
	if id <= 0 {
		return fmt.Errorf("%w: %d", ErrReservedID, id)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.pending[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	t.pending[id] = p
	return nil
}

// Resolve completes the entry for id. It reports false, touching nothing,
// when no entry exists.
func (t *Table) Resolve(id int64, succeeded bool, data any) bool {
	p := t.take(id)
	if p == nil {
		return false
	}
	if succeeded {
		p.fulfill(data)
	} else {
		p.reject(&RemoteError{Channel: p.channel, Data: data})
	}
	return true
}

// Cancel removes the entry for id and rejects it with err.
func (t *Table) Cancel(id int64, err error) bool {
	p := t.take(id)
	if p == nil {
		return false
	}
	p.reject(err)
	return true
}

// Clear rejects every outstanding entry with err and empties the table. The
// counter keeps running.
func (t *Table) Clear(err error) int {
	t.mu.Lock()
	drained := t.pending
	t.pending = make(map[int64]*Pending)
	t.mu.Unlock()

	for _, p := range drained {
		p.reject(err)
	}
	return len(drained)
}

// Len reports the number of outstanding entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *Table) take(id int64) *Pending {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, exists := t.pending[id]
	if !exists {
		return nil
	}
	delete(t.pending, id)
	return p
}
