package memory

import (
	"context"
	"sync"
)

// Mailbox is an ordered, bounded queue that a single reader drains. Closing
// a mailbox never closes the underlying channel, so late senders fail with
// ErrClosed instead of panicking.
type Mailbox[T any] struct {
	channel   chan T
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewMailbox[T any](bufferSize int) *Mailbox[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Mailbox[T]{
		channel: make(chan T, bufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (mb *Mailbox[T]) Send(ctx context.Context, message T) error {
	if mb.IsClosed() {
		return ErrClosed
	}
	select {
	case mb.channel <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-mb.ctx.Done():
		return ErrClosed
	}
}

func (mb *Mailbox[T]) Receive(ctx context.Context) (T, error) {
	select {
	case message := <-mb.channel:
		return message, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-mb.ctx.Done():
		var zero T
		return zero, ErrClosed
	}
}

func (mb *Mailbox[T]) Close() {
	mb.closeOnce.Do(mb.cancel)
}

func (mb *Mailbox[T]) IsClosed() bool {
	return mb.ctx.Err() != nil
}

func (mb *Mailbox[T]) QueueLength() int {
	return len(mb.channel)
}
