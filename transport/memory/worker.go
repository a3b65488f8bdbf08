package memory

import (
	"context"

	"github.com/tailored-agentic-units/msghub/transport"
)

// ChildMain is the body of a child context. It receives its end of the link
// and should return once ctx is done.
type ChildMain func(ctx context.Context, parent *Port)

// Worker is an owned-child adapter: it starts the child context and
// terminates it on Close.
type Worker struct {
	portAdapter
	child  *Port
	cancel context.CancelFunc
	exited chan struct{}
}

// Spawn starts main in its own goroutine with a context derived from ctx and
// returns the parent-side adapter.
func Spawn(ctx context.Context, main ChildMain) (*Worker, error) {
	if main == nil {
		return nil, transport.ErrMissingPeer
	}

	parent, child := Pipe()
	childCtx, cancel := context.WithCancel(ctx)

	w := &Worker{
		portAdapter: portAdapter{kind: transport.KindOwnedChild, port: parent},
		child:       child,
		cancel:      cancel,
		exited:      make(chan struct{}),
	}

	go func() {
		defer close(w.exited)
		main(childCtx, child)
	}()

	return w, nil
}

// Close terminates the child: its context is cancelled and both ends of the
// link are closed. It does not wait for the child to return; use Exited.
func (w *Worker) Close() error {
	w.cancel()
	w.port.Close()
	w.child.Close()
	return nil
}

// Exited is closed once the child's main function has returned.
func (w *Worker) Exited() <-chan struct{} {
	return w.exited
}
