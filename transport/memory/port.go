// Package memory is an in-process host primitive for hubs: connected port
// pairs, child contexts spawned as goroutines, and origin-bearing windows.
//
// Payloads are copied on delivery, so the receiver never aliases the sender's
// buffer. Transfers are handed over by reference, which is what an ownership
// transfer means inside one process.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tailored-agentic-units/msghub/transport"
)

const DefaultBufferSize = 1024

// Port is one end of a Pipe.
type Port struct {
	inbox    *Mailbox[transport.Inbound]
	peer     *Port
	listener transport.Listener

	startOnce sync.Once
}

// Pipe returns two connected ports. What one port posts, the other receives,
// in order.
func Pipe() (*Port, *Port) {
	return PipeSize(DefaultBufferSize)
}

// PipeSize is Pipe with an explicit per-direction queue capacity.
func PipeSize(bufferSize int) (*Port, *Port) {
	a := &Port{inbox: NewMailbox[transport.Inbound](bufferSize)}
	b := &Port{inbox: NewMailbox[transport.Inbound](bufferSize)}
	a.peer, b.peer = b, a
	return a, b
}

// Post delivers a copy of payload to the other end.
func (p *Port) Post(ctx context.Context, payload []byte, transfers []any) error {
	if p.inbox.IsClosed() {
		return ErrClosed
	}
	return p.peer.inbox.Send(ctx, transport.Inbound{
		Payload:    slices.Clone(payload),
		Source:     p,
		Transfers:  transfers,
		ReceivedAt: time.Now(),
	})
}

// Listen registers handler and starts draining the port.
func (p *Port) Listen(handler transport.Handler) error {
	if err := p.listener.Set(handler); err != nil {
		return err
	}
	p.startOnce.Do(func() { go p.readLoop() })
	return nil
}

func (p *Port) readLoop() {
	for {
		in, err := p.inbox.Receive(context.Background())
		if err != nil {
			return
		}
		p.listener.Deliver(in)
	}
}

// Close detaches the handler and stops the port. Pending inbound payloads are
// discarded.
func (p *Port) Close() error {
	p.listener.Detach()
	p.inbox.Close()
	return nil
}

func (p *Port) Closed() bool {
	return p.inbox.IsClosed()
}

type portAdapter struct {
	kind transport.Kind
	port *Port
}

func (a *portAdapter) Kind() transport.Kind { return a.kind }

func (a *portAdapter) Send(ctx context.Context, payload []byte, transfers []any) error {
	return a.port.Post(ctx, payload, transfers)
}

func (a *portAdapter) OnReceive(handler transport.Handler) error {
	return a.port.Listen(handler)
}

// Self wraps the port a child context received from Spawn. Closing the
// adapter closes the child's own end; the parent sees further posts fail.
func Self(port *Port) (transport.Adapter, error) {
	if port == nil {
		return nil, transport.ErrMissingPeer
	}
	return &selfAdapter{portAdapter{kind: transport.KindSelf, port: port}}, nil
}

type selfAdapter struct {
	portAdapter
}

func (a *selfAdapter) Close() error {
	return a.port.Close()
}
