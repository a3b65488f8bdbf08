package hub_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tailored-agentic-units/msghub/config"
	"github.com/tailored-agentic-units/msghub/correlation"
	"github.com/tailored-agentic-units/msghub/hub"
	"github.com/tailored-agentic-units/msghub/messaging"
	"github.com/tailored-agentic-units/msghub/observability"
	"github.com/tailored-agentic-units/msghub/router"
	"github.com/tailored-agentic-units/msghub/transport"
	"github.com/tailored-agentic-units/msghub/transport/memory"
	"github.com/tailored-agentic-units/msghub/transport/window"
)

const (
	trustedOrigin = "https://trusted.example"
	frameOrigin   = "https://frame.example"
	evilOrigin    = "https://evil.example"
)

func testConfig(name string) config.HubConfig {
	cfg := config.DefaultHubConfig()
	cfg.Name = name
	cfg.Logger = slog.New(slog.DiscardHandler)
	cfg.ReadyRetryInterval = 20 * time.Millisecond
	return cfg
}

func newHub(t *testing.T, adapter transport.Adapter, cfg config.HubConfig) (*hub.Hub, *observability.Recorder) {
	t.Helper()
	rec := observability.NewRecorder()
	h, err := hub.New(context.Background(), adapter, cfg, hub.WithObserver(rec))
	if err != nil {
		t.Fatalf("hub.New: %v", err)
	}
	t.Cleanup(func() { h.Destroy() })
	return h, rec
}

// linkedHubs returns two hubs joined by an in-memory pipe.
func linkedHubs(t *testing.T) (a, b *hub.Hub, recA, recB *observability.Recorder) {
	t.Helper()
	portA, portB := memory.Pipe()

	adapterA, err := memory.Self(portA)
	if err != nil {
		t.Fatal(err)
	}
	adapterB, err := memory.Self(portB)
	if err != nil {
		t.Fatal(err)
	}

	a, recA = newHub(t, adapterA, testConfig("a"))
	b, recB = newHub(t, adapterB, testConfig("b"))
	return a, b, recA, recB
}

// rawPeer returns a hub whose peer is a bare port the test drives by hand.
// Payloads the hub sends arrive on the returned channel.
func rawPeer(t *testing.T, cfg config.HubConfig) (*hub.Hub, *observability.Recorder, *memory.Port, <-chan *messaging.Message) {
	t.Helper()
	portH, portP := memory.Pipe()

	adapter, err := memory.Self(portH)
	if err != nil {
		t.Fatal(err)
	}
	h, rec := newHub(t, adapter, cfg)

	sent := make(chan *messaging.Message, 64)
	portP.Listen(func(in transport.Inbound) {
		msg, err := messaging.JSONCodec{}.Decode(in.Payload)
		if err == nil {
			sent <- msg
		}
	})
	t.Cleanup(func() { portP.Close() })
	return h, rec, portP, sent
}

func post(t *testing.T, port *memory.Port, msg *messaging.Message) {
	t.Helper()
	payload, err := messaging.JSONCodec{}.Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	if err := port.Post(context.Background(), payload, nil); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sumRoute(ctx context.Context, c *router.Context, next router.Next) error {
	args, ok := c.Request.(map[string]any)
	if !ok {
		return router.Fail("expected an object")
	}
	a, _ := args["a"].(float64)
	b, _ := args["b"].(float64)
	c.Response = a + b
	return nil
}

func TestRequest_Sum(t *testing.T) {
	for _, codec := range []string{messaging.CodecJSON, messaging.CodecProto} {
		t.Run(codec, func(t *testing.T) {
			portA, portB := memory.Pipe()
			adapterA, _ := memory.Self(portA)
			adapterB, _ := memory.Self(portB)

			cfgA, cfgB := testConfig("a"), testConfig("b")
			cfgA.Codec, cfgB.Codec = codec, codec

			a, _ := newHub(t, adapterA, cfgA)
			b, _ := newHub(t, adapterB, cfgB)
			b.Route("sum", sumRoute)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			result, err := a.Request(ctx, "sum", map[string]any{"a": 2, "b": 3})
			if err != nil {
				t.Fatalf("Request: %v", err)
			}
			if result != 5.0 {
				t.Errorf("result = %v (%T), want 5", result, result)
			}
		})
	}
}

func TestFetch_OutOfOrderCompletion(t *testing.T) {
	a, b, _, _ := linkedHubs(t)

	const n = 8
	b.Route("square", func(ctx context.Context, c *router.Context, next router.Next) error {
		v := c.Request.(float64)
		time.Sleep(time.Duration(n-int(v)) * 5 * time.Millisecond)
		c.Response = v * v
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	futures := make([]*correlation.Future, n)
	for i := range futures {
		f, err := a.Fetch(ctx, "square", i)
		if err != nil {
			t.Fatalf("Fetch %d: %v", i, err)
		}
		futures[i] = f
	}

	var order []int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i, f := range futures {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := f.Await(ctx)
			if err != nil {
				t.Errorf("future %d: %v", i, err)
				return
			}
			if want := float64(i * i); value != want {
				t.Errorf("future %d = %v, want %v", i, value, want)
			}
			mu.Lock()
			order = append(order, f.ID())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(order) == n && order[0] == futures[0].ID() {
		t.Errorf("responses completed in request order %v; expected reverse completion", order)
	}
	if p := a.Metrics().Pending; p != 0 {
		t.Errorf("Pending = %d after all responses", p)
	}
}

func TestResponse_Unmatched(t *testing.T) {
	h, rec, peer, sent := rawPeer(t, testConfig("caller"))

	future, err := h.Fetch(context.Background(), "slow", nil)
	if err != nil {
		t.Fatal(err)
	}
	req := <-sent

	post(t, peer, messaging.NewResponse(req.ID+100, "slow", true, "stray").Build())
	waitFor(t, "unmatched diagnostic", func() bool {
		return len(rec.ByType(hub.EventResponseUnmatched)) == 1
	})

	if _, _, settled := future.Result(); settled {
		t.Fatal("stray response settled an unrelated future")
	}
	if p := h.Metrics().Pending; p != 1 {
		t.Errorf("Pending = %d, want 1", p)
	}

	post(t, peer, messaging.NewResponse(req.ID, "slow", true, "ok").Build())
	value, err := future.Await(context.Background())
	if err != nil || value != "ok" {
		t.Errorf("Await = %v, %v", value, err)
	}
	if m := h.Metrics(); m.Unmatched != 1 || m.ResponsesReceived != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestRequest_RemoteFailure(t *testing.T) {
	a, b, _, recB := linkedHubs(t)

	b.Route("validate", func(ctx context.Context, c *router.Context, next router.Next) error {
		return router.Fail(map[string]any{"field": "name"})
	})

	_, err := a.Request(context.Background(), "validate", nil)

	var remote *correlation.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	data, _ := remote.Data.(map[string]any)
	if data["field"] != "name" {
		t.Errorf("failure payload = %v", remote.Data)
	}

	waitFor(t, "handler failure diagnostic", func() bool {
		return len(recB.ByType(hub.EventHandlerFailed)) == 1
	})
}

func TestRequest_NoRoute(t *testing.T) {
	a, _, _, recB := linkedHubs(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := a.Request(ctx, "missing", nil)

	var remote *correlation.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if s, _ := remote.Data.(string); !strings.Contains(s, "missing") {
		t.Errorf("failure payload = %v", remote.Data)
	}
	waitFor(t, "handler failure diagnostic", func() bool {
		return len(recB.ByType(hub.EventHandlerFailed)) == 1
	})
}

func TestRequest_Timeout(t *testing.T) {
	cfg := testConfig("caller")
	cfg.RequestTimeout = 30 * time.Millisecond
	h, _, _, _ := rawPeer(t, cfg)

	_, err := h.Request(context.Background(), "never", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if p := h.Metrics().Pending; p != 0 {
		t.Errorf("Pending = %d after timeout", p)
	}
}

func TestRequest_ContextCancel(t *testing.T) {
	h, _, _, sent := rawPeer(t, testConfig("caller"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sent
		cancel()
	}()

	_, err := h.Request(ctx, "never", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want Canceled", err)
	}
	if p := h.Metrics().Pending; p != 0 {
		t.Errorf("Pending = %d after cancel", p)
	}
}

func TestEmit_Listeners(t *testing.T) {
	a, b, _, _ := linkedHubs(t)

	got := make(chan any, 1)
	b.On("progress", func(ctx context.Context, data any) bool {
		got <- data
		return true
	})

	if err := a.Emit(context.Background(), "progress", 0.5); err != nil {
		t.Fatal(err)
	}

	select {
	case data := <-got:
		if data != 0.5 {
			t.Errorf("data = %v", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	if m := a.Metrics(); m.EventsEmitted != 1 || m.Pending != 0 {
		t.Errorf("sender metrics = %+v", m)
	}
}

func TestEmit_FalseStopsDelivery(t *testing.T) {
	a, b, _, _ := linkedHubs(t)

	var first, second atomic.Int32
	done := make(chan struct{}, 2)

	b.On("tick", func(ctx context.Context, data any) bool {
		first.Add(1)
		done <- struct{}{}
		return false
	})
	b.On("tick", func(ctx context.Context, data any) bool {
		second.Add(1)
		return true
	})

	a.Emit(context.Background(), "tick", nil)
	a.Emit(context.Background(), "tick", nil)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("first listener did not run")
		}
	}

	if first.Load() != 2 {
		t.Errorf("first listener ran %d times, want 2", first.Load())
	}
	if second.Load() != 0 {
		t.Errorf("second listener ran %d times after false", second.Load())
	}
}

func TestOff_AllListeners(t *testing.T) {
	a, b, _, recB := linkedHubs(t)

	var ran atomic.Int32
	listener := func(ctx context.Context, data any) bool {
		ran.Add(1)
		return true
	}
	b.On("tick", listener)
	b.On("tick", listener)

	if n := b.Off("tick"); n != 2 {
		t.Errorf("Off = %d, want 2", n)
	}

	a.Emit(context.Background(), "tick", nil)
	waitFor(t, "unroutable diagnostic", func() bool {
		return len(recB.ByType(hub.EventUnroutable)) == 1
	})
	if ran.Load() != 0 {
		t.Errorf("removed listener ran %d times", ran.Load())
	}
}

func TestOff_Handle(t *testing.T) {
	a, b, _, _ := linkedHubs(t)

	var removed atomic.Int32
	kept := make(chan struct{}, 1)

	handle := b.On("tick", func(ctx context.Context, data any) bool {
		removed.Add(1)
		return true
	})
	b.On("tick", func(ctx context.Context, data any) bool {
		kept <- struct{}{}
		return true
	})
	b.Off("tick", handle)

	a.Emit(context.Background(), "tick", nil)
	select {
	case <-kept:
	case <-time.After(2 * time.Second):
		t.Fatal("remaining listener did not run")
	}
	if removed.Load() != 0 {
		t.Error("unsubscribed listener ran")
	}
}

func TestEmit_Unroutable(t *testing.T) {
	a, _, _, recB := linkedHubs(t)

	if err := a.Emit(context.Background(), "ping", nil); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "unroutable diagnostic", func() bool {
		return len(recB.ByType(hub.EventUnroutable)) == 1
	})

	event := recB.ByType(hub.EventUnroutable)[0]
	if event.Data["channel"] != "ping" {
		t.Errorf("diagnostic data = %v", event.Data)
	}
	if event.Level != observability.LevelWarning {
		t.Errorf("level = %v, want warning", event.Level)
	}
	if n := len(recB.ByType(hub.EventHandlerFailed)); n != 0 {
		t.Errorf("%d handler failures for an event", n)
	}
}

func TestDestroy_RejectsPending(t *testing.T) {
	h, rec, _, sent := rawPeer(t, testConfig("caller"))

	future, err := h.Fetch(context.Background(), "never", nil)
	if err != nil {
		t.Fatal(err)
	}
	<-sent

	if err := h.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	h.Destroy()

	if _, err := future.Await(context.Background()); !errors.Is(err, hub.ErrDestroyed) {
		t.Errorf("Await = %v, want ErrDestroyed", err)
	}
	if _, err := h.Fetch(context.Background(), "x", nil); !errors.Is(err, hub.ErrDestroyed) {
		t.Errorf("Fetch after Destroy = %v", err)
	}
	if err := h.Emit(context.Background(), "x", nil); !errors.Is(err, hub.ErrDestroyed) {
		t.Errorf("Emit after Destroy = %v", err)
	}
	if n := len(rec.ByType(hub.EventDestroyed)); n != 1 {
		t.Errorf("%d destroyed events, want 1", n)
	}
}

// windowPair links a page hub and a frame hub through in-process windows.
// The frame only accepts the trusted origin.
type windowPair struct {
	page, frame, evil *memory.Window
	pageHub, frameHub *hub.Hub
	pageRec, frameRec *observability.Recorder
	frameAdapter      *window.Adapter
}

func newWindowPair(t *testing.T) *windowPair {
	t.Helper()
	p := &windowPair{
		page:  memory.NewWindow(trustedOrigin),
		frame: memory.NewWindow(frameOrigin),
		evil:  memory.NewWindow(evilOrigin),
	}
	t.Cleanup(func() {
		p.page.Close()
		p.frame.Close()
		p.evil.Close()
	})

	pageAdapter, err := window.New(p.page, p.frame, frameOrigin)
	if err != nil {
		t.Fatal(err)
	}
	p.frameAdapter, err = window.New(p.frame, p.page, trustedOrigin)
	if err != nil {
		t.Fatal(err)
	}

	p.pageHub, p.pageRec = newHub(t, pageAdapter, testConfig("page"))
	p.frameHub, p.frameRec = newHub(t, p.frameAdapter, testConfig("frame"))
	return p
}

func encode(t *testing.T, msg *messaging.Message) []byte {
	t.Helper()
	payload, err := messaging.JSONCodec{}.Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestWindow_EvilOriginDropped(t *testing.T) {
	p := newWindowPair(t)

	var routed, heard atomic.Int32
	p.frameHub.Route("sum", func(ctx context.Context, c *router.Context, next router.Next) error {
		routed.Add(1)
		return sumRoute(ctx, c, next)
	})
	p.frameHub.On("tick", func(ctx context.Context, data any) bool {
		heard.Add(1)
		return true
	})

	args := map[string]any{"a": 2, "b": 3}
	p.frame.PostMessage(p.evil, encode(t, messaging.NewRequest(1, "sum", args).Build()), "*", nil)
	p.frame.PostMessage(p.evil, encode(t, messaging.NewEvent("tick", nil).Build()), "*", nil)
	p.frame.Dispatch(window.MessageEvent{
		Data:   encode(t, messaging.NewRequest(2, "sum", args).Build()),
		Origin: evilOrigin,
		Source: p.page,
	})

	result, err := p.pageHub.Request(context.Background(), "sum", args)
	if err != nil {
		t.Fatalf("trusted Request: %v", err)
	}
	if result != 5.0 {
		t.Errorf("result = %v", result)
	}

	if routed.Load() != 1 {
		t.Errorf("route ran %d times, want 1 (trusted only)", routed.Load())
	}
	if heard.Load() != 0 {
		t.Errorf("listener ran %d times for untrusted events", heard.Load())
	}
	if events := p.frameRec.Events(); len(events) != 0 {
		t.Errorf("origin rejection produced diagnostics: %v", events)
	}
}

func TestWindow_ContextCarriesInbound(t *testing.T) {
	p := newWindowPair(t)

	p.frameHub.Use(func(ctx context.Context, c *router.Context, next router.Next) error {
		c.Set("origin", c.Inbound.Origin)
		return next(ctx)
	})
	p.frameHub.Route("whoami", func(ctx context.Context, c *router.Context, next router.Next) error {
		origin, _ := c.Get("origin")
		c.Response = origin
		return nil
	})

	result, err := p.pageHub.Request(context.Background(), "whoami", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result != trustedOrigin {
		t.Errorf("origin = %v, want %s", result, trustedOrigin)
	}
}

func TestDestroy_IgnoresInbound(t *testing.T) {
	p := newWindowPair(t)

	var routed, heard atomic.Int32
	p.frameHub.Route("sum", func(ctx context.Context, c *router.Context, next router.Next) error {
		routed.Add(1)
		return nil
	})
	p.frameHub.On("tick", func(ctx context.Context, data any) bool {
		heard.Add(1)
		return true
	})

	p.frameHub.Destroy()
	if n := p.frame.ListenerCount(); n != 0 {
		t.Errorf("frame window still has %d listeners", n)
	}

	p.pageHub.Emit(context.Background(), "tick", nil)
	future, err := p.pageHub.Fetch(context.Background(), "sum", map[string]any{"a": 1, "b": 1})
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)

	if routed.Load() != 0 || heard.Load() != 0 {
		t.Errorf("destroyed hub reacted: routed=%d heard=%d", routed.Load(), heard.Load())
	}
	if _, _, settled := future.Result(); settled {
		t.Error("destroyed hub answered a request")
	}
	for _, e := range p.frameRec.Events() {
		if e.Type != hub.EventDestroyed {
			t.Errorf("unexpected diagnostic after destroy: %s", e.Type)
		}
	}
}

func TestReady_RetriesUntilPeerListens(t *testing.T) {
	page := memory.NewWindow(trustedOrigin)
	frame := memory.NewWindow(frameOrigin)
	t.Cleanup(func() {
		page.Close()
		frame.Close()
	})

	pageAdapter, _ := window.New(page, frame, frameOrigin)
	pageHub, pageRec := newHub(t, pageAdapter, testConfig("page"))

	frameHubs := make(chan *hub.Hub, 1)
	go func() {
		defer close(frameHubs)
		time.Sleep(80 * time.Millisecond)
		frameAdapter, err := window.New(frame, page, trustedOrigin)
		if err != nil {
			return
		}
		frameHub, err := hub.New(context.Background(), frameAdapter, testConfig("frame"),
			hub.WithObserver(observability.NoOpObserver{}))
		if err == nil {
			frameHubs <- frameHub
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if pageHub.IsReady() {
		t.Fatal("ready before handshake")
	}
	if err := pageHub.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if frameHub, ok := <-frameHubs; ok {
		defer frameHub.Destroy()
	}
	if err := pageHub.Ready(ctx); err != nil {
		t.Fatalf("second Ready: %v", err)
	}

	readyEvents := pageRec.ByType(hub.EventReady)
	if len(readyEvents) != 1 {
		t.Fatalf("%d ready events, want 1", len(readyEvents))
	}
	if attempts, _ := readyEvents[0].Data["attempts"].(int); attempts < 2 {
		t.Errorf("attempts = %d, want at least 2", attempts)
	}
	if p := pageHub.Metrics().Pending; p != 0 {
		t.Errorf("Pending = %d after handshake", p)
	}
}

func TestReady_ContextEnds(t *testing.T) {
	h, _, _, _ := rawPeer(t, testConfig("caller"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := h.Ready(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Ready = %v, want DeadlineExceeded", err)
	}
}

func TestReady_StopsWithoutWaiters(t *testing.T) {
	h, _, peer, sent := rawPeer(t, testConfig("caller"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := h.Ready(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Ready = %v, want DeadlineExceeded", err)
	}

	time.Sleep(60 * time.Millisecond)
	for len(sent) > 0 {
		<-sent
	}

	select {
	case msg := <-sent:
		t.Fatalf("handshake kept running without waiters: %v", msg)
	case <-time.After(100 * time.Millisecond):
	}

	if m := h.Metrics(); m.RequestsSent != 0 || m.Pending != 0 {
		t.Errorf("handshake left metrics = %+v", m)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		select {
		case msg := <-sent:
			answer := messaging.NewResponse(msg.ID, hub.ReadyChannel, true, msg.Data).Build()
			if payload, err := (messaging.JSONCodec{}).Encode(answer); err == nil {
				peer.Post(ctx, payload, nil)
			}
		case <-ctx.Done():
		}
	}()

	if err := h.Ready(ctx); err != nil {
		t.Fatalf("restarted Ready: %v", err)
	}
}

func TestReady_BypassesMiddlewareAndMetrics(t *testing.T) {
	a, b, _, _ := linkedHubs(t)

	var ran atomic.Int32
	b.Use(func(ctx context.Context, c *router.Context, next router.Next) error {
		ran.Add(1)
		return next(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := a.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}

	if ran.Load() != 0 {
		t.Errorf("global middleware ran %d times for the handshake", ran.Load())
	}
	if m := a.Metrics(); m.RequestsSent != 0 || m.ResponsesReceived != 0 || m.Unmatched != 0 {
		t.Errorf("caller metrics = %+v", m)
	}
	if m := b.Metrics(); m.RequestsServed != 0 {
		t.Errorf("peer metrics = %+v", m)
	}
}

func TestEmit_ListenerCanRequest(t *testing.T) {
	a, b, _, _ := linkedHubs(t)
	a.Route("sum", sumRoute)

	results := make(chan any, 1)
	b.On("kick", func(ctx context.Context, data any) bool {
		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		value, err := b.Request(reqCtx, "sum", map[string]any{"a": 2, "b": 3})
		if err != nil {
			results <- err
			return true
		}
		results <- value
		return true
	})

	if err := a.Emit(context.Background(), "kick", nil); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-results:
		if got != float64(5) {
			t.Errorf("listener request = %v, want 5", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not finish")
	}
}

func TestOwnedChild(t *testing.T) {
	childReady := make(chan struct{})

	worker, err := memory.Spawn(context.Background(), func(ctx context.Context, parent *memory.Port) {
		adapter, err := memory.Self(parent)
		if err != nil {
			return
		}
		child, err := hub.New(ctx, adapter, testConfig("child"), hub.WithObserver(observability.NoOpObserver{}))
		if err != nil {
			return
		}
		child.Route("sum", sumRoute)
		close(childReady)
		<-ctx.Done()
	})
	if err != nil {
		t.Fatal(err)
	}

	parent, _ := newHub(t, worker, testConfig("parent"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := parent.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	<-childReady

	result, err := parent.Request(ctx, "sum", map[string]any{"a": 2, "b": 3})
	if err != nil {
		t.Fatal(err)
	}
	if result != 5.0 {
		t.Errorf("result = %v", result)
	}

	parent.Destroy()
	select {
	case <-worker.Exited():
	case <-time.After(2 * time.Second):
		t.Fatal("child not terminated by Destroy")
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := hub.New(context.Background(), nil, testConfig("x")); !errors.Is(err, transport.ErrMissingPeer) {
		t.Errorf("nil adapter err = %v", err)
	}

	portA, _ := memory.Pipe()
	adapter, _ := memory.Self(portA)

	cfg := testConfig("x")
	cfg.Codec = "xml"
	if _, err := hub.New(context.Background(), adapter, cfg); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("bad codec err = %v", err)
	}

	cfg = testConfig("x")
	cfg.Observer = "nowhere"
	if _, err := hub.New(context.Background(), adapter, cfg); err == nil {
		t.Error("unknown observer accepted")
	}

	first, err := hub.New(context.Background(), adapter, testConfig("first"))
	if err != nil {
		t.Fatal(err)
	}
	defer first.Destroy()
	if _, err := hub.New(context.Background(), adapter, testConfig("second")); !errors.Is(err, transport.ErrAlreadyListening) {
		t.Errorf("second hub on one adapter err = %v", err)
	}
}

func TestNew_ObserverByName(t *testing.T) {
	rec := observability.NewRecorder()
	observability.RegisterObserver("hub-test-recorder", rec)

	cfg := testConfig("named")
	cfg.Observer = "hub-test-recorder"

	portA, _ := memory.Pipe()
	adapter, _ := memory.Self(portA)
	h, err := hub.New(context.Background(), adapter, cfg)
	if err != nil {
		t.Fatalf("hub.New: %v", err)
	}
	h.Destroy()

	if n := len(rec.ByType(hub.EventDestroyed)); n != 1 {
		t.Errorf("%d destroyed events on the named observer, want 1", n)
	}
}

func TestNew_ContextEndDestroys(t *testing.T) {
	portA, _ := memory.Pipe()
	adapter, _ := memory.Self(portA)

	ctx, cancel := context.WithCancel(context.Background())
	rec := observability.NewRecorder()
	h, err := hub.New(ctx, adapter, testConfig("scoped"), hub.WithObserver(rec))
	if err != nil {
		t.Fatal(err)
	}

	cancel()
	waitFor(t, "destroy on context end", func() bool {
		return len(rec.ByType(hub.EventDestroyed)) == 1
	})
	if err := h.Emit(context.Background(), "x", nil); !errors.Is(err, hub.ErrDestroyed) {
		t.Errorf("Emit = %v, want ErrDestroyed", err)
	}
}

func TestPayloadDropped(t *testing.T) {
	h, rec, peer, _ := rawPeer(t, testConfig("caller"))

	peer.Post(context.Background(), []byte(`{"hello":"world"}`), nil)
	peer.Post(context.Background(), []byte("not json"), nil)

	waitFor(t, "dropped diagnostics", func() bool {
		return len(rec.ByType(hub.EventPayloadDropped)) == 2
	})
	if d := h.Metrics().Dropped; d != 2 {
		t.Errorf("Dropped = %d", d)
	}
	if e := rec.ByType(hub.EventPayloadDropped)[0]; e.Level != observability.LevelVerbose {
		t.Errorf("level = %v, want verbose", e.Level)
	}
}

func TestHandler_UnencodableResponse(t *testing.T) {
	a, b, _, _ := linkedHubs(t)

	b.Route("leak", func(ctx context.Context, c *router.Context, next router.Next) error {
		c.Response = make(chan int)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := a.Request(ctx, "leak", nil)
	var remote *correlation.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
}

func TestRouteMap_Chaining(t *testing.T) {
	a, b, _, _ := linkedHubs(t)

	echo := func(ctx context.Context, c *router.Context, next router.Next) error {
		c.Response = c.Request
		return nil
	}
	upper := func(ctx context.Context, c *router.Context, next router.Next) error {
		c.Response = strings.ToUpper(c.Request.(string))
		return nil
	}
	b.RouteMap(map[string][]router.Middleware{"echo": {echo}}).Route("upper", upper)

	ctx := context.Background()
	if got, err := a.Request(ctx, "echo", "hi"); err != nil || got != "hi" {
		t.Errorf("echo = %v, %v", got, err)
	}
	if got, err := a.Request(ctx, "upper", "hi"); err != nil || got != "HI" {
		t.Errorf("upper = %v, %v", got, err)
	}

	if m := b.Metrics(); m.RequestsServed != 2 || m.HandlerFailures != 0 {
		t.Errorf("server metrics = %+v", m)
	}
	if b.Name() != "b" || b.ID() == a.ID() || b.Kind() != transport.KindSelf {
		t.Errorf("identity: name=%s id=%s kind=%s", b.Name(), b.ID(), b.Kind())
	}
}
