// Package router maps channel names to middleware chains and turns the
// terminal state of a chain into a success or failure outcome.
//
// Middleware follows an onion model: each function receives the request
// Context and a Next that runs the rest of the chain. Returning without
// calling next ends the chain early; returning an error fails it.
//
//	r := router.New()
//	r.Use(logRequests)
//	r.Route("sum", func(ctx context.Context, c *router.Context, next router.Next) error {
//	    args := c.Request.(map[string]any)
//	    c.Response = args["a"].(float64) + args["b"].(float64)
//	    return nil
//	})
package router

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Next runs the remainder of the chain.
type Next func(ctx context.Context) error

// Middleware is one step of a chain.
type Middleware func(ctx context.Context, c *Context, next Next) error

// Runner executes an ordered chain against c and reports its terminal error.
type Runner func(ctx context.Context, c *Context, chain []Middleware) error

// Outcome is the terminal state of one dispatch.
type Outcome struct {
	Resolved bool
	Data     any
	Err      error
}

// Router holds global middleware and per-channel chains. Registration and
// dispatch may run concurrently.
type Router struct {
	mu     sync.RWMutex
	global []Middleware
	routes map[string][]Middleware
	runner Runner
}

// Option configures a Router.
type Option func(*Router)

// WithRunner replaces the chain execution engine. The default is Compose.
func WithRunner(run Runner) Option {
	return func(r *Router) {
		if run != nil {
			r.runner = run
		}
	}
}

func New(opts ...Option) *Router {
	r := &Router{
		routes: make(map[string][]Middleware),
		runner: Compose,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Use appends global middleware. Global middleware runs before every
// channel chain, in registration order.
func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = append(r.global, nonNil(mw)...)
}

// Route appends mw to the chain for channel. Repeated calls accumulate.
func (r *Router) Route(channel string, mw ...Middleware) {
	mw = nonNil(mw)
	if len(mw) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[channel] = append(r.routes[channel], mw...)
}

// RouteMap registers several channels at once.
func (r *Router) RouteMap(routes map[string][]Middleware) {
	for channel, mw := range routes {
		r.Route(channel, mw...)
	}
}

func (r *Router) Has(channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.routes[channel]
	return exists
}

// Channels lists routed channels in sorted order.
func (r *Router) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]string, 0, len(r.routes))
	for channel := range r.routes {
		channels = append(channels, channel)
	}
	slices.Sort(channels)
	return channels
}

// Clear drops all routes and global middleware.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = nil
	r.routes = make(map[string][]Middleware)
}

// Dispatch runs the effective chain for c.Channel and frames the result. It
// never panics and never returns without an outcome.
func (r *Router) Dispatch(ctx context.Context, c *Context) Outcome {
	r.mu.RLock()
	routed, exists := r.routes[c.Channel]
	chain := make([]Middleware, 0, len(r.global)+len(routed))
	chain = append(chain, r.global...)
	chain = append(chain, routed...)
	run := r.runner
	r.mu.RUnlock()

	if !exists {
		return failed(c, fmt.Errorf("%w: %s", ErrNoRoute, c.Channel))
	}

	if err := safeRun(ctx, run, c, chain); err != nil {
		return failed(c, err)
	}
	return Outcome{Resolved: true, Data: c.Response}
}

func safeRun(ctx context.Context, run Runner, c *Context, chain []Middleware) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return run(ctx, c, chain)
}

func failed(c *Context, err error) Outcome {
	out := Outcome{Err: err}
	if f, ok := asFailure(err); ok {
		out.Data = f.Data
	} else if c.Response != nil {
		out.Data = c.Response
	} else {
		out.Data = err.Error()
	}
	return out
}

func nonNil(mw []Middleware) []Middleware {
	kept := make([]Middleware, 0, len(mw))
	for _, m := range mw {
		if m != nil {
			kept = append(kept, m)
		}
	}
	return kept
}
