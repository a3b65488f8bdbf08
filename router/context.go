package router

import (
	"sync"

	"github.com/tailored-agentic-units/msghub/transport"
)

// Context is the per-request state handed to every middleware of a chain.
// Handlers write their result to Response.
type Context struct {
	ID       int64
	Channel  string
	Request  any
	Inbound  transport.Inbound
	Response any

	mu     sync.Mutex
	values map[string]any
}

func NewContext(id int64, channel string, request any, inbound transport.Inbound) *Context {
	return &Context{
		ID:      id,
		Channel: channel,
		Request: request,
		Inbound: inbound,
	}
}

// Set stores a request-scoped value for later middleware.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.values[key]
	return value, ok
}
