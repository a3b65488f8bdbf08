package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/tailored-agentic-units/msghub/router"
)

// routes are the demo channels a worker or server hub answers.
func routes() map[string][]router.Middleware {
	return map[string][]router.Middleware{
		"echo": {echo},
		"sum":  {sum},
		"time": {now},
	}
}

func echo(ctx context.Context, c *router.Context, next router.Next) error {
	c.Response = c.Request
	return nil
}

func sum(ctx context.Context, c *router.Context, next router.Next) error {
	args, ok := c.Request.(map[string]any)
	if !ok {
		return router.Fail(`sum expects {"a": number, "b": number}`)
	}
	a, aok := args["a"].(float64)
	b, bok := args["b"].(float64)
	if !aok || !bok {
		return router.Fail(`sum expects {"a": number, "b": number}`)
	}
	c.Response = a + b
	return nil
}

func now(ctx context.Context, c *router.Context, next router.Next) error {
	c.Response = time.Now().UTC().Format(time.RFC3339Nano)
	return nil
}

func logRequests(logger *slog.Logger) router.Middleware {
	return func(ctx context.Context, c *router.Context, next router.Next) error {
		start := time.Now()
		err := next(ctx)

		attrs := []any{
			slog.Int64("id", c.ID),
			slog.String("channel", c.Channel),
			slog.Duration("elapsed", time.Since(start)),
		}
		if c.Inbound.Origin != "" {
			attrs = append(attrs, slog.String("origin", c.Inbound.Origin))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		logger.DebugContext(ctx, "request handled", attrs...)
		return err
	}
}
