package router

import "context"

// Compose is the default Runner. It invokes chain[0] with a next that
// invokes chain[1], and so on; the next of the last middleware is a no-op.
// A middleware that calls next more than once fails the chain.
func Compose(ctx context.Context, c *Context, chain []Middleware) error {
	index := -1

	var dispatch func(ctx context.Context, i int) error
	dispatch = func(ctx context.Context, i int) error {
		if i <= index {
			return ErrNextCalledTwice
		}
		index = i

		if i >= len(chain) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return chain[i](ctx, c, func(ctx context.Context) error {
			return dispatch(ctx, i+1)
		})
	}

	return dispatch(ctx, 0)
}
