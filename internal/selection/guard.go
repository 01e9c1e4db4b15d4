package selection

import "context"

// Token is the selection version captured when asynchronous work starts.
type Token struct {
	version uint64
}

// Version returns the captured version.
func (t Token) Version() uint64 { return t.version }

// Capture records the current version.
func (c *Coordinator) Capture() Token {
	return Token{version: c.Version()}
}

// IsCurrent reports whether no switch happened since t was captured.
func (c *Coordinator) IsCurrent(t Token) bool {
	return c.Version() == t.version
}

// Commit runs apply only if t is still current. apply runs under the
// coordinator lock, so no switch can interleave with it, and it must not
// call back into the Coordinator.
func (c *Coordinator) Commit(t Token, apply func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.Version != t.version {
		c.logger.Debug("discarding stale selection result",
			"captured_version", t.version,
			"current_version", c.current.Version,
		)
		return false
	}
	apply()
	return true
}

// Dispatch captures the version, runs load and commits its result through
// apply. A result or error produced under a superseded selection is dropped
// and reported as (false, nil).
func Dispatch[T any](ctx context.Context, c *Coordinator, load func(context.Context) (T, error), apply func(T)) (bool, error) {
	return DispatchFrom(ctx, c, c.Capture(), load, apply)
}

// DispatchFrom is Dispatch with a token captured earlier, typically inside a
// selection event handler before the work is handed to another goroutine.
func DispatchFrom[T any](ctx context.Context, c *Coordinator, token Token, load func(context.Context) (T, error), apply func(T)) (bool, error) {
	value, err := load(ctx)
	if err != nil {
		if !c.IsCurrent(token) {
			c.logger.Debug("discarding stale selection error", "captured_version", token.version, "error", err)
			return false, nil
		}
		return false, err
	}

	return c.Commit(token, func() { apply(value) }), nil
}
