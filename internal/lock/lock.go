package lock

import "context"

// Locker provides mutual exclusion per key. Acquire blocks until the key is free
// or ctx is done; the returned release func is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
