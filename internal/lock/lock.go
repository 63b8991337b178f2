// Package lock serializes work per key (per student) inside one process
// or across several portal replicas.
package lock

import "context"

// Locker acquires an exclusive lock for key. The returned unlock func is
// safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
