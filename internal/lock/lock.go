// Package lock provides mutual exclusion around the harvest state resource.
package lock

import "context"

// Locker serialises access to a shared resource. Lock blocks until the lock
// is held or ctx is done. The returned release function must be called once.
type Locker interface {
	Lock(ctx context.Context) (release func(), err error)
}

// Local is an in-process Locker. The zero value is not usable; use NewLocal.
type Local struct {
	sem chan struct{}
}

// NewLocal returns an unlocked Local.
func NewLocal() *Local {
	return &Local{sem: make(chan struct{}, 1)}
}

// Lock implements Locker.
func (l *Local) Lock(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
