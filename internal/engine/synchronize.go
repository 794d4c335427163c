package engine

import (
	"context"
)

// Synchronize looks up the adapter registered for kind and runs one
// synchronization of db against defs. An unknown kind fails before any I/O.
func Synchronize(ctx context.Context, reg *Registry, kind string, db DB, defs []Definition, opts ...Option) error {
	adapter, err := reg.Lookup(kind)
	if err != nil {
		return err
	}
	return New(adapter, db, opts...).Run(ctx, defs...)
}

// SynchronizeAsync runs Synchronize on its own goroutine and calls
// onComplete exactly once with the result.
func SynchronizeAsync(ctx context.Context, reg *Registry, kind string, db DB, defs []Definition, onComplete func(error), opts ...Option) {
	adapter, err := reg.Lookup(kind)
	if err != nil {
		if onComplete != nil {
			onComplete(err)
		}
		return
	}
	e := New(adapter, db, opts...)
	go func() {
		err := e.Run(ctx, defs...)
		if onComplete != nil {
			onComplete(err)
		}
	}()
}
