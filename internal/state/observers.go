// Package state holds the process-wide observable stores: the signed-in
// session and the user's listings. Stores are created once at startup and
// injected where needed.
package state

import "sync"

// Observers is a set of subscriber callbacks. The zero value is ready to
// use.
type Observers[T any] struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(T)
}

// Subscribe registers fn and returns a function that removes it. The
// returned function may be called more than once.
func (o *Observers[T]) Subscribe(fn func(T)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = map[int]func(T){}
	}
	id := o.nextID
	o.nextID++
	o.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.fns, id)
			o.mu.Unlock()
		})
	}
}

// Notify calls every subscriber with v. It must not be called with the
// owning store's lock held.
func (o *Observers[T]) Notify(v T) {
	o.mu.Lock()
	fns := make([]func(T), 0, len(o.fns))
	for _, fn := range o.fns {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
