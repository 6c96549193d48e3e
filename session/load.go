package session

import (
	"context"
	"sync"

	"simplecrop/geometry"
)

// ImageLoad is a single-shot notification carrying the natural size of an
// image once it finished loading. Callbacks registered with OnLoad run
// exactly once, whether they were registered before or after Resolve.
type ImageLoad struct {
	mu       sync.Mutex
	done     chan struct{}
	resolved bool
	natural  geometry.Size
	err      error
	waiting  []func(geometry.Size, error)
}

func NewImageLoad() *ImageLoad {
	return &ImageLoad{done: make(chan struct{})}
}

// Resolve completes the load. Only the first call has an effect; it
// reports whether this call was the one that resolved the load.
func (l *ImageLoad) Resolve(natural geometry.Size, err error) bool {
	l.mu.Lock()
	if l.resolved {
		l.mu.Unlock()
		return false
	}
	l.resolved = true
	l.natural = natural
	l.err = err
	waiting := l.waiting
	l.waiting = nil
	close(l.done)
	l.mu.Unlock()

	for _, fn := range waiting {
		fn(natural, err)
	}
	return true
}

// OnLoad runs fn once the load resolves. If it already has, fn runs
// synchronously before OnLoad returns.
func (l *ImageLoad) OnLoad(fn func(natural geometry.Size, err error)) {
	l.mu.Lock()
	if !l.resolved {
		l.waiting = append(l.waiting, fn)
		l.mu.Unlock()
		return
	}
	natural, err := l.natural, l.err
	l.mu.Unlock()
	fn(natural, err)
}

// Done is closed once the load resolved.
func (l *ImageLoad) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the load resolves or ctx is done.
func (l *ImageLoad) Wait(ctx context.Context) (geometry.Size, error) {
	select {
	case <-ctx.Done():
		return geometry.Size{}, ctx.Err()
	case <-l.done:
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.natural, l.err
}
