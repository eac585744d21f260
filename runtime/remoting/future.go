package remoting

import (
	"context"
	"sync"

	"github.com/kanengo/rigging/runtime/scale"
)

// Future is the pending result of a message. Wait may be called any number of
// times, the underlying wait runs once.
type Future[T any] struct {
	id   scale.MessageID
	wait func(ctx context.Context) (T, error)

	mu   sync.Mutex
	done bool
	val  T
	err  error
}

func NewFuture[T any](id scale.MessageID, wait func(ctx context.Context) (T, error)) *Future[T] {
	return &Future[T]{id: id, wait: wait}
}

// Ready returns an already resolved future.
func Ready[T any](id scale.MessageID, val T, err error) *Future[T] {
	return &Future[T]{id: id, done: true, val: val, err: err}
}

func (f *Future[T]) MessageID() scale.MessageID {
	return f.id
}

func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return f.val, f.err
	}
	val, err := f.wait(ctx)
	if ctx.Err() != nil && err == ctx.Err() {
		// cancelled by the caller, a later Wait may still succeed
		return val, err
	}
	f.val, f.err, f.done = val, err, true
	return val, err
}

// Then maps the resolved value of f.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	return NewFuture(f.id, func(ctx context.Context) (U, error) {
		v, err := f.Wait(ctx)
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(v)
	})
}
