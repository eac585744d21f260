package gtest

import (
	"context"
	"sync"

	"github.com/kanengo/rigging/runtime/remoting"
)

// subscriber buffers events without bound until its consumer reads them.
type subscriber struct {
	mu      sync.Mutex
	pending []remoting.Event
	notify  chan struct{}
}

func (sub *subscriber) push(ev remoting.Event) {
	sub.mu.Lock()
	sub.pending = append(sub.pending, ev)
	sub.mu.Unlock()
	select {
	case sub.notify <- struct{}{}:
	default:
	}
}

func (sub *subscriber) take() []remoting.Event {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	out := sub.pending
	sub.pending = nil
	return out
}

// subscribe streams events emitted from now on until ctx is done.
func (s *System) subscribe(ctx context.Context) <-chan remoting.Event {
	sub := &subscriber{notify: make(chan struct{}, 1)}
	s.mu.Lock()
	s.subs[sub] = true
	s.mu.Unlock()

	out := make(chan remoting.Event)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
		}()
		for {
			for _, ev := range sub.take() {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-sub.notify:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
