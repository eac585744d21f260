// Package cond provides a condition variable whose Wait honors a context.
package cond

import (
	"context"
	"sync"
)

// Cond is a sync.Cond whose Wait can be abandoned when a context is done.
// A Cond must not be copied after first use.
type Cond struct {
	L sync.Locker

	mu   sync.Mutex
	gen  chan struct{}
	once sync.Once
}

func NewCond(l sync.Locker) *Cond {
	return &Cond{L: l}
}

func (c *Cond) current() chan struct{} {
	c.once.Do(func() { c.gen = make(chan struct{}) })
	return c.gen
}

// Broadcast wakes every goroutine waiting on c.
func (c *Cond) Broadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	close(c.current())
	c.gen = make(chan struct{})
}

// Wait unlocks c.L, waits for a Broadcast or for ctx to be done and locks
// c.L again before returning. It returns ctx.Err() when ctx ended the wait.
func (c *Cond) Wait(ctx context.Context) error {
	c.mu.Lock()
	ch := c.current()
	c.mu.Unlock()

	c.L.Unlock()
	defer c.L.Lock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
