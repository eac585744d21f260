// Package register holds write-once cells.
package register

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnset   = errors.New("register: cell is not initialized")
	ErrDropped = errors.New("register: cell was dropped")
)

// Cell is written exactly once, read any number of times and dropped at most
// once. A dropped cell cannot be written again.
type Cell[T any] struct {
	mu      sync.Mutex
	written bool
	dropped bool
	val     T
}

// Write stores val. It panics when the cell was already written.
func (c *Cell[T]) Write(val T) {
	if !c.TryWrite(val) {
		panic(fmt.Sprintf("register: cell written more than once, new %v", val))
	}
}

// TryWrite stores val unless the cell was written before.
func (c *Cell[T]) TryWrite(val T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.written {
		return false
	}
	c.val = val
	c.written = true
	return true
}

// Load returns the stored value.
func (c *Cell[T]) Load() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	switch {
	case c.dropped:
		return zero, ErrDropped
	case !c.written:
		return zero, ErrUnset
	}
	return c.val, nil
}

// Drop releases the value.
func (c *Cell[T]) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.val = zero
	c.dropped = true
	c.written = true
}
