// Package reactive provides a publish/subscribe value cell shared between components.
package reactive

import "sync"

// Cell holds a value and notifies subscribers synchronously on every change.
// Subscribers must not call Set or Update from inside their callback.
type Cell[T any] struct {
	mu     sync.Mutex
	value  T
	nextID int
	subs   map[int]func(T)
}

func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial, subs: map[int]func(T){}}
}

func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *Cell[T]) Set(value T) {
	c.Update(func(T) T { return value })
}

// Update applies fn to the current value atomically and publishes the result.
func (c *Cell[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	c.value = fn(c.value)
	value := c.value
	subs := make([]func(T), 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub(value)
	}
	return value
}

// Subscribe registers fn and returns a function that removes it.
func (c *Cell[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}
