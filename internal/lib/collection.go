package lib

import "sync"

type IModel[K comparable] interface {
	ID() K
}

// Collection is a concurrent map of items that know their own key
type Collection[K comparable, T IModel[K]] struct {
	items sync.Map
}

func NewCollection[K comparable, T IModel[K]]() *Collection[K, T] {
	return &Collection[K, T]{
		items: sync.Map{},
	}
}

func (c *Collection[K, T]) Load(id K) (item T, ok bool) {
	if val, ok := c.items.Load(id); ok {
		return val.(T), true
	}
	var zero T
	return zero, false
}

func (c *Collection[K, T]) Range(f func(item T) bool) {
	c.items.Range(func(key, value any) bool {
		item := value.(T)
		return f(item)
	})
}

func (c *Collection[K, T]) Store(item T) {
	c.items.Store(item.ID(), item)
}

func (c *Collection[K, T]) LoadOrStore(item T) (actual T, loaded bool) {
	val, loaded := c.items.LoadOrStore(item.ID(), item)
	return val.(T), loaded
}

func (c *Collection[K, T]) Delete(id K) {
	c.items.Delete(id)
}

func (c *Collection[K, T]) Len() int {
	count := 0
	c.items.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}
