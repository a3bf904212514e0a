package session

import (
	"container/list"
	"sync"
)

// DefaultDedupeSize is how many request ids a Dedupe remembers
const DefaultDedupeSize = 256

// Dedupe remembers recently seen request ids, evicting the oldest
type Dedupe struct {
	mu    sync.Mutex
	size  int
	order *list.List
	seen  map[string]*list.Element
}

// NewDedupe creates a Dedupe holding up to size ids
func NewDedupe(size int) *Dedupe {
	if size <= 0 {
		size = DefaultDedupeSize
	}
	return &Dedupe{
		size:  size,
		order: list.New(),
		seen:  make(map[string]*list.Element, size),
	}
}

// First records id and reports whether it had not been seen before
func (d *Dedupe) First(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.seen[id]; ok {
		d.order.MoveToFront(e)
		return false
	}
	d.seen[id] = d.order.PushFront(id)
	for d.order.Len() > d.size {
		oldest := d.order.Back()
		d.order.Remove(oldest)
		delete(d.seen, oldest.Value.(string))
	}
	return true
}

// Len returns how many ids are remembered
func (d *Dedupe) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
