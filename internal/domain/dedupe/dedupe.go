// Package dedupe maps client idempotency keys onto the run they started.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 10_000

// Index remembers which run an idempotency key started.
type Index interface {
	// Claim binds key to runID unless key is already bound. It returns the
	// bound run and true when the key was seen before. Check and bind happen
	// under one lock, so two concurrent claims of a key yield one winner.
	Claim(ctx context.Context, key, runID string) (string, bool)

	// Release forgets key. Callers use it when the claimed run could not be
	// started, so that a retry is not answered with a run that never existed.
	Release(ctx context.Context, key string)

	// Lookup returns the run bound to key.
	Lookup(ctx context.Context, key string) (string, bool)

	Size() int64
}

type entry struct {
	key   string
	runID string
}

// inMemoryIndex keeps keys in claim order. When bounded, the oldest claim is
// evicted first.
type inMemoryIndex struct {
	mu      sync.Mutex
	byKey   map[string]*list.Element
	order   *list.List // front = newest
	maxSize int        // <= 0 means unbounded
}

// NewInMemoryIndex creates an in-memory Index.
func NewInMemoryIndex(opts ...Option) Index {
	idx := &inMemoryIndex{
		maxSize: defaultMaxSize,
		byKey:   make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func (d *inMemoryIndex) Claim(_ context.Context, key, runID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.byKey[key]; ok {
		return el.Value.(*entry).runID, true
	}

	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evictOldest()
	}
	d.byKey[key] = d.order.PushFront(&entry{key: key, runID: runID})
	return runID, false
}

func (d *inMemoryIndex) Release(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.byKey[key]; ok {
		d.order.Remove(el)
		delete(d.byKey, key)
	}
}

func (d *inMemoryIndex) Lookup(_ context.Context, key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.byKey[key]; ok {
		return el.Value.(*entry).runID, true
	}
	return "", false
}

// evictOldest must be called with d.mu held.
func (d *inMemoryIndex) evictOldest() {
	el := d.order.Back()
	if el == nil {
		return
	}
	d.order.Remove(el)
	delete(d.byKey, el.Value.(*entry).key)
}

func (d *inMemoryIndex) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}
