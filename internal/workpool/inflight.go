package workpool

import (
	"context"
	"sort"
	"sync"
)

// Inflight marks keys that currently have an operation scheduled. The
// workflow keys it by group ID so a group never occupies two slots, whichever
// pool they belong to.
type Inflight struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewInflight() *Inflight {
	return &Inflight{keys: make(map[string]string)}
}

// TryAcquire claims key for op. It returns false when key is already held.
func (f *Inflight) TryAcquire(key, op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.keys[key]; held {
		return false
	}
	f.keys[key] = op
	return true
}

func (f *Inflight) Release(key string) {
	f.mu.Lock()
	delete(f.keys, key)
	f.mu.Unlock()
}

// Holding reports the operation holding key, if any.
func (f *Inflight) Holding(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.keys[key]
	return op, ok
}

// Snapshot returns held keys with their operations, sorted by key.
func (f *Inflight) Snapshot() []Held {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Held, 0, len(f.keys))
	for key, op := range f.keys {
		out = append(out, Held{Key: key, Op: op})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Held is one entry of an Inflight snapshot.
type Held struct {
	Key string `json:"key"`
	Op  string `json:"op"`
}

// Submit acquires key and queues job on pool. The key is released when the
// job returns, or immediately when the pool has no free slot.
func Submit(pool *Pool, inflight *Inflight, key, op string, job Job) bool {
	if !inflight.TryAcquire(key, op) {
		return false
	}
	accepted := pool.TryGo(func(ctx context.Context) {
		defer inflight.Release(key)
		job(ctx)
	})
	if !accepted {
		inflight.Release(key)
	}
	return accepted
}
