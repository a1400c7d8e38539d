// Package abi tracks ownership of buffers handed across the plugin
// boundary. Every buffer the runtime returns to a host is registered here
// and must be released exactly once; the arena's own records, not
// caller-supplied sizes, drive the accounting.
package abi

import (
	"fmt"
	"sync"
)

// MaxTotalBytes is the maximum memory the arena will hold across all
// outstanding buffers. This bounds leak damage when a host forgets to
// release.
const MaxTotalBytes = 100 * 1024 * 1024 // 100 MB

type record struct {
	length   int
	capacity int
}

// Arena is a registry of live boundary buffers keyed by id. Ids are never
// reused, so a stale release can be told apart from a valid one instead
// of corrupting another buffer's record.
type Arena struct {
	mu         sync.Mutex
	records    map[uint64]record
	nextID     uint64
	totalBytes int
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{records: make(map[uint64]record)}
}

// Register records a new buffer and returns its id. Capacity, not length,
// is charged against the arena limit since that is what the allocation
// actually holds.
func (a *Arena) Register(length, capacity int) (uint64, error) {
	if length < 0 || capacity < length {
		return 0, fmt.Errorf("abi: invalid buffer dimensions (len %d, cap %d)", length, capacity)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.totalBytes+capacity > MaxTotalBytes {
		return 0, fmt.Errorf("abi: buffer registry limit exceeded (requested %d bytes, current %d bytes, limit %d bytes)",
			capacity, a.totalBytes, MaxTotalBytes)
	}

	a.nextID++
	id := a.nextID
	a.records[id] = record{length: length, capacity: capacity}
	a.totalBytes += capacity
	return id, nil
}

// Release frees the record for id. Releasing an unknown or already
// released id is an error, never a crash: the double free is reported to
// the caller and the arena is left untouched.
func (a *Arena) Release(id uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.records[id]
	if !ok {
		return fmt.Errorf("abi: buffer %d already released or never registered", id)
	}
	delete(a.records, id)
	a.totalBytes -= rec.capacity
	return nil
}

// CapacityOf returns the registered capacity for id. The arena's record
// is authoritative; hosts cannot shrink or grow it by lying at release
// time.
func (a *Arena) CapacityOf(id uint64) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[id]
	return rec.capacity, ok
}

// Outstanding returns the number of registered, unreleased buffers.
// Tests use this to prove every buffer was released exactly once.
func (a *Arena) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// TotalBytes returns the capacity sum of all outstanding buffers.
func (a *Arena) TotalBytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalBytes
}

// ReleaseAll drops every record. Called during runtime teardown so a
// host that leaked buffers does not pin the arena forever.
func (a *Arena) ReleaseAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = make(map[uint64]record)
	a.totalBytes = 0
}
