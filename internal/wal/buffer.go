package wal

import "sync"

type bufferedEntry struct {
	tenantID string
	entry    []byte
}

// fallbackBuffer holds events that could not reach the backend. It is
// bounded; when full the oldest entries are evicted so the newest survive.
type fallbackBuffer struct {
	mu      sync.Mutex
	max     int
	entries []bufferedEntry
}

func newFallbackBuffer(max int) *fallbackBuffer {
	return &fallbackBuffer{max: max}
}

// push appends an entry and returns how many old entries were evicted to
// make room.
func (b *fallbackBuffer) push(tenantID string, entry []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, bufferedEntry{tenantID: tenantID, entry: entry})
	dropped := 0
	if len(b.entries) > b.max {
		dropped = len(b.entries) - b.max
		b.entries = append([]bufferedEntry(nil), b.entries[dropped:]...)
	}
	return dropped
}

// takeAll removes and returns all buffered entries in append order.
func (b *fallbackBuffer) takeAll() []bufferedEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	taken := b.entries
	b.entries = nil
	return taken
}

// restore puts entries back at the front, ahead of anything buffered since.
func (b *fallbackBuffer) restore(entries []bufferedEntry) {
	if len(entries) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	combined := make([]bufferedEntry, 0, len(entries)+len(b.entries))
	combined = append(combined, entries...)
	combined = append(combined, b.entries...)
	if len(combined) > b.max {
		combined = combined[len(combined)-b.max:]
	}
	b.entries = combined
}

// pendingFor reports whether any buffered entry belongs to the tenant.
func (b *fallbackBuffer) pendingFor(tenantID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if e.tenantID == tenantID {
			return true
		}
	}
	return false
}

func (b *fallbackBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
