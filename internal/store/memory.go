package store

import (
	"context"
	"sync"
)

// Memory is an in-process Backend for tests and local development. It keeps
// the same partitioning semantics as the SQLite backend: lists are
// append-ordered per (tenant, list) pair and documents are keyed by
// (tenant, collection, key).
type Memory struct {
	mu     sync.RWMutex
	lists  map[string][][]byte
	docs   map[string][]byte
	closed bool
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		lists: make(map[string][][]byte),
		docs:  make(map[string][]byte),
	}
}

func listKey(tenantID, list string) string {
	return tenantID + "\x00" + list
}

func docKey(tenantID, collection, key string) string {
	return tenantID + "\x00" + collection + "\x00" + key
}

// ListAppend implements Backend.
func (m *Memory) ListAppend(ctx context.Context, tenantID, list string, entry []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	cp := make([]byte, len(entry))
	copy(cp, entry)
	k := listKey(tenantID, list)
	m.lists[k] = append(m.lists[k], cp)
	return nil
}

// ListRange implements Backend.
func (m *Memory) ListRange(ctx context.Context, tenantID, list string, limit int) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	entries := m.lists[listKey(tenantID, list)]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([][]byte, len(entries))
	for i, e := range entries {
		cp := make([]byte, len(e))
		copy(cp, e)
		out[i] = cp
	}
	return out, nil
}

// ListTrim implements Backend.
func (m *Memory) ListTrim(ctx context.Context, tenantID, list string, max int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	k := listKey(tenantID, list)
	entries := m.lists[k]
	if max < 0 {
		max = 0
	}
	if len(entries) > max {
		m.lists[k] = append([][]byte(nil), entries[len(entries)-max:]...)
	}
	return nil
}

// ListLen implements Backend.
func (m *Memory) ListLen(ctx context.Context, tenantID, list string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return len(m.lists[listKey(tenantID, list)]), nil
}

// PutDoc implements Backend.
func (m *Memory) PutDoc(ctx context.Context, tenantID, collection, key string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	cp := make([]byte, len(doc))
	copy(cp, doc)
	m.docs[docKey(tenantID, collection, key)] = cp
	return nil
}

// GetDoc implements Backend.
func (m *Memory) GetDoc(ctx context.Context, tenantID, collection, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	doc, ok := m.docs[docKey(tenantID, collection, key)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(doc))
	copy(cp, doc)
	return cp, nil
}

// Close implements Backend.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
