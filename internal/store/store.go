// Package store provides the durable backend consumed by the WAL and the
// artifact/state surface. Two primitives are exposed: tenant-partitioned
// append-only lists (the WAL substrate) and versioned documents (saga and
// artifact persistence). SQLite is the production backend; the in-memory
// backend serves tests and local development.
package store

import (
	"context"
	"errors"
)

// Errors for backend operations.
var (
	ErrNotFound = errors.New("store: not found")
	ErrClosed   = errors.New("store: backend closed")
)

// Backend is the durable store contract. Implementations must be safe for
// concurrent use; the store is the single source of truth and may be shared
// by multiple runtime processes.
type Backend interface {
	// ListAppend appends an entry to a tenant-partitioned list.
	ListAppend(ctx context.Context, tenantID, list string, entry []byte) error

	// ListRange returns the most recent limit entries of a list in append
	// order (oldest of the window first). limit <= 0 returns everything.
	ListRange(ctx context.Context, tenantID, list string, limit int) ([][]byte, error)

	// ListTrim drops the oldest entries so at most max remain.
	ListTrim(ctx context.Context, tenantID, list string, max int) error

	// ListLen returns the number of entries in a list.
	ListLen(ctx context.Context, tenantID, list string) (int, error)

	// PutDoc stores a document, overwriting any previous version. Each
	// write replaces the full document; there are no field patches.
	PutDoc(ctx context.Context, tenantID, collection, key string, doc []byte) error

	// GetDoc returns a document or ErrNotFound.
	GetDoc(ctx context.Context, tenantID, collection, key string) ([]byte, error)

	// Close releases backend resources.
	Close() error
}
