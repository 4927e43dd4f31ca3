// Package memory provides an in-process checkpoint backend for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/paginated-scraper/internal/checkpoint"
)

// Backend keeps the encoded record in memory.
type Backend struct {
	mu     sync.RWMutex
	data   []byte
	writes int
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{}
}

// NewWithRecord returns a backend pre-loaded with data.
func NewWithRecord(data []byte) *Backend {
	return &Backend{data: append([]byte(nil), data...)}
}

// Read returns a copy of the stored record.
func (b *Backend) Read(_ context.Context) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return nil, checkpoint.ErrNotFound
	}
	return append([]byte(nil), b.data...), nil
}

// Write replaces the stored record.
func (b *Backend) Write(_ context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append([]byte(nil), data...)
	b.writes++
	return nil
}

// Delete drops the stored record.
func (b *Backend) Delete(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = nil
	return nil
}

// Close is a no-op.
func (b *Backend) Close() error { return nil }

// Location implements checkpoint.Backend.
func (b *Backend) Location() string { return "memory" }

// Writes reports how many times Write was called.
func (b *Backend) Writes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writes
}
