// Package embcache caches per-clip embedding vectors during enrollment.
//
// Extracting an embedding is by far the slowest step of building the
// reference blob, so enroll runs key each clip by its content hash and
// skip extraction when the vector is already cached. A BadgerDB-backed
// implementation persists across runs; the in-memory one serves tests.
package embcache

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when a clip hash has no cached vector.
var ErrNotFound = errors.New("embcache: not found")

// Cache stores embedding vectors keyed by clip content hash.
//
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached vector for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]float32, error)

	// Put stores the vector for key, overwriting any previous value.
	Put(ctx context.Context, key string, vec []float32) error

	// Close releases resources held by the cache.
	Close() error
}

// Memory is an in-memory Cache for tests and single-shot runs.
type Memory struct {
	mu   sync.RWMutex
	vecs map[string][]float32
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{vecs: make(map[string][]float32)}
}

func (m *Memory) Get(_ context.Context, key string) ([]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vec, ok := m.vecs[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}

func (m *Memory) Put(_ context.Context, key string, vec []float32) error {
	cp := make([]float32, len(vec))
	copy(cp, vec)
	m.mu.Lock()
	m.vecs[key] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	return nil
}
