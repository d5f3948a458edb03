package entry

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local development. Production should use
// the PostgreSQL implementation.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]*Entry // keyed by serial number
}

// NewInMemoryRepository creates a new in-memory entry repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		entries: make(map[string]*Entry),
	}
}

// Get retrieves an entry by serial number.
func (r *InMemoryRepository) Get(_ context.Context, serialNumber string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[serialNumber]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return copyEntry(e), nil
}

// List retrieves all entries, newest first.
func (r *InMemoryRepository) List(_ context.Context) ([]*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		items = append(items, copyEntry(e))
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

// Create persists a new entry, rejecting duplicate serial numbers.
func (r *InMemoryRepository) Create(_ context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.SerialNumber]; exists {
		return ErrDuplicateEntry
	}
	r.entries[entry.SerialNumber] = copyEntry(entry)
	return nil
}

// Delete removes an entry by serial number.
func (r *InMemoryRepository) Delete(_ context.Context, serialNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[serialNumber]; !ok {
		return ErrEntryNotFound
	}
	delete(r.entries, serialNumber)
	return nil
}

// copyEntry creates a copy so callers cannot mutate stored state.
func copyEntry(e *Entry) *Entry {
	if e == nil {
		return nil
	}
	entryCopy := *e
	return &entryCopy
}

// Ensure InMemoryRepository implements Repository.
var _ Repository = (*InMemoryRepository)(nil)
