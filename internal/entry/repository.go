package entry

import "context"

// Repository defines the interface for entry persistence.
type Repository interface {
	// Get retrieves an entry by serial number.
	Get(ctx context.Context, serialNumber string) (*Entry, error)

	// List retrieves all entries, newest first.
	List(ctx context.Context) ([]*Entry, error)

	// Create persists a new entry. Returns ErrDuplicateEntry if an entry
	// with the same serial number already exists.
	Create(ctx context.Context, entry *Entry) error

	// Delete removes an entry by serial number.
	Delete(ctx context.Context, serialNumber string) error
}
