package entry

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolation = "23505"

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL entry repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves an entry by serial number.
func (r *PostgresRepository) Get(ctx context.Context, serialNumber string) (*Entry, error) {
	query := `
		SELECT serial_number, title, host, api_secret_key, api_auth_key, device_class, created_at
		FROM entries
		WHERE serial_number = $1
	`

	var e Entry
	err := r.pool.QueryRow(ctx, query, serialNumber).Scan(
		&e.SerialNumber,
		&e.Title,
		&e.Host,
		&e.APISecretKey,
		&e.APIAuthKey,
		&e.DeviceClass,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	return &e, nil
}

// List retrieves all entries, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]*Entry, error) {
	query := `
		SELECT serial_number, title, host, api_secret_key, api_auth_key, device_class, created_at
		FROM entries
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.SerialNumber,
			&e.Title,
			&e.Host,
			&e.APISecretKey,
			&e.APIAuthKey,
			&e.DeviceClass,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// Create persists a new entry. The primary key on serial_number enforces
// uniqueness; violations surface as ErrDuplicateEntry.
func (r *PostgresRepository) Create(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO entries (serial_number, title, host, api_secret_key, api_auth_key, device_class, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.SerialNumber,
		entry.Title,
		entry.Host,
		entry.APISecretKey,
		entry.APIAuthKey,
		entry.DeviceClass,
		entry.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateEntry
		}
		return err
	}

	return nil
}

// Delete removes an entry by serial number.
func (r *PostgresRepository) Delete(ctx context.Context, serialNumber string) error {
	query := `DELETE FROM entries WHERE serial_number = $1`

	result, err := r.pool.Exec(ctx, query, serialNumber)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrEntryNotFound
	}

	return nil
}

// Ensure PostgresRepository implements Repository.
var _ Repository = (*PostgresRepository)(nil)
