package updates

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pressroom-hq/pressroom/internal/shared"
)

const updateColumns = `id, title, body, author_id, published, published_at, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for updates.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all updates, newest first.
func (r *Repository) List(ctx context.Context) ([]Update, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+updateColumns+` FROM updates ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Update
	for rows.Next() {
		item, err := scanUpdate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// FindByID fetches an update by id.
func (r *Repository) FindByID(ctx context.Context, id int64) (Update, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+updateColumns+` FROM updates WHERE id = $1`, id)
	item, err := scanUpdate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Update{}, shared.ErrNotFound
		}
		return Update{}, err
	}
	return item, nil
}

// Create inserts a new draft.
func (r *Repository) Create(ctx context.Context, item Update) (Update, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO updates (title, body, author_id, published)
		VALUES ($1, $2, $3, $4)
		RETURNING `+updateColumns,
		item.Title, item.Body, item.AuthorID, item.Published)
	return scanUpdate(row)
}

// Save persists the mutable fields under compare-and-swap on the version
// column; the version bump is atomic with the write.
func (r *Repository) Save(ctx context.Context, item Update, expected time.Time) (Update, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE updates
		SET title = $2, body = $3, published = $4, published_at = $5, updated_at = clock_timestamp()
		WHERE id = $1 AND date_trunc('milliseconds', updated_at) = date_trunc('milliseconds', $6::timestamptz)
		RETURNING `+updateColumns,
		item.ID, item.Title, item.Body, item.Published, item.PublishedAt, expected)
	saved, err := scanUpdate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Update{}, r.casFailure(ctx, item.ID)
		}
		return Update{}, err
	}
	return saved, nil
}

// Delete removes the row under compare-and-swap on the version column.
func (r *Repository) Delete(ctx context.Context, id int64, expected time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM updates
		WHERE id = $1 AND date_trunc('milliseconds', updated_at) = date_trunc('milliseconds', $2::timestamptz)`,
		id, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.casFailure(ctx, id)
	}
	return nil
}

func (r *Repository) casFailure(ctx context.Context, id int64) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM updates WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return shared.ErrNotFound
	}
	return shared.ErrConflict
}

func scanUpdate(row pgx.Row) (Update, error) {
	var item Update
	err := row.Scan(&item.ID, &item.Title, &item.Body, &item.AuthorID, &item.Published, &item.PublishedAt, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}
