package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists audit entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one row. audit_logs carries no update or delete path.
func (r *Repository) Insert(ctx context.Context, entry Entry) (Entry, error) {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: marshal metadata: %w", err)
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO audit_logs (action, entity_type, entity_id, performed_by_id, user_id, metadata, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING id, created_at`,
		string(entry.Action), entry.EntityType, entry.EntityID, entry.PerformedByID, entry.UserID, metadata, entry.IPAddress).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: insert: %w", err)
	}
	return entry, nil
}

// List returns a page of entries, newest first. It fetches one row beyond
// the page size to detect whether a next page exists.
func (r *Repository) List(ctx context.Context, filters Filters) ([]Entry, PagingInfo, error) {
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	query := strings.Builder{}
	query.WriteString(`
		SELECT id, action, entity_type, entity_id, performed_by_id, user_id, metadata, COALESCE(ip_address, ''), created_at
		FROM audit_logs WHERE 1=1`)
	args := make([]any, 0, 6)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filters.Action != "" {
		query.WriteString(" AND action = " + arg(filters.Action))
	}
	if filters.EntityType != "" {
		query.WriteString(" AND entity_type = " + arg(filters.EntityType))
	}
	if filters.ActorID != 0 {
		query.WriteString(" AND performed_by_id = " + arg(filters.ActorID))
	}
	if !filters.From.IsZero() {
		query.WriteString(" AND created_at >= " + arg(filters.From))
	}
	if !filters.To.IsZero() {
		query.WriteString(" AND created_at <= " + arg(filters.To))
	}
	query.WriteString(" ORDER BY created_at DESC, id DESC")
	query.WriteString(" LIMIT " + arg(pageSize+1))
	query.WriteString(" OFFSET " + arg((page-1)*pageSize))

	rows, err := r.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, PagingInfo{}, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var action string
		var metadata []byte
		if err := rows.Scan(&entry.ID, &action, &entry.EntityType, &entry.EntityID, &entry.PerformedByID, &entry.UserID, &metadata, &entry.IPAddress, &entry.CreatedAt); err != nil {
			return nil, PagingInfo{}, err
		}
		entry.Action = Action(action)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, PagingInfo{}, fmt.Errorf("audit: unmarshal metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, PagingInfo{}, err
	}

	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: len(entries) > pageSize}
	if paging.HasNext {
		entries = entries[:pageSize]
	}
	return entries, paging, nil
}
