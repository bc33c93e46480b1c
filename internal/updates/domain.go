package updates

import "time"

// Update is a published-content entry. UpdatedAt is the optimistic
// concurrency version token, bumped atomically on every successful mutation.
type Update struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	AuthorID    int64      `json:"authorId"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Version returns the concurrency token.
func (u Update) Version() time.Time {
	return u.UpdatedAt
}

// Snapshot captures the mutable fields for audit diffing.
func (u Update) Snapshot() map[string]any {
	return map[string]any{
		"title":     u.Title,
		"body":      u.Body,
		"published": u.Published,
	}
}
