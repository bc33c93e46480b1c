// Package concurrency implements optimistic, single-entity concurrency
// control. A caller-held version token is compared against the store's
// current version at write time; no locks, no cross-entity transactions.
package concurrency

import (
	"context"
	"errors"
	"time"

	"github.com/pressroom-hq/pressroom/internal/shared"
)

// VersionFormat renders version tokens with millisecond precision.
const VersionFormat = "2006-01-02T15:04:05.000Z07:00"

// Entity is any record carrying a monotonically increasing version token.
type Entity interface {
	Version() time.Time
}

// Store persists one entity type with compare-and-swap semantics. Save and
// Delete must apply only when the stored version still equals expected,
// returning shared.ErrConflict otherwise; the version bump is atomic with
// the underlying write.
type Store[E Entity] interface {
	FindByID(ctx context.Context, id int64) (E, error)
	Save(ctx context.Context, entity E, expected time.Time) (E, error)
	Delete(ctx context.Context, id int64, expected time.Time) error
}

// Guard validates version tokens before committing writes.
type Guard[E Entity] struct {
	entity string
	store  Store[E]
}

// NewGuard constructs a guard for one entity type. The entity name appears
// in conflict errors shown to callers.
func NewGuard[E Entity](entity string, store Store[E]) *Guard[E] {
	return &Guard[E]{entity: entity, store: store}
}

// SameVersion compares two version tokens at millisecond precision.
// Stores and clients may round differently below that.
func SameVersion(a, b time.Time) bool {
	return a.Truncate(time.Millisecond).Equal(b.Truncate(time.Millisecond))
}

// FormatVersion renders a token for transport.
func FormatVersion(t time.Time) string {
	return t.UTC().Format(VersionFormat)
}

// ParseVersion parses a token from transport. Empty input yields the zero
// time, which the guard rejects as a missing precondition.
func ParseVersion(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, &shared.ValidationError{Field: "updatedAt", Message: "updatedAt must be an RFC3339 timestamp"}
	}
	return t, nil
}

// CheckAndCommit loads the entity, verifies the client's version token, then
// applies mutate and persists the result under compare-and-swap. A mismatch
// yields a ConflictError carrying the authoritative current state. The
// token check runs immediately before the conditional write, and the CAS in
// the store closes the remaining read-compare-write window.
func (g *Guard[E]) CheckAndCommit(ctx context.Context, id int64, clientVersion time.Time, mutate func(E) (E, error)) (E, error) {
	var zero E
	if clientVersion.IsZero() {
		return zero, shared.MissingVersionToken("updatedAt")
	}
	current, err := g.store.FindByID(ctx, id)
	if err != nil {
		return zero, err
	}
	if !SameVersion(clientVersion, current.Version()) {
		return zero, &shared.ConflictError{Entity: g.entity, Current: current}
	}
	next, err := mutate(current)
	if err != nil {
		return zero, err
	}
	saved, err := g.store.Save(ctx, next, current.Version())
	if err != nil {
		return g.resolveConflict(ctx, id, err)
	}
	return saved, nil
}

// CheckAndDelete verifies the token and deletes under compare-and-swap,
// returning the last observed state for audit metadata. A missing token is
// rejected before anything past an existence check is read.
func (g *Guard[E]) CheckAndDelete(ctx context.Context, id int64, clientVersion time.Time) (E, error) {
	var zero E
	if clientVersion.IsZero() {
		return zero, shared.MissingVersionToken("updatedAt")
	}
	current, err := g.store.FindByID(ctx, id)
	if err != nil {
		return zero, err
	}
	if !SameVersion(clientVersion, current.Version()) {
		return zero, &shared.ConflictError{Entity: g.entity, Current: current}
	}
	if err := g.store.Delete(ctx, id, current.Version()); err != nil {
		if _, cerr := g.resolveConflict(ctx, id, err); cerr != nil {
			return zero, cerr
		}
		return zero, err
	}
	return current, nil
}

// resolveConflict refetches after a CAS failure so the conflict surfaces
// the version produced by the winning write.
func (g *Guard[E]) resolveConflict(ctx context.Context, id int64, err error) (E, error) {
	var zero E
	if !errors.Is(err, shared.ErrConflict) {
		return zero, err
	}
	latest, ferr := g.store.FindByID(ctx, id)
	if ferr != nil {
		// The winning write may have been a delete.
		if errors.Is(ferr, shared.ErrNotFound) {
			return zero, ferr
		}
		return zero, err
	}
	return zero, &shared.ConflictError{Entity: g.entity, Current: latest}
}
