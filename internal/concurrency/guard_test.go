package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pressroom-hq/pressroom/internal/shared"
)

type doc struct {
	ID        int64
	Body      string
	UpdatedAt time.Time
}

func (d doc) Version() time.Time { return d.UpdatedAt }

type stubDocStore struct {
	docs      map[int64]doc
	findCalls int
}

func (s *stubDocStore) FindByID(ctx context.Context, id int64) (doc, error) {
	s.findCalls++
	d, ok := s.docs[id]
	if !ok {
		return doc{}, shared.ErrNotFound
	}
	return d, nil
}

func (s *stubDocStore) Save(ctx context.Context, d doc, expected time.Time) (doc, error) {
	current, ok := s.docs[d.ID]
	if !ok {
		return doc{}, shared.ErrNotFound
	}
	if !SameVersion(current.UpdatedAt, expected) {
		return doc{}, shared.ErrConflict
	}
	d.UpdatedAt = current.UpdatedAt.Add(time.Second)
	s.docs[d.ID] = d
	return d, nil
}

func (s *stubDocStore) Delete(ctx context.Context, id int64, expected time.Time) error {
	current, ok := s.docs[id]
	if !ok {
		return shared.ErrNotFound
	}
	if !SameVersion(current.UpdatedAt, expected) {
		return shared.ErrConflict
	}
	delete(s.docs, id)
	return nil
}

func baseTime(t *testing.T) time.Time {
	t.Helper()
	at, err := time.Parse(time.RFC3339, "2025-03-01T10:00:00.500Z")
	require.NoError(t, err)
	return at
}

func TestCheckAndCommitSuccess(t *testing.T) {
	at := baseTime(t)
	store := &stubDocStore{docs: map[int64]doc{1: {ID: 1, Body: "draft", UpdatedAt: at}}}
	guard := NewGuard[doc]("doc", store)

	saved, err := guard.CheckAndCommit(context.Background(), 1, at, func(d doc) (doc, error) {
		d.Body = "edited"
		return d, nil
	})
	require.NoError(t, err)
	require.Equal(t, "edited", saved.Body)
	require.True(t, saved.UpdatedAt.After(at))
}

func TestCheckAndCommitMissingTokenRejectedBeforeRead(t *testing.T) {
	store := &stubDocStore{docs: map[int64]doc{1: {ID: 1, UpdatedAt: baseTime(t)}}}
	guard := NewGuard[doc]("doc", store)

	_, err := guard.CheckAndCommit(context.Background(), 1, time.Time{}, func(d doc) (doc, error) {
		return d, nil
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "updatedAt", verr.Field)
	require.Equal(t, "updatedAt is required for concurrency control", verr.Error())
	require.Zero(t, store.findCalls)
}

func TestCheckAndCommitStaleTokenConflict(t *testing.T) {
	at := baseTime(t)
	current := doc{ID: 1, Body: "fresh", UpdatedAt: at}
	store := &stubDocStore{docs: map[int64]doc{1: current}}
	guard := NewGuard[doc]("doc", store)

	_, err := guard.CheckAndCommit(context.Background(), 1, at.Add(-2*time.Second), func(d doc) (doc, error) {
		return d, nil
	})
	var conflict *shared.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, "doc", conflict.Entity)
	require.Equal(t, current, conflict.Current)
}

func TestCheckAndCommitSubMillisecondSkewMatches(t *testing.T) {
	at := baseTime(t)
	store := &stubDocStore{docs: map[int64]doc{1: {ID: 1, UpdatedAt: at.Add(300 * time.Microsecond)}}}
	guard := NewGuard[doc]("doc", store)

	_, err := guard.CheckAndCommit(context.Background(), 1, at, func(d doc) (doc, error) {
		return d, nil
	})
	require.NoError(t, err)
}

func TestCheckAndCommitCASLoserSurfacesWinnerVersion(t *testing.T) {
	at := baseTime(t)
	winner := &stubDocStore{docs: map[int64]doc{1: {ID: 1, Body: "winner", UpdatedAt: at.Add(5 * time.Second)}}}

	// The token check passes against a stale read, then the conditional
	// write loses the race; the refetched state carries the winner's version.
	store := &raceyStore{inner: winner, stale: doc{ID: 1, Body: "stale", UpdatedAt: at}}
	guard := NewGuard[doc]("doc", store)
	_, err := guard.CheckAndCommit(context.Background(), 1, at, func(d doc) (doc, error) {
		return d, nil
	})
	var conflict *shared.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "winner", conflict.Current.(doc).Body)
}

// raceyStore returns a stale snapshot on the first read, then delegates, so
// tests can force the CAS to lose after the token check passed.
type raceyStore struct {
	inner *stubDocStore
	stale doc
	reads int
}

func (s *raceyStore) FindByID(ctx context.Context, id int64) (doc, error) {
	s.reads++
	if s.reads == 1 {
		return s.stale, nil
	}
	return s.inner.FindByID(ctx, id)
}

func (s *raceyStore) Save(ctx context.Context, d doc, expected time.Time) (doc, error) {
	return doc{}, shared.ErrConflict
}

func (s *raceyStore) Delete(ctx context.Context, id int64, expected time.Time) error {
	return shared.ErrConflict
}

func TestCheckAndDeleteSuccessReturnsLastState(t *testing.T) {
	at := baseTime(t)
	store := &stubDocStore{docs: map[int64]doc{1: {ID: 1, Body: "bye", UpdatedAt: at}}}
	guard := NewGuard[doc]("doc", store)

	deleted, err := guard.CheckAndDelete(context.Background(), 1, at)
	require.NoError(t, err)
	require.Equal(t, "bye", deleted.Body)
	require.NotContains(t, store.docs, int64(1))
}

func TestCheckAndDeleteMissingToken(t *testing.T) {
	store := &stubDocStore{docs: map[int64]doc{1: {ID: 1, UpdatedAt: baseTime(t)}}}
	guard := NewGuard[doc]("doc", store)

	_, err := guard.CheckAndDelete(context.Background(), 1, time.Time{})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Zero(t, store.findCalls)
	require.Contains(t, store.docs, int64(1))
}

func TestCheckAndDeleteUnknownEntity(t *testing.T) {
	store := &stubDocStore{docs: map[int64]doc{}}
	guard := NewGuard[doc]("doc", store)

	_, err := guard.CheckAndDelete(context.Background(), 9, baseTime(t))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSameVersionMillisecondPrecision(t *testing.T) {
	at := baseTime(t)
	require.True(t, SameVersion(at, at.Add(400*time.Microsecond)))
	require.False(t, SameVersion(at, at.Add(time.Millisecond)))
}

func TestFormatAndParseVersionRoundTrip(t *testing.T) {
	at := baseTime(t)
	raw := FormatVersion(at)
	require.Equal(t, "2025-03-01T10:00:00.500Z", raw)

	parsed, err := ParseVersion(raw)
	require.NoError(t, err)
	require.True(t, SameVersion(at, parsed))
}

func TestParseVersionEmptyYieldsZero(t *testing.T) {
	parsed, err := ParseVersion("")
	require.NoError(t, err)
	require.True(t, parsed.IsZero())
}

func TestParseVersionMalformed(t *testing.T) {
	_, err := ParseVersion("yesterday")
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "updatedAt", verr.Field)
}

func TestConflictErrorMatchesSentinel(t *testing.T) {
	err := &shared.ConflictError{Entity: "doc"}
	require.True(t, errors.Is(err, shared.ErrConflict))
}
