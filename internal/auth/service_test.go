package auth

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pressroom-hq/pressroom/internal/audit"
	"github.com/pressroom-hq/pressroom/internal/shared"
	"github.com/pressroom-hq/pressroom/internal/users"
)

type stubFinder struct {
	byEmail map[string]users.User
}

func (f *stubFinder) FindByEmail(ctx context.Context, email string) (users.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (f *stubFinder) FindByID(ctx context.Context, id int64) (users.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return users.User{}, shared.ErrNotFound
}

type trailStore struct {
	entries []audit.Entry
}

func (s *trailStore) Insert(ctx context.Context, entry audit.Entry) (audit.Entry, error) {
	s.entries = append(s.entries, entry)
	return entry, nil
}

func newFixture(t *testing.T, active bool) (*Service, *trailStore) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	finder := &stubFinder{byEmail: map[string]users.User{
		"ada@pressroom.dev": {
			ID:           1,
			Email:        "ada@pressroom.dev",
			Name:         "Ada Lovelace",
			IsActive:     active,
			PasswordHash: string(hash),
		},
	}}
	trail := &trailStore{}
	return NewService(finder, audit.NewRecorder(trail, slog.Default()), slog.Default()), trail
}

func TestLoginSuccessRecordsSignIn(t *testing.T) {
	svc, trail := newFixture(t, true)

	user, err := svc.Login(context.Background(), " Ada@Pressroom.dev ", "correct horse", "203.0.113.9")
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)

	require.Len(t, trail.entries, 1)
	entry := trail.entries[0]
	require.Equal(t, audit.ActionUserLogin, entry.Action)
	require.Equal(t, int64(1), entry.PerformedByID)
	require.Equal(t, "203.0.113.9", entry.IPAddress)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, trail := newFixture(t, true)

	_, err := svc.Login(context.Background(), "ada@pressroom.dev", "wrong", "")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	require.Empty(t, trail.entries)
}

func TestLoginUnknownEmailIndistinguishable(t *testing.T) {
	svc, _ := newFixture(t, true)

	_, err := svc.Login(context.Background(), "nobody@pressroom.dev", "correct horse", "")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, trail := newFixture(t, false)

	_, err := svc.Login(context.Background(), "ada@pressroom.dev", "correct horse", "")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	require.Empty(t, trail.entries)
}
