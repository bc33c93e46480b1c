package users

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pressroom-hq/pressroom/internal/audit"
	"github.com/pressroom-hq/pressroom/internal/concurrency"
	"github.com/pressroom-hq/pressroom/internal/mutation"
	"github.com/pressroom-hq/pressroom/internal/shared"
	"github.com/pressroom-hq/pressroom/jobs"
)

type memoryRepo struct {
	users     map[int64]User
	nextID    int64
	findCalls int
}

func newMemoryRepo(seed ...User) *memoryRepo {
	repo := &memoryRepo{users: make(map[int64]User), nextID: 1}
	for _, u := range seed {
		repo.users[u.ID] = u
		if u.ID >= repo.nextID {
			repo.nextID = u.ID + 1
		}
	}
	return repo
}

func (r *memoryRepo) List(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *memoryRepo) FindByID(ctx context.Context, id int64) (User, error) {
	r.findCalls++
	u, ok := r.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (r *memoryRepo) FindByEmail(ctx context.Context, email string) (User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func (r *memoryRepo) Create(ctx context.Context, user User) (User, error) {
	for _, u := range r.users {
		if u.Email == user.Email {
			return User{}, shared.ErrDuplicate
		}
	}
	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *memoryRepo) Save(ctx context.Context, user User, expected time.Time) (User, error) {
	current, ok := r.users[user.ID]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	if !concurrency.SameVersion(current.UpdatedAt, expected) {
		return User{}, shared.ErrConflict
	}
	user.UpdatedAt = current.UpdatedAt.Add(time.Second)
	r.users[user.ID] = user
	return user, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64, expected time.Time) error {
	current, ok := r.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	if !concurrency.SameVersion(current.UpdatedAt, expected) {
		return shared.ErrConflict
	}
	delete(r.users, id)
	return nil
}

type allowAllAuthz struct{}

func (allowAllAuthz) Can(ctx context.Context, userID int64, resource, action string) (bool, error) {
	return true, nil
}

type spyCache struct {
	invalidated []int64
	cleared     int
}

func (c *spyCache) Invalidate(userID int64) { c.invalidated = append(c.invalidated, userID) }
func (c *spyCache) Clear()                  { c.cleared++ }

type trailStore struct {
	entries []audit.Entry
}

func (s *trailStore) Insert(ctx context.Context, entry audit.Entry) (audit.Entry, error) {
	s.entries = append(s.entries, entry)
	return entry, nil
}

type stubQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *stubQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func newFixture(seed ...User) (*Service, *memoryRepo, *spyCache, *trailStore, *stubQueue) {
	repo := newMemoryRepo(seed...)
	cache := &spyCache{}
	trail := &trailStore{}
	queue := &stubQueue{}
	recorder := audit.NewRecorder(trail, slog.Default())
	pipeline := mutation.NewPipeline(allowAllAuthz{}, cache, recorder, slog.Default(), nil)
	return NewService(repo, pipeline, queue, slog.Default()), repo, cache, trail, queue
}

func seededUser() User {
	return User{
		ID:        2,
		Email:     "grace@pressroom.dev",
		Name:      "Grace Hopper",
		IsActive:  true,
		UpdatedAt: time.Date(2025, 3, 1, 10, 0, 0, int(500*time.Millisecond), time.UTC),
	}
}

func TestCreateHashesPasswordAndAudits(t *testing.T) {
	svc, repo, _, trail, _ := newFixture()

	created, err := svc.Create(context.Background(), 1, CreateInput{
		Email:    "Ada@Pressroom.dev",
		Name:     "Ada Lovelace",
		Password: "correct horse",
	})
	require.NoError(t, err)
	require.Equal(t, "ada@pressroom.dev", created.Email)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users[created.ID].PasswordHash), []byte("correct horse")))

	require.Len(t, trail.entries, 1)
	entry := trail.entries[0]
	require.Equal(t, audit.ActionUserCreated, entry.Action)
	require.Equal(t, int64(1), entry.PerformedByID)
	require.Equal(t, created.ID, *entry.UserID)
}

func TestCreateDuplicateEmail(t *testing.T) {
	svc, _, _, trail, _ := newFixture(seededUser())

	_, err := svc.Create(context.Background(), 1, CreateInput{
		Email:    "grace@pressroom.dev",
		Name:     "Copycat",
		Password: "pw",
	})
	require.ErrorIs(t, err, shared.ErrDuplicate)
	require.Empty(t, trail.entries)
}

func TestUpdateWithCurrentTokenSucceeds(t *testing.T) {
	existing := seededUser()
	svc, _, _, trail, _ := newFixture(existing)

	updated, err := svc.Update(context.Background(), 1, existing.ID, existing.UpdatedAt, UpdateInput{Name: "Grace Brewster Hopper"})
	require.NoError(t, err)
	require.Equal(t, "Grace Brewster Hopper", updated.Name)
	require.True(t, updated.UpdatedAt.After(existing.UpdatedAt))

	require.Len(t, trail.entries, 1)
	require.Equal(t, audit.ActionUserUpdated, trail.entries[0].Action)
	changes, ok := trail.entries[0].Metadata["changes"].(map[string]shared.FieldChange)
	require.True(t, ok)
	require.Contains(t, changes, "name")
}

func TestUpdateLoserOfTwoWritersGetsConflict(t *testing.T) {
	existing := seededUser()
	svc, _, _, _, _ := newFixture(existing)
	token := existing.UpdatedAt

	// Both clients read the same version; the first write wins and bumps it.
	winner, err := svc.Update(context.Background(), 1, existing.ID, token, UpdateInput{Name: "First Writer"})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), 3, existing.ID, token, UpdateInput{Name: "Second Writer"})
	var conflict *shared.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "user", conflict.Entity)
	// The conflict carries the winner's committed state for reconciliation.
	require.Equal(t, winner.Name, conflict.Current.(User).Name)
	require.True(t, concurrency.SameVersion(winner.UpdatedAt, conflict.Current.(User).UpdatedAt))
}

func TestUpdateMissingTokenRejected(t *testing.T) {
	existing := seededUser()
	svc, repo, _, trail, _ := newFixture(existing)

	_, err := svc.Update(context.Background(), 1, existing.ID, time.Time{}, UpdateInput{Name: "No Token"})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "updatedAt is required for concurrency control", verr.Error())
	require.Zero(t, repo.findCalls)
	require.Empty(t, trail.entries)
}

func TestDeleteSelfDeniedBeforeConcurrencyCheck(t *testing.T) {
	existing := seededUser()
	svc, repo, cache, trail, _ := newFixture(existing)

	// Even without a version token the refusal is a 403-shaped policy error,
	// not a 400, because the pre-check runs first.
	err := svc.Delete(context.Background(), existing.ID, existing.ID, time.Time{})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	require.Zero(t, repo.findCalls)
	require.Contains(t, repo.users, existing.ID)
	require.Empty(t, cache.invalidated)
	require.Empty(t, trail.entries)
}

func TestDeleteRemovesAndInvalidates(t *testing.T) {
	existing := seededUser()
	svc, repo, cache, trail, _ := newFixture(existing)

	require.NoError(t, svc.Delete(context.Background(), 1, existing.ID, existing.UpdatedAt))
	require.NotContains(t, repo.users, existing.ID)
	require.Equal(t, []int64{existing.ID}, cache.invalidated)

	require.Len(t, trail.entries, 1)
	require.Equal(t, audit.ActionUserDeleted, trail.entries[0].Action)
	require.Equal(t, existing.Email, trail.entries[0].Metadata["email"])
}

func TestDeleteStaleTokenConflict(t *testing.T) {
	existing := seededUser()
	svc, repo, _, _, _ := newFixture(existing)

	err := svc.Delete(context.Background(), 1, existing.ID, existing.UpdatedAt.Add(-time.Minute))
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Contains(t, repo.users, existing.ID)
}

func TestInviteEnqueuesTaskAndAudits(t *testing.T) {
	svc, _, _, trail, queue := newFixture()

	require.NoError(t, svc.Invite(context.Background(), 1, " New@Pressroom.dev "))
	require.Len(t, queue.tasks, 1)
	require.Equal(t, jobs.TaskTypeInvitationEmail, queue.tasks[0].Type())

	var payload jobs.InvitationEmailPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &payload))
	require.Equal(t, "new@pressroom.dev", payload.Email)

	require.Len(t, trail.entries, 1)
	require.Equal(t, audit.ActionInvitationSent, trail.entries[0].Action)
}

func TestInviteEnqueueFailurePropagates(t *testing.T) {
	svc, _, _, trail, queue := newFixture()
	queue.err = errors.New("redis down")

	err := svc.Invite(context.Background(), 1, "new@pressroom.dev")
	require.ErrorIs(t, err, queue.err)
	require.Empty(t, trail.entries)
}
